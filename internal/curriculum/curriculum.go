// Package curriculum holds the fixed twelve-stage Python course: stage
// names and the quiz that gates each stage.
package curriculum

import (
	"fmt"

	"github.com/ad/go-python-coach/internal/models"
)

// Curriculum is an ordered, immutable list of stages.
type Curriculum struct {
	stages []models.Stage
}

func New(stages []models.Stage) *Curriculum {
	c := &Curriculum{stages: make([]models.Stage, len(stages))}
	for i, s := range stages {
		s.Index = i
		c.stages[i] = s
	}
	return c
}

// Default returns the Persian-language Python curriculum.
func Default() *Curriculum {
	return New([]models.Stage{
		{Name: "پایه‌های پایتون", Quiz: models.Quiz{Question: "چگونه یک متغیر در پایتون تعریف می‌کنیم؟", Answer: "نام_متغیر = مقدار"}},
		{Name: "ساختار داده‌ها", Quiz: models.Quiz{Question: "لیست در پایتون چیست؟", Answer: "یک ساختار داده قابل تغییر"}},
		{Name: "کنترل جریان", Quiz: models.Quiz{Question: "چگونه یک حلقه for در پایتون می‌نویسیم؟", Answer: "for item in iterable:"}},
		{Name: "توابع", Quiz: models.Quiz{Question: "تابع در پایتون چگونه تعریف می‌شود؟", Answer: "def نام_تابع():"}},
		{Name: "برنامه‌نویسی شی‌گرا", Quiz: models.Quiz{Question: "کلاس در پایتون چگونه تعریف می‌شود؟", Answer: "class نام_کلاس:"}},
		{Name: "ماژول‌ها و بسته‌ها", Quiz: models.Quiz{Question: "چگونه یک ماژول را import می‌کنیم؟", Answer: "import نام_ماژول"}},
		{Name: "ورودی/خروجی فایل", Quiz: models.Quiz{Question: "چگونه یک فایل را باز می‌کنیم؟", Answer: "open('نام_فایل')"}},
		{Name: "استثناها", Quiz: models.Quiz{Question: "چگونه یک استثنا را مدیریت می‌کنیم؟", Answer: "try: except:"}},
		{Name: "تست‌نویسی", Quiz: models.Quiz{Question: "unittest چیست؟", Answer: "یک فریمورک تست در پایتون"}},
		{Name: "توسعه وب", Quiz: models.Quiz{Question: "Flask چیست؟", Answer: "یک فریمورک وب در پایتون"}},
		{Name: "آماده‌سازی برای AWS", Quiz: models.Quiz{Question: "AWS چیست؟", Answer: "Amazon Web Services"}},
		{Name: "آماده‌سازی شغلی", Quiz: models.Quiz{Question: "CV چیست؟", Answer: "Curriculum Vitae"}},
	})
}

func (c *Curriculum) Len() int {
	return len(c.stages)
}

func (c *Curriculum) Stage(index int) (models.Stage, error) {
	if index < 0 || index >= len(c.stages) {
		return models.Stage{}, fmt.Errorf("stage %d out of range 0..%d", index, len(c.stages)-1)
	}
	return c.stages[index], nil
}

// Quiz returns the quiz gating the given stage.
func (c *Curriculum) Quiz(index int) (models.Quiz, error) {
	s, err := c.Stage(index)
	if err != nil {
		return models.Quiz{}, err
	}
	return s.Quiz, nil
}

// StageName returns the human label of a stage, or an empty string when the
// index is outside the curriculum.
func (c *Curriculum) StageName(index int) string {
	s, err := c.Stage(index)
	if err != nil {
		return ""
	}
	return s.Name
}

func (c *Curriculum) Stages() []models.Stage {
	return append([]models.Stage(nil), c.stages...)
}
