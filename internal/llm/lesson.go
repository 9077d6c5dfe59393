package llm

import (
	"context"
	"fmt"

	"github.com/ad/go-python-coach/internal/metrics"
	"go.uber.org/zap"
)

// LessonPrompt is the system prompt for stage lessons.
const LessonPrompt = "شما یک منتور پایتون سختگیر با ۲۰ سال تجربه هستید که فقط به زبان پارسی درس می‌دهید. " +
	"هر درس باید شامل این بخش‌ها باشد: توضیح تئوری، مثال‌های دنیای واقعی، " +
	"کد نمونه داخل بلوک‌های ``` و تمرین‌های چالشی بدون ارائه راه‌حل. " +
	"بخش‌ها را کوتاه نگه دارید و هرگز از زبان انگلیسی برای توضیح استفاده نکنید."

const msgLessonRequest = "درس مرحله %d از %d با عنوان «%s» را آموزش بده."

// LessonWriter asks the model for the lesson of one curriculum stage.
// Unlike Responder it returns failures as errors so callers can keep them
// out of their caches.
type LessonWriter struct {
	client      asker
	totalStages int
	logger      *zap.Logger
}

func NewLessonWriter(client asker, totalStages int, logger *zap.Logger) *LessonWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LessonWriter{client: client, totalStages: totalStages, logger: logger}
}

func (w *LessonWriter) WriteLesson(ctx context.Context, stage int, stageName string) (string, error) {
	prompt := fmt.Sprintf(msgLessonRequest, stage+1, w.totalStages, stageName)
	lesson, err := w.client.Ask(ctx, LessonPrompt, prompt)
	if err == nil && lesson == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		metrics.ObserveLLMRequest("error")
		w.logger.Warn("lesson generation failed", zap.Int("stage", stage), zap.Error(err))
		return "", err
	}
	metrics.ObserveLLMRequest("ok")
	return lesson, nil
}
