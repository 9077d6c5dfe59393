package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ad/go-python-coach/internal/fsm"
	"github.com/ad/go-python-coach/internal/models"
)

// NonTechnicalThreshold is the off-topic streak at which the learner gets the
// final warning instead of a generated answer.
const NonTechnicalThreshold = 3

const (
	MsgCurriculumDone   = "شما همه مراحل را گذرانده‌اید! تبریک می‌گویم."
	MsgLastStageDone    = "شما همه مراحل را گذرانده‌اید!"
	MsgFinalWarning     = "هشدار نهایی: لطفا پیام‌های فنی ارسال کنید. در غیر این صورت، دسترسی شما محدود خواهد شد."
	MsgQuizPassed       = "جواب درست! حالا لینک گیت‌هاب پروژه مربوط به این مرحله را ارسال کنید."
	MsgQuizFailed       = "جواب اشتباه. دوباره تلاش کنید یا سوال را مرور کنید."
	MsgInvalidLink      = "لینک گیت‌هاب معتبر نیست. لطفا لینک پروژه خود را ارسال کنید."
	msgStageUnlocked    = "مرحله %d باز شد: %s"
	msgQuizQuestion     = "برای باز کردن مرحله بعدی (%s)، به این سوال جواب دهید: %s"
	msgLinkRequest      = "لطفا لینک گیت‌هاب پروژه مرحله «%s» را ارسال کنید."
	msgFinalStageMarker = "پایان"
)

type Classifier interface {
	IsTechnical(text string) bool
	IsRepoLink(text string) bool
}

type StageCatalog interface {
	Len() int
	Quiz(stage int) (models.Quiz, error)
	StageName(stage int) string
}

// AnswerGenerator produces an open-ended reply. Failures are reported as
// reply text, never as errors.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, text string) string
}

type EngineResult struct {
	Record     *models.ProgressRecord
	Response   string
	Transition string
}

// ProgressEngine evaluates one inbound message against a learner's progress
// record. It never persists anything; callers load the record, call Process
// and store the returned record.
type ProgressEngine struct {
	catalog    StageCatalog
	classifier Classifier
	generator  AnswerGenerator
}

func NewProgressEngine(catalog StageCatalog, classifier Classifier, generator AnswerGenerator) *ProgressEngine {
	return &ProgressEngine{
		catalog:    catalog,
		classifier: classifier,
		generator:  generator,
	}
}

func (e *ProgressEngine) TotalStages() int {
	return e.catalog.Len()
}

// Process returns the updated record and the single reply for text. The
// input record is left untouched. A missing or inconsistent record yields
// an error matching models.ErrInvalidState.
func (e *ProgressEngine) Process(ctx context.Context, record *models.ProgressRecord, text string) (*EngineResult, error) {
	total := e.catalog.Len()
	if err := record.Validate(total); err != nil {
		return nil, err
	}

	next := record.Clone()

	switch next.State(total) {
	case fsm.StateDone:
		return &EngineResult{Record: next, Response: MsgCurriculumDone, Transition: fsm.TransitionCompletedAck}, nil
	case fsm.StateLinkPending:
		return e.processLink(next, text), nil
	default:
		return e.processQuiz(ctx, next, text)
	}
}

func (e *ProgressEngine) processQuiz(ctx context.Context, record *models.ProgressRecord, text string) (*EngineResult, error) {
	if !e.classifier.IsTechnical(text) {
		record.NonTechnicalStreak++
		if record.NonTechnicalStreak >= NonTechnicalThreshold {
			return &EngineResult{Record: record, Response: MsgFinalWarning, Transition: fsm.TransitionOffTopicWarning}, nil
		}
		answer := e.generator.GenerateAnswer(ctx, text)
		return &EngineResult{Record: record, Response: answer, Transition: fsm.TransitionOffTopic}, nil
	}

	record.NonTechnicalStreak = 0

	quiz, err := e.catalog.Quiz(record.Stage)
	if err != nil {
		return nil, fmt.Errorf("quiz lookup for stage %d: %w", record.Stage, err)
	}

	if normalizeAnswer(text) != normalizeAnswer(quiz.Answer) {
		return &EngineResult{Record: record, Response: MsgQuizFailed, Transition: fsm.TransitionQuizFailed}, nil
	}

	record.QuizPassed = true
	record.AwaitingLink = true
	return &EngineResult{Record: record, Response: MsgQuizPassed, Transition: fsm.TransitionQuizPassed}, nil
}

func (e *ProgressEngine) processLink(record *models.ProgressRecord, text string) *EngineResult {
	if !e.classifier.IsRepoLink(text) {
		return &EngineResult{Record: record, Response: MsgInvalidLink, Transition: fsm.TransitionInvalidLink}
	}

	record.SubmittedLinks = append(record.SubmittedLinks, strings.TrimSpace(text))
	record.Stage++
	record.QuizPassed = false
	record.AwaitingLink = false

	if record.Stage >= e.catalog.Len() {
		return &EngineResult{Record: record, Response: MsgLastStageDone, Transition: fsm.TransitionCurriculumDone}
	}

	response := fmt.Sprintf(msgStageUnlocked, record.Stage+1, e.catalog.StageName(record.Stage))
	if quiz, err := e.catalog.Quiz(record.Stage); err == nil {
		response += "\n\n" + fmt.Sprintf(msgQuizQuestion, e.nextStageLabel(record.Stage), quiz.Question)
	}
	return &EngineResult{Record: record, Response: response, Transition: fsm.TransitionStageUnlocked}
}

// Prompt describes what the learner is expected to send next. It is used by
// /start and /quiz and never changes the record.
func (e *ProgressEngine) Prompt(record *models.ProgressRecord) (string, error) {
	total := e.catalog.Len()
	if err := record.Validate(total); err != nil {
		return "", err
	}

	switch record.State(total) {
	case fsm.StateDone:
		return MsgCurriculumDone, nil
	case fsm.StateLinkPending:
		return fmt.Sprintf(msgLinkRequest, e.catalog.StageName(record.Stage)), nil
	}

	quiz, err := e.catalog.Quiz(record.Stage)
	if err != nil {
		return "", fmt.Errorf("quiz lookup for stage %d: %w", record.Stage, err)
	}
	return fmt.Sprintf(msgQuizQuestion, e.nextStageLabel(record.Stage), quiz.Question), nil
}

func (e *ProgressEngine) nextStageLabel(stage int) string {
	if stage+1 < e.catalog.Len() {
		return e.catalog.StageName(stage + 1)
	}
	return msgFinalStageMarker
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
