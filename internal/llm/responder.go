package llm

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ad/go-python-coach/internal/metrics"
	"go.uber.org/zap"
)

const (
	MsgMissingKey   = "❌ کلید API تنظیم نشده است"
	MsgInvalidKey   = "❌ کلید API نامعتبر است"
	MsgTimeout      = "⏱️ درخواست timeout شد"
	MsgConnection   = "🔌 مشکل اتصال به اینترنت"
	MsgRetriesSpent = "⚠️ بعد از چند بار تلاش، عملیات ناموفق بود"
	msgRetriesCount = "⚠️ بعد از %s بار تلاش، عملیات ناموفق بود"
	MsgGeneric      = "خطا در ارتباط با API"
	msgStatus       = "⚠️ خطای API: %d"
)

type asker interface {
	Ask(ctx context.Context, system, prompt string) (string, error)
}

// Responder answers open questions with the mentor persona. Every failure
// becomes a Persian message that is sent to the learner as is.
type Responder struct {
	client asker
	system string
	logger *zap.Logger
}

func NewResponder(client asker, logger *zap.Logger) *Responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{client: client, system: MentorPrompt, logger: logger}
}

func (r *Responder) GenerateAnswer(ctx context.Context, text string) string {
	answer, err := r.client.Ask(ctx, r.system, text)
	if err == nil && answer != "" {
		metrics.ObserveLLMRequest("ok")
		return answer
	}
	if err == nil {
		err = ErrEmptyResponse
	}

	metrics.ObserveLLMRequest("error")
	r.logger.Warn("chat completion failed", zap.Error(err))
	return FailureText(err)
}

// FailureText maps a client error to the learner-facing message.
func FailureText(err error) string {
	var unauthorized *ErrUnauthorized
	var rateLimit *ErrRateLimit
	var status *ErrStatus
	var unavailable *ErrProviderUnavailable

	switch {
	case errors.Is(err, ErrMissingAPIKey):
		return MsgMissingKey
	case errors.As(err, &unauthorized):
		return MsgInvalidKey
	case errors.Is(err, context.DeadlineExceeded):
		return MsgTimeout
	case errors.As(err, &rateLimit):
		if rateLimit.Attempts > 0 {
			return fmt.Sprintf(msgRetriesCount, persianDigits(rateLimit.Attempts))
		}
		return MsgRetriesSpent
	case errors.As(err, &status):
		return fmt.Sprintf(msgStatus, status.StatusCode)
	case errors.As(err, &unavailable):
		return MsgConnection
	default:
		return MsgGeneric
	}
}

func persianDigits(n int) string {
	digits := []rune(strconv.Itoa(n))
	for i, d := range digits {
		if d >= '0' && d <= '9' {
			digits[i] = '۰' + (d - '0')
		}
	}
	return string(digits)
}
