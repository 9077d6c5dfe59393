package services

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// TelegramSender is the part of *bot.Bot the services use.
type TelegramSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

var ErrSendFailed = errors.New("failed to send message after retry")

type MessageManager struct {
	sender   TelegramSender
	errMgr   *ErrorManager
	logger   *zap.Logger
	maxRetry int
	maxLen   int
}

func NewMessageManager(sender TelegramSender, errMgr *ErrorManager, logger *zap.Logger) *MessageManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageManager{
		sender:   sender,
		errMgr:   errMgr,
		logger:   logger,
		maxRetry: 2,
		maxLen:   MaxMessageLength,
	}
}

func (m *MessageManager) SendWithRetry(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	var lastErr error
	for attempt := 0; attempt < m.maxRetry; attempt++ {
		msg, err := m.sender.SendMessage(ctx, params)
		if err == nil {
			return msg, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	chatID, _ := params.ChatID.(int64)
	m.logger.Warn("send message failed", zap.Int64("chat_id", chatID), zap.Error(lastErr))
	if m.errMgr != nil {
		m.errMgr.NotifyAdminWithCurl(ctx, chatID, params, lastErr)
	}
	return nil, errors.Join(ErrSendFailed, lastErr)
}

// SendText delivers text to chatID, split into Telegram-sized parts.
func (m *MessageManager) SendText(ctx context.Context, chatID int64, text string) error {
	for _, part := range SplitMessage(text, m.maxLen) {
		if _, err := m.SendWithRetry(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   part,
		}); err != nil {
			return err
		}
	}
	return nil
}
