package services

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const adminReportLimit = 4000

// ErrorManager reports panics and undeliverable messages to the admin chat.
// A zero adminID only logs.
type ErrorManager struct {
	sender  TelegramSender
	adminID int64
	logger  *zap.Logger
}

func NewErrorManager(sender TelegramSender, adminID int64, logger *zap.Logger) *ErrorManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorManager{
		sender:  sender,
		adminID: adminID,
		logger:  logger,
	}
}

func (e *ErrorManager) NotifyAdmin(ctx context.Context, panicValue interface{}, update *tgmodels.Update) {
	userInfo := "unknown"
	stage := "unknown"

	if update != nil && update.Message != nil && update.Message.From != nil {
		userInfo = DescribeSender(update.Message.From)
		stage = fmt.Sprintf("text=%q", update.Message.Text)
	}

	e.logger.Error("panic in handler",
		zap.String("user", userInfo),
		zap.Any("panic", panicValue),
	)

	msg := fmt.Sprintf("🚨 Panic in handler\nUser: %s\nMessage: %s\nError: %v\n\nStack trace:\n%s",
		userInfo, stage, panicValue, string(debug.Stack()))
	e.send(ctx, msg)
}

// DescribeSender renders a Telegram sender for logs and admin reports as
// "First Last @username [id]", omitting empty name parts.
func DescribeSender(u *tgmodels.User) string {
	if u == nil {
		return "unknown"
	}
	parts := make([]string, 0, 4)
	for _, name := range []string{u.FirstName, u.LastName} {
		if name = strings.TrimSpace(name); name != "" {
			parts = append(parts, name)
		}
	}
	if u.Username != "" {
		parts = append(parts, "@"+u.Username)
	}
	parts = append(parts, fmt.Sprintf("[%d]", u.ID))
	return strings.Join(parts, " ")
}

func (e *ErrorManager) NotifyAdminWithCurl(ctx context.Context, chatID int64, request interface{}, err error) {
	msg := fmt.Sprintf("❌ Failed to send message\nUser: [%d]\nError: %v\n\nCurl:\n%s",
		chatID, err, buildCurlCommand(request))
	e.send(ctx, msg)
}

func (e *ErrorManager) send(ctx context.Context, msg string) {
	if e.adminID == 0 || e.sender == nil {
		return
	}
	if runes := []rune(msg); len(runes) > adminReportLimit {
		msg = string(runes[:adminReportLimit]) + "\n... (truncated)"
	}

	if _, err := e.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: e.adminID,
		Text:   msg,
	}); err != nil {
		e.logger.Warn("admin notification failed", zap.Error(err))
	}
}

func buildCurlCommand(request interface{}) string {
	jsonData, err := json.MarshalIndent(request, "", "  ")
	if err != nil {
		return fmt.Sprintf("# Failed to serialize request: %v", err)
	}

	return fmt.Sprintf("curl -X POST 'https://api.telegram.org/bot[BOT_TOKEN]/sendMessage' \\\n  -H 'Content-Type: application/json' \\\n  -d '%s'",
		string(jsonData))
}
