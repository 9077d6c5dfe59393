package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/ad/go-python-coach/internal/llm"
	"github.com/ad/go-python-coach/internal/services"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const (
	msgWelcome = "🎓 به ربات مربی پایتون خوش آمدید!\n\n" +
		"من یک مربی سختگیرم که به شما کمک می‌کنم به صورت گام به گام پایتون یاد بگیرید."
	msgHelp = "دستورات:\n" +
		"/start شروع یا ادامه مسیر\n" +
		"/status وضعیت پیشرفت\n" +
		"/quiz سوال مرحله فعلی\n" +
		"/lesson درس مرحله فعلی\n\n" +
		"جواب سوال‌ها، لینک گیت‌هاب و سوال‌های فنی خود را به صورت پیام متنی ارسال کنید."
	msgTextOnly = "لطفاً فقط پیام متنی ارسال کنید."
)

// Replier delivers text to a chat.
type Replier interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type BotHandler struct {
	adminID      int64
	coach        *services.Coach
	lessons      *services.LessonService
	catalog      services.StageCatalog
	replier      Replier
	errorManager *services.ErrorManager
	adminHandler *AdminHandler
	logger       *zap.Logger
}

func NewBotHandler(
	adminID int64,
	coach *services.Coach,
	lessons *services.LessonService,
	catalog services.StageCatalog,
	replier Replier,
	errorManager *services.ErrorManager,
	logger *zap.Logger,
) *BotHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BotHandler{
		adminID:      adminID,
		coach:        coach,
		lessons:      lessons,
		catalog:      catalog,
		replier:      replier,
		errorManager: errorManager,
		adminHandler: NewAdminHandler(adminID, coach, replier, logger),
		logger:       logger,
	}
}

// HandleUpdate is registered as the bot's catch-all handler.
func (h *BotHandler) HandleUpdate(ctx context.Context, _ *bot.Bot, update *tgmodels.Update) {
	defer h.recoverPanic(ctx, update)

	if update.Message != nil {
		h.handleMessage(ctx, update.Message)
	}
}

func (h *BotHandler) recoverPanic(ctx context.Context, update *tgmodels.Update) {
	if r := recover(); r != nil {
		h.logger.Error("recovered panic", zap.Any("panic", r))
		if h.errorManager != nil {
			h.errorManager.NotifyAdmin(ctx, r, update)
		}
	}
}

func (h *BotHandler) handleMessage(ctx context.Context, msg *tgmodels.Message) {
	if msg.From == nil {
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		h.reply(ctx, msg.Chat.ID, msgTextOnly)
		return
	}

	if command, args, ok := parseCommand(text); ok {
		h.handleCommand(ctx, msg, command, args)
		return
	}

	h.handleText(ctx, msg)
}

func (h *BotHandler) handleCommand(ctx context.Context, msg *tgmodels.Message, command string, args []string) {
	if msg.From.ID == h.adminID && h.adminHandler.HandleCommand(ctx, msg, command, args) {
		return
	}

	switch command {
	case "/start":
		h.handleStart(ctx, msg)
	case "/status":
		h.handleStatus(ctx, msg)
	case "/quiz":
		h.handleQuiz(ctx, msg)
	case "/lesson":
		h.handleLesson(ctx, msg)
	default:
		h.reply(ctx, msg.Chat.ID, msgHelp)
	}
}

func (h *BotHandler) handleStart(ctx context.Context, msg *tgmodels.Message) {
	prompt, err := h.coach.Prompt(ctx, msg.From.ID)
	if err != nil {
		h.logger.Error("prompt failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		h.reply(ctx, msg.Chat.ID, msgWelcome)
		return
	}
	h.reply(ctx, msg.Chat.ID, msgWelcome+"\n\n"+prompt)
}

func (h *BotHandler) handleStatus(ctx context.Context, msg *tgmodels.Message) {
	record, err := h.coach.Progress(ctx, msg.From.ID)
	if err != nil {
		h.logger.Error("status failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		h.reply(ctx, msg.Chat.ID, services.MsgTemporaryFailure)
		return
	}
	h.reply(ctx, msg.Chat.ID, services.FormatStatus(record, h.catalog))
}

func (h *BotHandler) handleQuiz(ctx context.Context, msg *tgmodels.Message) {
	prompt, err := h.coach.Prompt(ctx, msg.From.ID)
	if err != nil {
		h.logger.Error("quiz prompt failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		h.reply(ctx, msg.Chat.ID, services.MsgTemporaryFailure)
		return
	}
	h.reply(ctx, msg.Chat.ID, prompt)
}

func (h *BotHandler) handleLesson(ctx context.Context, msg *tgmodels.Message) {
	lesson, err := h.lessons.Lesson(ctx, msg.From.ID)
	if errors.Is(err, services.ErrLessonGeneration) {
		h.reply(ctx, msg.Chat.ID, llm.FailureText(err))
		return
	}
	if err != nil {
		h.logger.Error("lesson failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		h.reply(ctx, msg.Chat.ID, services.MsgTemporaryFailure)
		return
	}
	h.reply(ctx, msg.Chat.ID, lesson)
}

func (h *BotHandler) handleText(ctx context.Context, msg *tgmodels.Message) {
	response, err := h.coach.HandleText(ctx, msg.From.ID, msg.Text)
	if err != nil {
		h.logger.Error("message not processed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		h.reply(ctx, msg.Chat.ID, services.MsgTemporaryFailure)
		return
	}
	h.reply(ctx, msg.Chat.ID, response)
}

func (h *BotHandler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.replier.SendText(ctx, chatID, text); err != nil {
		h.logger.Warn("reply not delivered", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// parseCommand splits "/cmd@bot a b" into "/cmd" and its arguments.
func parseCommand(text string) (string, []string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	command := strings.ToLower(fields[0])
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}
	return command, fields[1:], true
}
