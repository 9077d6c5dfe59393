package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ad/go-python-coach/internal/services"
	tgmodels "github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const (
	msgResetUsage = "استفاده: /reset <userID>"
	msgResetDone  = "✅ پیشرفت کاربر %d پاک شد."
	msgNoLearners = "هنوز هیچ کاربری ثبت نشده است."
)

// AdminHandler serves the admin-only commands.
type AdminHandler struct {
	adminID int64
	coach   *services.Coach
	replier Replier
	logger  *zap.Logger
}

func NewAdminHandler(adminID int64, coach *services.Coach, replier Replier, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		adminID: adminID,
		coach:   coach,
		replier: replier,
		logger:  logger,
	}
}

// HandleCommand reports whether command was an admin command.
func (h *AdminHandler) HandleCommand(ctx context.Context, msg *tgmodels.Message, command string, args []string) bool {
	if h.adminID == 0 || msg.From.ID != h.adminID {
		return false
	}

	switch command {
	case "/reset":
		h.reset(ctx, msg.Chat.ID, args)
		return true
	case "/users":
		h.listLearners(ctx, msg.Chat.ID)
		return true
	}
	return false
}

func (h *AdminHandler) reset(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		h.send(ctx, chatID, msgResetUsage)
		return
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		h.send(ctx, chatID, msgResetUsage)
		return
	}

	if err := h.coach.Reset(ctx, userID); err != nil {
		h.logger.Error("admin reset failed", zap.Int64("user_id", userID), zap.Error(err))
		h.send(ctx, chatID, services.MsgTemporaryFailure)
		return
	}
	h.send(ctx, chatID, fmt.Sprintf(msgResetDone, userID))
}

func (h *AdminHandler) listLearners(ctx context.Context, chatID int64) {
	ids, err := h.coach.Learners(ctx)
	if err != nil {
		h.logger.Error("list learners failed", zap.Error(err))
		h.send(ctx, chatID, services.MsgTemporaryFailure)
		return
	}
	if len(ids) == 0 {
		h.send(ctx, chatID, msgNoLearners)
		return
	}

	total := h.coach.TotalStages()
	var sb strings.Builder
	fmt.Fprintf(&sb, "👥 کاربران: %d\n", len(ids))
	for _, id := range ids {
		record, err := h.coach.Progress(ctx, id)
		if err != nil {
			fmt.Fprintf(&sb, "\n%d: ?", id)
			continue
		}
		fmt.Fprintf(&sb, "\n%d: %d/%d (%s)", id, record.Stage, total, record.State(total))
	}
	h.send(ctx, chatID, sb.String())
}

func (h *AdminHandler) send(ctx context.Context, chatID int64, text string) {
	if err := h.replier.SendText(ctx, chatID, text); err != nil {
		h.logger.Warn("admin reply not delivered", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
