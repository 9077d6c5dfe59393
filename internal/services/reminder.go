package services

import (
	"context"
	"time"

	"github.com/ad/go-python-coach/internal/fsm"
	"github.com/ad/go-python-coach/internal/metrics"
	"go.uber.org/zap"
)

const msgReminderPrefix = "⏰ یادآوری: "

type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Reminder periodically nudges every learner who has not finished the
// curriculum with the prompt for their current step.
type Reminder struct {
	coach    *Coach
	store    ProgressStore
	sender   TextSender
	interval time.Duration
	logger   *zap.Logger
}

func NewReminder(coach *Coach, store ProgressStore, sender TextSender, interval time.Duration, logger *zap.Logger) *Reminder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reminder{
		coach:    coach,
		store:    store,
		sender:   sender,
		interval: interval,
		logger:   logger,
	}
}

// Run sends reminders every interval until ctx is done. A non-positive
// interval disables it.
func (r *Reminder) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sent, err := r.RunOnce(ctx)
			if err != nil {
				r.logger.Warn("reminder pass failed", zap.Error(err))
				continue
			}
			r.logger.Info("reminder pass finished", zap.Int("sent", sent))
		}
	}
}

// RunOnce sends one reminder to each unfinished learner and returns how many
// were delivered.
func (r *Reminder) RunOnce(ctx context.Context) (int, error) {
	ids, err := r.store.UserIDs(ctx)
	if err != nil {
		return 0, err
	}

	total := r.coach.engine.TotalStages()
	sent := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}

		record, err := r.coach.Progress(ctx, id)
		if err != nil {
			r.logger.Warn("reminder skipped", zap.Int64("user_id", id), zap.Error(err))
			metrics.ObserveReminder("error")
			continue
		}
		if record.State(total) == fsm.StateDone {
			metrics.ObserveReminder("skipped")
			continue
		}

		prompt, err := r.coach.engine.Prompt(record)
		if err != nil {
			metrics.ObserveReminder("error")
			continue
		}
		if err := r.sender.SendText(ctx, id, msgReminderPrefix+prompt); err != nil {
			r.logger.Warn("reminder not delivered", zap.Int64("user_id", id), zap.Error(err))
			metrics.ObserveReminder("error")
			continue
		}
		metrics.ObserveReminder("sent")
		sent++
	}
	return sent, nil
}
