package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ad/go-python-coach/internal/fsm"
	"github.com/ad/go-python-coach/internal/metrics"
	"github.com/ad/go-python-coach/internal/models"
	"go.uber.org/zap"
)

// ProgressStore persists one progress record per learner. Load returns
// models.ErrProgressNotFound for unknown learners and an error matching
// models.ErrInvalidState when the stored record cannot be decoded.
type ProgressStore interface {
	Load(ctx context.Context, userID int64) (*models.ProgressRecord, error)
	Save(ctx context.Context, record *models.ProgressRecord) error
	Delete(ctx context.Context, userID int64) error
	UserIDs(ctx context.Context) ([]int64, error)
}

const MsgTemporaryFailure = "⚠️ در پردازش پیام مشکلی پیش آمد. لطفاً دوباره تلاش کنید."

// Coach runs the load, evaluate, persist cycle for each inbound message.
// Messages from the same learner are serialized; different learners run in
// parallel.
type Coach struct {
	engine *ProgressEngine
	store  ProgressStore
	logger *zap.Logger
	locks  *userLocks
	now    func() time.Time
}

func NewCoach(engine *ProgressEngine, store ProgressStore, logger *zap.Logger) *Coach {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coach{
		engine: engine,
		store:  store,
		logger: logger,
		locks:  newUserLocks(),
		now:    time.Now,
	}
}

// HandleText evaluates one free-text message and returns the reply. The
// record is persisted before the reply is returned, except for learners who
// already finished the curriculum.
func (c *Coach) HandleText(ctx context.Context, userID int64, text string) (string, error) {
	unlock := c.locks.lock(userID)
	defer unlock()

	record, err := c.load(ctx, userID)
	if err != nil {
		return "", err
	}

	before := record.State(c.engine.TotalStages())
	result, err := c.engine.Process(ctx, record, text)
	if errors.Is(err, models.ErrInvalidState) {
		c.logger.Warn("progress record rejected by engine, reinitialising",
			zap.Int64("user_id", userID), zap.Error(err))
		metrics.ObserveRecordReset("invalid")
		record = models.NewProgressRecord(userID)
		before = fsm.StateQuizPending
		result, err = c.engine.Process(ctx, record, text)
	}
	if err != nil {
		return "", fmt.Errorf("process message for user %d: %w", userID, err)
	}

	result.Record.UserID = userID
	if result.Transition != fsm.TransitionCompletedAck {
		result.Record.UpdatedAt = c.now()
		if err := c.store.Save(ctx, result.Record); err != nil {
			return "", fmt.Errorf("save progress for user %d: %w", userID, err)
		}
	}

	metrics.ObserveTransition(result.Transition)
	c.logger.Info("message processed",
		zap.Int64("user_id", userID),
		zap.String("from", before),
		zap.String("to", result.Record.State(c.engine.TotalStages())),
		zap.String("transition", result.Transition),
		zap.Int("stage", result.Record.Stage),
		zap.Int("non_tech", result.Record.NonTechnicalStreak),
	)

	return result.Response, nil
}

// Prompt returns the text telling the learner what to send next.
func (c *Coach) Prompt(ctx context.Context, userID int64) (string, error) {
	record, err := c.Progress(ctx, userID)
	if err != nil {
		return "", err
	}
	return c.engine.Prompt(record)
}

// Progress returns the learner's record, or a fresh one for unknown and
// unreadable records. Nothing is written.
func (c *Coach) Progress(ctx context.Context, userID int64) (*models.ProgressRecord, error) {
	unlock := c.locks.lock(userID)
	defer unlock()
	return c.load(ctx, userID)
}

// Reset deletes the learner's record. The next message starts from stage 0.
func (c *Coach) Reset(ctx context.Context, userID int64) error {
	unlock := c.locks.lock(userID)
	defer unlock()

	if err := c.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("reset progress for user %d: %w", userID, err)
	}
	metrics.ObserveRecordReset("admin")
	c.logger.Info("progress reset", zap.Int64("user_id", userID))
	return nil
}

// Learners lists every learner with a stored record.
func (c *Coach) Learners(ctx context.Context) ([]int64, error) {
	ids, err := c.store.UserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list learners: %w", err)
	}
	return ids, nil
}

// TotalStages is the number of stages in the curriculum.
func (c *Coach) TotalStages() int {
	return c.engine.TotalStages()
}

func (c *Coach) load(ctx context.Context, userID int64) (*models.ProgressRecord, error) {
	record, err := c.store.Load(ctx, userID)
	switch {
	case err == nil:
		return record, nil
	case errors.Is(err, models.ErrProgressNotFound):
		return models.NewProgressRecord(userID), nil
	case errors.Is(err, models.ErrInvalidState):
		c.logger.Warn("stored progress record is invalid, reinitialising",
			zap.Int64("user_id", userID), zap.Error(err))
		metrics.ObserveRecordReset("invalid")
		return models.NewProgressRecord(userID), nil
	default:
		return nil, fmt.Errorf("load progress for user %d: %w", userID, err)
	}
}

type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*userLock)}
}

func (l *userLocks) lock(userID int64) func() {
	l.mu.Lock()
	entry, ok := l.locks[userID]
	if !ok {
		entry = &userLock{}
		l.locks[userID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
