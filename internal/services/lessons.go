package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ad/go-python-coach/internal/models"
	"go.uber.org/zap"
)

// LessonCache stores generated lesson text per stage. Load returns
// models.ErrLessonNotFound for stages that were never cached.
type LessonCache interface {
	Load(ctx context.Context, stage int) (string, error)
	Save(ctx context.Context, stage int, content string) error
}

// LessonWriter produces the lesson text for one stage.
type LessonWriter interface {
	WriteLesson(ctx context.Context, stage int, stageName string) (string, error)
}

// ErrLessonGeneration wraps writer failures returned by LessonService.Lesson.
var ErrLessonGeneration = errors.New("lesson generation failed")

const (
	MsgLessonsFinished = "🎉 همه درس‌های دوره را گذرانده‌اید. سوال فنی دارید؟ بپرسید."
	msgLessonHeader    = "📚 درس مرحله %d: %s\n\n%s"
)

// LessonService serves the lesson for a learner's current stage. Lessons are
// generated once per stage and then read from the cache. Progress records
// are only read.
type LessonService struct {
	coach   *Coach
	catalog StageCatalog
	cache   LessonCache
	writer  LessonWriter
	logger  *zap.Logger
	locks   *userLocks
}

func NewLessonService(coach *Coach, catalog StageCatalog, cache LessonCache, writer LessonWriter, logger *zap.Logger) *LessonService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LessonService{
		coach:   coach,
		catalog: catalog,
		cache:   cache,
		writer:  writer,
		logger:  logger,
		locks:   newUserLocks(),
	}
}

// Lesson returns the lesson text for the learner's current stage, or
// MsgLessonsFinished once the curriculum is done.
func (s *LessonService) Lesson(ctx context.Context, userID int64) (string, error) {
	record, err := s.coach.Progress(ctx, userID)
	if err != nil {
		return "", err
	}
	if record.Stage >= s.catalog.Len() {
		return MsgLessonsFinished, nil
	}

	content, err := s.StageLesson(ctx, record.Stage)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(msgLessonHeader, record.Stage+1, s.catalog.StageName(record.Stage), content), nil
}

// StageLesson returns the cached lesson for stage, generating and caching it
// on a miss. Concurrent misses for one stage share a single generation.
func (s *LessonService) StageLesson(ctx context.Context, stage int) (string, error) {
	unlock := s.locks.lock(int64(stage))
	defer unlock()

	content, err := s.cache.Load(ctx, stage)
	if err == nil {
		return content, nil
	}
	if !errors.Is(err, models.ErrLessonNotFound) {
		s.logger.Warn("lesson cache read failed", zap.Int("stage", stage), zap.Error(err))
	}

	content, err = s.writer.WriteLesson(ctx, stage, s.catalog.StageName(stage))
	if err != nil {
		return "", fmt.Errorf("%w: stage %d: %w", ErrLessonGeneration, stage, err)
	}

	if err := s.cache.Save(ctx, stage, content); err != nil {
		s.logger.Warn("lesson cache write failed", zap.Int("stage", stage), zap.Error(err))
	}
	s.logger.Info("lesson generated", zap.Int("stage", stage), zap.Int("length", len([]rune(content))))
	return content, nil
}
