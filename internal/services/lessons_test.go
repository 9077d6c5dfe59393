package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ad/go-python-coach/internal/curriculum"
	"github.com/ad/go-python-coach/internal/models"
)

type memLessonCache struct {
	mu      sync.Mutex
	lessons map[int]string
	loadErr error
}

func newMemLessonCache() *memLessonCache {
	return &memLessonCache{lessons: make(map[int]string)}
}

func (c *memLessonCache) Load(_ context.Context, stage int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadErr != nil {
		return "", c.loadErr
	}
	content, ok := c.lessons[stage]
	if !ok {
		return "", models.ErrLessonNotFound
	}
	return content, nil
}

func (c *memLessonCache) Save(_ context.Context, stage int, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lessons[stage] = content
	return nil
}

type fakeLessonWriter struct {
	calls int32
	err   error
}

func (w *fakeLessonWriter) WriteLesson(_ context.Context, stage int, stageName string) (string, error) {
	atomic.AddInt32(&w.calls, 1)
	if w.err != nil {
		return "", w.err
	}
	return "lesson for " + stageName, nil
}

func newTestLessons() (*LessonService, *memStore, *memLessonCache, *fakeLessonWriter) {
	coach, store, _ := newTestCoach()
	cache := newMemLessonCache()
	writer := &fakeLessonWriter{}
	return NewLessonService(coach, curriculum.Default(), cache, writer, nil), store, cache, writer
}

func TestLessonService_GeneratesOnceAndCaches(t *testing.T) {
	lessons, store, cache, writer := newTestLessons()
	ctx := context.Background()

	first, err := lessons.Lesson(ctx, 7)
	if err != nil {
		t.Fatalf("Lesson failed: %v", err)
	}
	if !strings.Contains(first, "lesson for پایه‌های پایتون") {
		t.Errorf("Expected stage 0 lesson, got %q", first)
	}
	if !strings.HasPrefix(first, "📚 درس مرحله 1: پایه‌های پایتون") {
		t.Errorf("Expected stage header, got %q", first)
	}

	second, err := lessons.Lesson(ctx, 8)
	if err != nil {
		t.Fatalf("Lesson failed: %v", err)
	}
	if second != first {
		t.Errorf("Expected cached lesson, got %q", second)
	}
	if calls := atomic.LoadInt32(&writer.calls); calls != 1 {
		t.Errorf("Expected one generation, got %d", calls)
	}
	if cache.lessons[0] != "lesson for پایه‌های پایتون" {
		t.Errorf("Expected raw lesson in cache, got %q", cache.lessons[0])
	}
	if store.saves != 0 || store.get(7) != nil {
		t.Errorf("Lessons must not write progress, got %d saves", store.saves)
	}
}

func TestLessonService_FollowsLearnerStage(t *testing.T) {
	lessons, store, _, _ := newTestLessons()
	record := models.NewProgressRecord(3)
	record.Stage = 2
	record.SubmittedLinks = []string{validLink, validLink}
	store.records[3] = record

	text, err := lessons.Lesson(context.Background(), 3)
	if err != nil {
		t.Fatalf("Lesson failed: %v", err)
	}
	want := "lesson for " + curriculum.Default().StageName(2)
	if !strings.Contains(text, want) {
		t.Errorf("Expected %q in %q", want, text)
	}
	if store.saves != 0 {
		t.Errorf("Lessons must not write progress, got %d saves", store.saves)
	}
}

func TestLessonService_FailuresAreNotCached(t *testing.T) {
	lessons, _, cache, writer := newTestLessons()
	boom := errors.New("rate limited")
	writer.err = boom

	_, err := lessons.Lesson(context.Background(), 1)
	if !errors.Is(err, ErrLessonGeneration) || !errors.Is(err, boom) {
		t.Fatalf("Expected wrapped generation error, got %v", err)
	}
	if len(cache.lessons) != 0 {
		t.Errorf("Failed lessons must not be cached, got %v", cache.lessons)
	}

	writer.err = nil
	if _, err := lessons.Lesson(context.Background(), 1); err != nil {
		t.Fatalf("Lesson failed after recovery: %v", err)
	}
	if calls := atomic.LoadInt32(&writer.calls); calls != 2 {
		t.Errorf("Expected a new generation after failure, got %d calls", calls)
	}
}

func TestLessonService_CacheReadErrorFallsBackToWriter(t *testing.T) {
	lessons, _, cache, writer := newTestLessons()
	cache.loadErr = errors.New("database is locked")

	if _, err := lessons.Lesson(context.Background(), 1); err != nil {
		t.Fatalf("Lesson failed: %v", err)
	}
	if calls := atomic.LoadInt32(&writer.calls); calls != 1 {
		t.Errorf("Expected generation on cache failure, got %d calls", calls)
	}
}

func TestLessonService_FinishedLearner(t *testing.T) {
	lessons, store, _, writer := newTestLessons()
	done := models.NewProgressRecord(5)
	done.Stage = 12
	for i := 0; i < 12; i++ {
		done.SubmittedLinks = append(done.SubmittedLinks, validLink)
	}
	store.records[5] = done

	text, err := lessons.Lesson(context.Background(), 5)
	if err != nil {
		t.Fatalf("Lesson failed: %v", err)
	}
	if text != MsgLessonsFinished {
		t.Errorf("Expected finished text, got %q", text)
	}
	if atomic.LoadInt32(&writer.calls) != 0 {
		t.Error("Finished learners must not trigger generation")
	}
}

func TestLessonService_ConcurrentMissesGenerateOnce(t *testing.T) {
	lessons, _, _, writer := newTestLessons()

	var wg sync.WaitGroup
	for i := int64(0); i < 10; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			if _, err := lessons.Lesson(context.Background(), userID); err != nil {
				t.Errorf("Lesson failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if calls := atomic.LoadInt32(&writer.calls); calls != 1 {
		t.Errorf("Expected one generation, got %d", calls)
	}
}
