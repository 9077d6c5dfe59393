package db

import (
	"context"
	"errors"
	"testing"

	"github.com/ad/go-python-coach/internal/models"
)

func TestLessonRepository_SaveAndLoad(t *testing.T) {
	repo, sqlDB, cleanup := setupTestDB(t)
	defer cleanup()
	lessons := NewLessonRepository(repo.queue)
	ctx := context.Background()

	if _, err := lessons.Load(ctx, 2); !errors.Is(err, models.ErrLessonNotFound) {
		t.Fatalf("Expected ErrLessonNotFound, got %v", err)
	}

	if err := lessons.Save(ctx, 2, "درس شیءگرایی"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := lessons.Save(ctx, 2, "درس شیءگرایی، نسخه دوم"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	content, err := lessons.Load(ctx, 2)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if content != "درس شیءگرایی، نسخه دوم" {
		t.Errorf("Expected overwritten lesson, got %q", content)
	}

	var rows int
	if err := sqlDB.QueryRow(`SELECT COUNT(*) FROM lessons`).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("Expected one cached lesson, got %d", rows)
	}
	if err := sqlDB.QueryRow(`SELECT COUNT(*) FROM progress`).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 0 {
		t.Errorf("Lesson cache must not write progress rows, got %d", rows)
	}
}
