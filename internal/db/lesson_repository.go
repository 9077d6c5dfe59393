package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ad/go-python-coach/internal/models"
)

// LessonRepository caches generated lesson text per stage in the lessons
// table. It never touches progress rows.
type LessonRepository struct {
	queue *DBQueue
}

func NewLessonRepository(queue *DBQueue) *LessonRepository {
	return &LessonRepository{queue: queue}
}

func (r *LessonRepository) Load(ctx context.Context, stage int) (string, error) {
	result, err := r.queue.Execute(ctx, func(ctx context.Context, db *sql.DB) (interface{}, error) {
		var content string
		err := db.QueryRowContext(ctx, `SELECT content FROM lessons WHERE stage = ?`, stage).Scan(&content)
		return content, err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", models.ErrLessonNotFound
	}
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (r *LessonRepository) Save(ctx context.Context, stage int, content string) error {
	_, err := r.queue.Execute(ctx, func(ctx context.Context, db *sql.DB) (interface{}, error) {
		_, err := db.ExecContext(ctx, `
			INSERT INTO lessons (stage, content) VALUES (?, ?)
			ON CONFLICT(stage) DO UPDATE SET content = excluded.content, created_at = CURRENT_TIMESTAMP
		`, stage, content)
		return nil, err
	})
	return err
}
