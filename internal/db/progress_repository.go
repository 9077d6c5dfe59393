package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ad/go-python-coach/internal/models"
)

// ProgressRepository stores progress records in the progress table.
type ProgressRepository struct {
	queue       *DBQueue
	totalStages int
}

func NewProgressRepository(queue *DBQueue, totalStages int) *ProgressRepository {
	return &ProgressRepository{queue: queue, totalStages: totalStages}
}

func (r *ProgressRepository) Save(ctx context.Context, record *models.ProgressRecord) error {
	links, err := json.Marshal(record.SubmittedLinks)
	if err != nil {
		return fmt.Errorf("encode submitted links: %w", err)
	}
	if record.SubmittedLinks == nil {
		links = []byte("[]")
	}

	_, err = r.queue.Execute(ctx, func(ctx context.Context, db *sql.DB) (interface{}, error) {
		_, err := db.ExecContext(ctx, `
			INSERT INTO progress (user_id, stage, non_tech_streak, submitted_links, quiz_passed, awaiting_link, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				stage = excluded.stage,
				non_tech_streak = excluded.non_tech_streak,
				submitted_links = excluded.submitted_links,
				quiz_passed = excluded.quiz_passed,
				awaiting_link = excluded.awaiting_link,
				updated_at = excluded.updated_at
		`, record.UserID, record.Stage, record.NonTechnicalStreak, string(links), record.QuizPassed, record.AwaitingLink, record.UpdatedAt)
		return nil, err
	})
	return err
}

func (r *ProgressRepository) Load(ctx context.Context, userID int64) (*models.ProgressRecord, error) {
	result, err := r.queue.Execute(ctx, func(ctx context.Context, db *sql.DB) (interface{}, error) {
		row := db.QueryRowContext(ctx, `
			SELECT user_id, stage, non_tech_streak, submitted_links, quiz_passed, awaiting_link, updated_at
			FROM progress WHERE user_id = ?
		`, userID)

		var record models.ProgressRecord
		var links string
		var updatedAt sql.NullTime
		err := row.Scan(&record.UserID, &record.Stage, &record.NonTechnicalStreak, &links, &record.QuizPassed, &record.AwaitingLink, &updatedAt)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(links), &record.SubmittedLinks); err != nil {
			return nil, &models.InvalidStateError{UserID: userID, Reason: fmt.Sprintf("decode submitted links: %v", err)}
		}
		if updatedAt.Valid {
			record.UpdatedAt = updatedAt.Time
		}
		if err := record.Validate(r.totalStages); err != nil {
			return nil, err
		}
		return &record, nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrProgressNotFound
	}
	if err != nil {
		return nil, err
	}
	return result.(*models.ProgressRecord), nil
}

func (r *ProgressRepository) Delete(ctx context.Context, userID int64) error {
	_, err := r.queue.Execute(ctx, func(ctx context.Context, db *sql.DB) (interface{}, error) {
		_, err := db.ExecContext(ctx, `DELETE FROM progress WHERE user_id = ?`, userID)
		return nil, err
	})
	return err
}

func (r *ProgressRepository) UserIDs(ctx context.Context) ([]int64, error) {
	result, err := r.queue.Execute(ctx, func(ctx context.Context, db *sql.DB) (interface{}, error) {
		rows, err := db.QueryContext(ctx, `SELECT user_id FROM progress ORDER BY created_at, user_id`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]int64), nil
}

func (r *ProgressRepository) Ping(ctx context.Context) error {
	return r.queue.DB().PingContext(ctx)
}
