// Package storage opens the configured progress store and its lesson cache.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ad/go-python-coach/internal/config"
	"github.com/ad/go-python-coach/internal/db"
	"github.com/ad/go-python-coach/internal/kv"
	"github.com/ad/go-python-coach/internal/services"
	_ "modernc.org/sqlite"
)

type Store interface {
	services.ProgressStore
	Lessons() services.LessonCache
	Ping(ctx context.Context) error
	Close() error
}

type sqliteStore struct {
	*db.ProgressRepository
	lessons *db.LessonRepository
	queue   *db.DBQueue
	sqlDB   *sql.DB
}

func (s *sqliteStore) Lessons() services.LessonCache {
	return s.lessons
}

func (s *sqliteStore) Close() error {
	s.queue.Close()
	return s.sqlDB.Close()
}

type redisStore struct {
	*kv.ProgressStore
	lessons *kv.LessonCache
}

func (s *redisStore) Lessons() services.LessonCache {
	return s.lessons
}

// Open connects to the backend selected by cfg.Store.
func Open(ctx context.Context, cfg config.Config, totalStages int) (Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		return OpenSQLite(cfg.DBPath, totalStages)
	case config.StoreRedis:
		store, err := kv.Open(ctx, cfg.KVURL, totalStages)
		if err != nil {
			return nil, err
		}
		return &redisStore{ProgressStore: store, lessons: kv.NewLessonCache(store.Client())}, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func OpenSQLite(path string, totalStages int) (Store, error) {
	sqlDB, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.InitSchema(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	queue := db.NewDBQueue(sqlDB)
	return &sqliteStore{
		ProgressRepository: db.NewProgressRepository(queue, totalStages),
		lessons:            db.NewLessonRepository(queue),
		queue:              queue,
		sqlDB:              sqlDB,
	}, nil
}
