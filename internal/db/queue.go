package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/ad/go-python-coach/internal/models"
)

// DBTask is one unit of work run by the queue worker against the database.
type DBTask struct {
	Ctx  context.Context
	Exec func(context.Context, *sql.DB) (interface{}, error)
	Resp chan DBResult
}

// ErrQueueClosed is returned by Execute once Close has been called.
var ErrQueueClosed = errors.New("db queue closed")

type DBResult struct {
	Data interface{}
	Err  error
}

// DBQueue funnels every statement through a single worker so SQLite sees
// one writer at a time. Failed tasks are retried with a linear backoff.
type DBQueue struct {
	tasks      chan DBTask
	done       chan struct{}
	closeOnce  sync.Once
	db         *sql.DB
	maxRetry   int
	retryDelay time.Duration
	testMode   bool
}

func NewDBQueue(db *sql.DB) *DBQueue {
	q := &DBQueue{
		tasks:      make(chan DBTask, 100),
		done:       make(chan struct{}),
		db:         db,
		maxRetry:   3,
		retryDelay: 100 * time.Millisecond,
	}
	go q.worker()
	return q
}

func NewDBQueueForTest(db *sql.DB) *DBQueue {
	q := &DBQueue{
		tasks:      make(chan DBTask, 100),
		done:       make(chan struct{}),
		db:         db,
		maxRetry:   3,
		retryDelay: 1 * time.Millisecond,
		testMode:   true,
	}
	go q.worker()
	return q
}

// Execute runs task on the worker and waits for its result or for ctx to
// be done, whichever comes first.
func (q *DBQueue) Execute(ctx context.Context, task func(context.Context, *sql.DB) (interface{}, error)) (interface{}, error) {
	select {
	case <-q.done:
		return nil, ErrQueueClosed
	default:
	}

	resp := make(chan DBResult, 1)
	select {
	case q.tasks <- DBTask{Ctx: ctx, Exec: task, Resp: resp}:
	case <-q.done:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case result := <-resp:
		return result.Data, result.Err
	case <-q.done:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *DBQueue) worker() {
	for {
		select {
		case <-q.done:
			return
		case task := <-q.tasks:
			task.Resp <- q.executeWithRetry(task)
		}
	}
}

func (q *DBQueue) executeWithRetry(task DBTask) DBResult {
	var lastErr error
	for attempt := 0; attempt < q.maxRetry; attempt++ {
		if err := task.Ctx.Err(); err != nil {
			return DBResult{Err: err}
		}
		data, err := task.Exec(task.Ctx, q.db)
		if err == nil {
			return DBResult{Data: data}
		}
		if !retryable(err) {
			return DBResult{Err: err}
		}
		lastErr = err
		if attempt < q.maxRetry-1 {
			if q.testMode {
				time.Sleep(q.retryDelay)
			} else {
				time.Sleep(time.Duration(attempt+1) * q.retryDelay)
			}
		}
	}
	return DBResult{Err: lastErr}
}

// retryable reports whether err is worth another attempt. Missing rows,
// undecodable records and caller cancellation are final.
func retryable(err error) bool {
	return !errors.Is(err, sql.ErrNoRows) &&
		!errors.Is(err, models.ErrInvalidState) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// Close stops the worker. It is safe to call more than once, and Execute
// calls made afterwards fail with ErrQueueClosed.
func (q *DBQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

func (q *DBQueue) DB() *sql.DB {
	return q.db
}
