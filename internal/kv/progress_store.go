// Package kv stores progress records in Redis: one JSON value per learner
// under "user:<id>" and the set "users" listing every learner seen so far.
package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ad/go-python-coach/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	PrefixUser = "user:"
	KeyUsers   = "users"
)

var ErrConnection = errors.New("kv: connection failed")

// ProgressStore implements progress persistence on top of a Redis client.
type ProgressStore struct {
	client      *redis.Client
	totalStages int
}

// Open parses a redis:// or rediss:// URL, connects and pings the server.
func Open(ctx context.Context, url string, totalStages int) (*ProgressStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse KV_URL: %w", err)
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	return NewProgressStore(client, totalStages), nil
}

func NewProgressStore(client *redis.Client, totalStages int) *ProgressStore {
	return &ProgressStore{client: client, totalStages: totalStages}
}

func UserKey(userID int64) string {
	return PrefixUser + strconv.FormatInt(userID, 10)
}

func (s *ProgressStore) Load(ctx context.Context, userID int64) (*models.ProgressRecord, error) {
	data, err := s.client.Get(ctx, UserKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrProgressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", UserKey(userID), err)
	}

	record, err := models.ParseProgressRecord(data, s.totalStages)
	if err != nil {
		return nil, err
	}
	if record.UserID != userID {
		return nil, &models.InvalidStateError{UserID: userID, Reason: fmt.Sprintf("stored under user %d", record.UserID)}
	}
	return record, nil
}

// Save writes the record and registers the learner in the users set in one
// transaction.
func (s *ProgressStore) Save(ctx context.Context, record *models.ProgressRecord) error {
	data, err := record.ToJSON()
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, UserKey(record.UserID), data, 0)
		pipe.SAdd(ctx, KeyUsers, record.UserID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", UserKey(record.UserID), err)
	}
	return nil
}

func (s *ProgressStore) Delete(ctx context.Context, userID int64) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, UserKey(userID))
		pipe.SRem(ctx, KeyUsers, userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", UserKey(userID), err)
	}
	return nil
}

func (s *ProgressStore) UserIDs(ctx context.Context) ([]int64, error) {
	members, err := s.client.SMembers(ctx, KeyUsers).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", KeyUsers, err)
	}
	return ParseUserIDs(members)
}

// Client returns the underlying Redis client.
func (s *ProgressStore) Client() *redis.Client {
	return s.client
}

func (s *ProgressStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *ProgressStore) Close() error {
	return s.client.Close()
}

// ParseUserIDs converts set members to sorted learner ids.
func ParseUserIDs(members []string) ([]int64, error) {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid member %q in %s: %w", m, KeyUsers, err)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
