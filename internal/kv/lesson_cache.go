package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ad/go-python-coach/internal/models"
	"github.com/redis/go-redis/v9"
)

const PrefixLesson = "lesson:"

// LessonCache keeps generated lesson text under "lesson:<stage>". Entries do
// not expire.
type LessonCache struct {
	client *redis.Client
}

func NewLessonCache(client *redis.Client) *LessonCache {
	return &LessonCache{client: client}
}

func LessonKey(stage int) string {
	return PrefixLesson + strconv.Itoa(stage)
}

func (c *LessonCache) Load(ctx context.Context, stage int) (string, error) {
	content, err := c.client.Get(ctx, LessonKey(stage)).Result()
	if errors.Is(err, redis.Nil) {
		return "", models.ErrLessonNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", LessonKey(stage), err)
	}
	return content, nil
}

func (c *LessonCache) Save(ctx context.Context, stage int, content string) error {
	if err := c.client.Set(ctx, LessonKey(stage), content, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", LessonKey(stage), err)
	}
	return nil
}
