package cmd

import (
	"fmt"

	"github.com/cascadehq/cascade/pkg/lock"
	"github.com/redis/go-redis/v9"
)

// NewLocker builds the execution locker: Redis when a URL is given, the
// in-process store otherwise. Single-instance runs only for the latter.
func NewLocker(redisURL, owner string) (lock.Locker, error) {
	if redisURL == "" {
		return lock.NewMemoryStore().Locker(owner), nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	return lock.NewRedisLocker(redis.NewClient(opts), owner), nil
}
