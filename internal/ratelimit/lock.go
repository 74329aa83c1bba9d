package ratelimit

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrRunLockUnavailable = errors.New("run_lock_unavailable")
	ErrRunLockKey         = errors.New("run_lock_invalid_key")
)

// releaseIfOwner deletes the key only while it still carries the caller's
// token, so a run that outlived its ttl cannot free a newer holder's lock.
const releaseIfOwner = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RunLock keeps catalog jobs such as normalization to one replica at a time.
// Tokens are "<host>/<uuid>" so Holder can name the replica holding a key.
type RunLock struct {
	client  *redis.Client
	release *redis.Script
	owner   string
}

// NewRunLock returns nil without a redis client; callers then rely on their
// in-process serialization.
func NewRunLock(client *redis.Client) *RunLock {
	if client == nil {
		return nil
	}
	owner, err := os.Hostname()
	if err != nil || strings.TrimSpace(owner) == "" {
		owner = "quicksearch"
	}
	return &RunLock{
		client:  client,
		release: redis.NewScript(releaseIfOwner),
		owner:   owner,
	}
}

// TryLock reports ok=false when another holder has key.
func (l *RunLock) TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	if l == nil || l.client == nil {
		return "", false, ErrRunLockUnavailable
	}
	if strings.TrimSpace(key) == "" || ttl <= 0 {
		return "", false, ErrRunLockKey
	}

	token = l.owner + "/" + uuid.NewString()
	ok, err = l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *RunLock) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{key}, token).Err()
}

// Holder returns the host part of the token currently stored under key, or ""
// when the key is free.
func (l *RunLock) Holder(ctx context.Context, key string) (string, error) {
	if l == nil || l.client == nil {
		return "", ErrRunLockUnavailable
	}
	token, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return holderOf(token), nil
}

func holderOf(token string) string {
	if i := strings.LastIndex(token, "/"); i > 0 {
		return token[:i]
	}
	return token
}
