// Package dedup guarantees each gateway message is processed once, even
// across reconnect replays. Redis SET NX with a TTL is the primary
// mechanism; an in-memory table serves tests and Redis outages.
package dedup

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Deduper answers whether a message event is being seen for the first
// time. Edits are distinct events from the original message, and each
// distinct edit body is its own event: a message can be edited several
// times and every revision must reach the engine once.
type Deduper interface {
	FirstSeen(ctx context.Context, chatID, msgID int64, edited bool, text string) (bool, error)
}

func eventKey(chatID, msgID int64, edited bool, text string) string {
	suffix := "m"
	if edited {
		// keyed by content so a second edit is not mistaken for a
		// replay of the first
		sum := sha1.Sum([]byte(text))
		suffix = "e:" + hex.EncodeToString(sum[:4])
	}
	return fmt.Sprintf("sigbot:seen:%d:%d:%s", chatID, msgID, suffix)
}

// RedisDeduper marks events in Redis. When Redis is unreachable it
// degrades to the in-memory table instead of dropping or double-running
// messages.
type RedisDeduper struct {
	client   *redis.Client
	ttl      time.Duration
	fallback *MemoryDeduper
	log      zerolog.Logger
}

var _ Deduper = (*RedisDeduper)(nil)

func NewRedisDeduper(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisDeduper {
	return &RedisDeduper{
		client:   client,
		ttl:      ttl,
		fallback: NewMemoryDeduper(ttl),
		log:      logger,
	}
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, chatID, msgID int64, edited bool, text string) (bool, error) {
	key := eventKey(chatID, msgID, edited, text)
	ok, err := d.client.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		d.log.Warn().Err(err).Str("key", key).Msg("Redis dedup unavailable, using in-memory table")
		return d.fallback.FirstSeen(ctx, chatID, msgID, edited, text)
	}
	return ok, nil
}

// MemoryDeduper is a TTL-bounded in-process seen table.
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
}

var _ Deduper = (*MemoryDeduper)(nil)

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, seen: make(map[string]time.Time)}
}

func (d *MemoryDeduper) FirstSeen(_ context.Context, chatID, msgID int64, edited bool, text string) (bool, error) {
	key := eventKey(chatID, msgID, edited, text)
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if expiry, ok := d.seen[key]; ok && now.Before(expiry) {
		return false, nil
	}
	d.seen[key] = now.Add(d.ttl)

	// opportunistic sweep to keep the table bounded
	if len(d.seen) > 4096 {
		for k, exp := range d.seen {
			if now.After(exp) {
				delete(d.seen, k)
			}
		}
	}
	return true, nil
}
