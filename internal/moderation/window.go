package moderation

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window tracks how many messages a user sent recently. Record appends one
// message at the given time and returns the number of messages in the
// window, including this one.
type Window interface {
	Record(ctx context.Context, userID string, at time.Time) (int, error)
}

// MemoryWindow keeps per-user timestamps in memory and prunes entries older
// than the span on every append. Users whose window has emptied are dropped
// at most once per span.
type MemoryWindow struct {
	mu        sync.Mutex
	span      time.Duration
	times     map[string][]time.Time
	lastSweep time.Time
}

// NewMemoryWindow creates a MemoryWindow covering span.
func NewMemoryWindow(span time.Duration) *MemoryWindow {
	return &MemoryWindow{
		span:  span,
		times: make(map[string][]time.Time),
	}
}

// Record implements Window.
func (w *MemoryWindow) Record(_ context.Context, userID string, at time.Time) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := at.Add(-w.span)
	if at.Sub(w.lastSweep) >= w.span {
		w.sweepLocked(cutoff)
		w.lastSweep = at
	}

	kept := prune(append(w.times[userID], at), cutoff)
	if len(kept) == 0 {
		delete(w.times, userID)
		return 0, nil
	}
	w.times[userID] = kept
	return len(kept), nil
}

// sweepLocked deletes every user with nothing left in the window.
func (w *MemoryWindow) sweepLocked(cutoff time.Time) {
	for userID, ts := range w.times {
		if kept := prune(ts, cutoff); len(kept) == 0 {
			delete(w.times, userID)
		} else {
			w.times[userID] = kept
		}
	}
}

func prune(ts []time.Time, cutoff time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// RedisWindowPrefix is the key prefix for per-user message counters.
const RedisWindowPrefix = "rl:msg:"

// RedisWindow counts messages with the INCR + EXPIRE fixed-window
// algorithm, so replicas sharing a Redis see the same per-user counts.
// The window starts at a user's first message and resets after span.
type RedisWindow struct {
	client *redis.Client
	span   time.Duration
}

// NewRedisWindow creates a RedisWindow covering span.
func NewRedisWindow(client *redis.Client, span time.Duration) *RedisWindow {
	return &RedisWindow{client: client, span: span}
}

// Record implements Window. On Redis errors it returns 0 with the error; the
// window is only a signal, so callers treat that as "no burst".
func (w *RedisWindow) Record(ctx context.Context, userID string, _ time.Time) (int, error) {
	key := RedisWindowPrefix + userID

	count, err := w.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	// On the first increment, set the expiry to define the window boundary.
	if count == 1 {
		if err := w.client.Expire(ctx, key, w.span).Err(); err != nil {
			// Without a TTL the counter would never reset.
			w.client.Del(ctx, key)
			return 0, err
		}
	}
	return int(count), nil
}
