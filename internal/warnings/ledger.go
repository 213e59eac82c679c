// Package warnings tracks per-user moderation warning counts. The ledger is
// held in memory behind a single mutex and written through to a Persister
// after every mutation, so the on-disk (or in-Redis) snapshot never lags the
// in-memory state by more than one failed write.
package warnings

import (
	"context"
	"maps"
	"sync"

	"go.uber.org/zap"
)

// Persister loads and stores a full snapshot of the ledger. Save always
// overwrites the previous snapshot.
type Persister interface {
	Load(ctx context.Context) (map[string]int, error)
	Save(ctx context.Context, counts map[string]int) error
}

// Ledger maps user IDs to warning counts. Counts only ever increase.
// All reads and writes go through mu, which also serializes persistence so
// concurrent writers cannot interleave snapshots.
type Ledger struct {
	mu     sync.Mutex
	counts map[string]int
	store  Persister
	logger *zap.Logger
}

// NewLedger builds a ledger from the persisted snapshot. A store that fails
// to load (missing, unreadable or corrupt) yields an empty ledger; the error
// is logged and never returned. A nil store keeps the ledger in memory only.
func NewLedger(ctx context.Context, store Persister, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		counts: make(map[string]int),
		store:  store,
		logger: logger,
	}
	if store == nil {
		return l
	}

	counts, err := store.Load(ctx)
	if err != nil {
		logger.Warn("failed to load warning store, starting with an empty ledger", zap.Error(err))
		return l
	}
	for userID, n := range counts {
		if n < 0 {
			logger.Warn("dropping negative warning count", zap.String("user_id", userID), zap.Int("count", n))
			continue
		}
		l.counts[userID] = n
	}
	logger.Info("warning ledger loaded", zap.Int("users", len(l.counts)))
	return l
}

// Increment adds one warning for userID, persists the ledger and returns the
// new count. A persistence failure is returned alongside the count: the
// in-memory increment is kept either way.
func (l *Ledger) Increment(ctx context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counts[userID]++
	n := l.counts[userID]
	return n, l.persistLocked(ctx)
}

// Count returns the current warning count for userID (0 if unknown).
func (l *Ledger) Count(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[userID]
}

// Snapshot returns a copy of the full ledger.
func (l *Ledger) Snapshot() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.counts)
}

// Flush persists the current ledger. Called at shutdown.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.persistLocked(ctx)
}

func (l *Ledger) persistLocked(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	return l.store.Save(ctx, maps.Clone(l.counts))
}
