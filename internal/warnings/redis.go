package warnings

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// LedgerKey is the Redis hash holding the ledger:
//
//	Key:   warnings
//	Field: <user id>
//	Value: <count>
const LedgerKey = "warnings"

// RedisStore persists the ledger as a Redis hash. It is an alternative to
// FileStore for deployments that run more than one bot replica against the
// same Redis.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a store writing to LedgerKey.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, key: LedgerKey}
}

// Load reads the hash. A missing key is an empty ledger.
func (s *RedisStore) Load(ctx context.Context) (map[string]int, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("warnings: redis hgetall: %w", err)
	}

	counts := make(map[string]int, len(raw))
	for userID, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("warnings: redis field %s: %w", userID, err)
		}
		counts[userID] = n
	}
	return counts, nil
}

// Save replaces the hash with counts inside a MULTI/EXEC so readers never
// observe a half-written snapshot.
func (s *RedisStore) Save(ctx context.Context, counts map[string]int) error {
	fields := make(map[string]interface{}, len(counts))
	for userID, n := range counts {
		fields[userID] = n
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	if len(fields) > 0 {
		pipe.HSet(ctx, s.key, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("warnings: redis save: %w", err)
	}
	return nil
}
