package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces keys; defaults to "credledger:journal".
	Prefix string
}

// RedisStore keeps one JSON value per deploy plus a sorted index by
// submission time, so several operators can share a journal.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("journal: redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisStoreWithClient(client, opts.Prefix), nil
}

func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "credledger:journal"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(deploy string) string { return s.prefix + ":deploy:" + deploy }
func (s *RedisStore) index() string            { return s.prefix + ":index" }

// retry executes op with exponential backoff so a restarting Redis does not
// lose a journal write.
func retry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	const maxRetries = 3
	const initialBackoff = 100 * time.Millisecond

	var zero T
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(initialBackoff * time.Duration(1<<uint(attempt-1)))
			select {
			case <-ctx.Done():
				t.Stop()
				return zero, ctx.Err()
			case <-t.C:
			}
		}
		out, err := op()
		if err == nil || errors.Is(err, redis.Nil) {
			return out, err
		}
		lastErr = err
	}
	return zero, fmt.Errorf("journal: redis operation failed after %d retries: %w", maxRetries, lastErr)
}

func (s *RedisStore) Put(ctx context.Context, e Entry) error {
	if e.Deploy == "" {
		return errors.New("journal: entry has no deploy hash")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = retry(ctx, func() (struct{}, error) {
		pipe := s.client.TxPipeline()
		pipe.Set(ctx, s.key(e.Deploy), data, 0)
		pipe.ZAddNX(ctx, s.index(), redis.Z{Score: float64(e.SubmittedAt.UnixMilli()), Member: e.Deploy})
		_, err := pipe.Exec(ctx)
		return struct{}{}, err
	})
	return err
}

func (s *RedisStore) Get(ctx context.Context, deploy string) (Entry, error) {
	data, err := retry(ctx, func() ([]byte, error) {
		return s.client.Get(ctx, s.key(deploy)).Bytes()
	})
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("journal: decode %s: %w", deploy, err)
	}
	return e, nil
}

func (s *RedisStore) List(ctx context.Context) ([]Entry, error) {
	deploys, err := retry(ctx, func() ([]string, error) {
		return s.client.ZRange(ctx, s.index(), 0, -1).Result()
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make([]Entry, 0, len(deploys))
	for _, d := range deploys {
		e, err := s.Get(ctx, d)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
