package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/libelia/libelia/internal/model"
)

const keyPrefix = "job:"

// RedisStore keeps each job as a JSON value under "job:<id>".
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore. A non-positive ttl selects DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Create(ctx context.Context) (*model.Job, error) {
	job := newJob()
	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	if err := s.client.Set(ctx, keyPrefix+job.ID, data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.Job, error) {
	return s.get(ctx, s.client, id)
}

// Update applies u inside an optimistic transaction so concurrent writers
// cannot skip a transition.
func (s *RedisStore) Update(ctx context.Context, id string, u Update) (*model.Job, error) {
	key := keyPrefix + id
	var updated *model.Job
	txf := func(tx *redis.Tx) error {
		job, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := apply(job, u); err != nil {
			return err
		}
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err == nil {
			updated = job
		}
		return err
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("update job %s: too much contention", id)
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, c getter, id string) (*model.Job, error) {
	data, err := c.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}
