package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linesage/linesage/internal/models"
)

const redisKeyPrefix = "session:"

// RedisStore persists sessions as JSON documents in Redis. Optimistic
// concurrency rides on WATCH: a competing writer between read and commit
// aborts the transaction and surfaces as ErrConcurrentTurn.
type RedisStore struct {
	client     *redis.Client
	maxHistory int
}

func NewRedisStore(client *redis.Client, maxHistory int) *RedisStore {
	return &RedisStore{client: client, maxHistory: maxHistory}
}

func key(id string) string { return redisKeyPrefix + id }

func (r *RedisStore) Create(ctx context.Context, ownerID, issueCode string) (*models.Session, error) {
	s := newSession(ownerID, issueCode)
	if err := r.write(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*models.Session, error) {
	data, err := r.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}

	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("session decode: %w", err)
	}
	migrate(&s)
	return &s, nil
}

func (r *RedisStore) AppendTurn(ctx context.Context, id string, turn models.Turn, expectedCount int) (*models.Session, error) {
	var updated *models.Session

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var s models.Session
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("session decode: %w", err)
		}
		migrate(&s)
		if s.ConversationCount != expectedCount {
			return ErrConcurrentTurn
		}
		applyTurn(&s, turn, r.maxHistory)

		payload, err := json.Marshal(&s)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(id), payload, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = &s
		return nil
	}

	if err := r.client.Watch(ctx, txn, key(id)); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return nil, ErrConcurrentTurn
		}
		return nil, err
	}
	return updated, nil
}

func (r *RedisStore) End(ctx context.Context, id string) error {
	return r.mutate(ctx, id, func(s *models.Session) {
		s.Status = models.SessionEnded
		s.UpdatedAt = time.Now().UTC()
	})
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, key(id)).Result()
	if err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisStore) SweepExpired(ctx context.Context, now time.Time, idleTimeout time.Duration) (int, error) {
	ended := 0
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		id := iter.Val()[len(redisKeyPrefix):]
		s, err := r.Get(ctx, id)
		if err != nil {
			continue
		}
		if s.Status == models.SessionActive && now.Sub(s.UpdatedAt) > idleTimeout {
			if err := r.End(ctx, id); err == nil {
				ended++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return ended, fmt.Errorf("session sweep: %w", err)
	}
	return ended, nil
}

func (r *RedisStore) ActiveCount(ctx context.Context) (int, error) {
	n := 0
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		id := iter.Val()[len(redisKeyPrefix):]
		s, err := r.Get(ctx, id)
		if err != nil {
			continue
		}
		if s.Status == models.SessionActive {
			n++
		}
	}
	if err := iter.Err(); err != nil {
		return n, fmt.Errorf("session count: %w", err)
	}
	return n, nil
}

func (r *RedisStore) mutate(ctx context.Context, id string, apply func(*models.Session)) error {
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var s models.Session
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("session decode: %w", err)
		}
		migrate(&s)
		apply(&s)

		payload, err := json.Marshal(&s)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(id), payload, 0)
			return nil
		})
		return err
	}
	return r.client.Watch(ctx, txn, key(id))
}

func (r *RedisStore) write(ctx context.Context, s *models.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key(s.ID), payload, 0).Err(); err != nil {
		return fmt.Errorf("session write: %w", err)
	}
	return nil
}
