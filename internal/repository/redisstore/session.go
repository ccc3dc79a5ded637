// Package redisstore stores browser sessions in Redis so several instances of
// the web client can serve the same browser.
//
// Each session is a JSON string under "<prefix><id>" whose TTL is the idle
// timeout; every successful Update pushes the TTL out again. Expiry is left
// to Redis, so Sweep has nothing to do.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/bookshelf/internal/apperror"
	"github.com/sakif/bookshelf/internal/model"
	"github.com/sakif/bookshelf/internal/repository"
)

const (
	DefaultKeyPrefix = "bookshelf:session:"
	maxUpdateRetries = 5
)

var _ repository.SessionRepository = (*SessionStore)(nil)

type SessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewSessionStore connects to addr and pings it. ttl is the idle timeout;
// zero keeps sessions until deleted.
func NewSessionStore(addr string, db int, ttl time.Duration) (*SessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: pinging %s: %w", addr, err)
	}
	return &SessionStore{client: client, prefix: DefaultKeyPrefix, ttl: ttl}, nil
}

func (s *SessionStore) key(id string) string { return s.prefix + id }

func (s *SessionStore) Create(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("redis: encoding session %s: %w", session.ID, err)
	}

	ok, err := s.client.SetNX(ctx, s.key(session.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: creating session: %w", err)
	}
	if !ok {
		return apperror.Conflict("session", session.ID)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*model.Session, error) {
	return s.load(ctx, s.client, id)
}

// Update runs fn inside an optimistic WATCH/MULTI transaction. If another
// writer touches the key first the whole read-modify-write is retried, and
// after maxUpdateRetries the update fails with a Conflict.
func (s *SessionStore) Update(ctx context.Context, id string, fn repository.MutateFunc) (*model.Session, error) {
	key := s.key(id)
	var result *model.Session

	txf := func(tx *redis.Tx) error {
		session, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(session); err != nil {
			return err
		}
		session.ID = id
		session.UpdatedAt = time.Now()

		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("redis: encoding session %s: %w", id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		result = session
		return nil
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, apperror.Conflict("session", id)
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("redis: deleting session: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("session", id)
	}
	return nil
}

// Sweep is a no-op: idle sessions expire through their TTL.
func (s *SessionStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *SessionStore) Close() error {
	return s.client.Close()
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *SessionStore) load(ctx context.Context, c getter, id string) (*model.Session, error) {
	data, err := c.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, apperror.NotFound("session", id)
	}
	if err != nil {
		return nil, fmt.Errorf("redis: getting session: %w", err)
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("redis: decoding session %s: %w", id, err)
	}
	return &session, nil
}
