package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/shashankrm11/malscan/internal/db"
)

// Get returns a cached verdict payload or db.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.do(ctx, s.b().Get().Key(key).Build()).AsBytes()
	switch {
	case rueidis.IsRedisNil(err):
		return nil, db.ErrKeyNotFound
	case err != nil:
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return data, nil
}

// SetWithTTL stores a payload that expires after ttl (SET EX).
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := s.b().Set().Key(key).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}

// IncrWithTTL increments a counter and gives it a ttl on first touch.
// INCR and EXPIRE NX go out in one DoMulti round-trip; later calls never
// extend the expiry.
func (s *Store) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	results := s.client.DoMulti(ctx,
		s.b().Incr().Key(key).Build(),
		s.b().Expire().Key(key).Seconds(int64(ttl.Seconds())).Nx().Build(),
	)
	n, err := results[0].AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpIncr, Err: fmt.Errorf("key %s: %w", key, err)}
	}
	if err := results[1].Error(); err != nil {
		return n, &db.Error{Op: db.OpExpire, Err: fmt.Errorf("key %s: %w", key, err)}
	}
	return n, nil
}

// GetCounters reads several counters with one MGET. Missing keys read as 0.
func (s *Store) GetCounters(ctx context.Context, keys ...string) ([]int64, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	msgs, err := s.do(ctx, s.b().Mget().Key(keys...).Build()).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpMGet, Err: err}
	}
	if len(msgs) != len(keys) {
		return nil, &db.Error{Op: db.OpMGet, Err: fmt.Errorf("got %d values for %d keys", len(msgs), len(keys))}
	}

	out := make([]int64, len(keys))
	for i := range msgs {
		if msgs[i].IsNil() {
			continue
		}
		v, err := msgs[i].AsInt64()
		if err != nil {
			return nil, &db.Error{Op: db.OpMGet, Err: fmt.Errorf("key %s: %w", keys[i], err)}
		}
		out[i] = v
	}
	return out, nil
}
