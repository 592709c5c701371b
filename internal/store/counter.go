package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const counterTTL = 30 * 24 * time.Hour

// CounterStore persists a client's own last-sent counter across restarts
// so reconnecting with the same long-term key pair does not trip
// StaleCounter against its own history (§9, "Counter initialisation").
// Optional: a client with no CounterStore configured falls back to the
// spec's default ephemeral behaviour (fresh counter each run).
type CounterStore struct {
	redis *Redis
}

func NewCounterStore(r *Redis) *CounterStore {
	return &CounterStore{redis: r}
}

func counterKey(fingerprint string) string {
	return fmt.Sprintf("counter:%s", fingerprint)
}

// Load returns the last-saved counter for fingerprint, or 0 if none is
// stored yet.
func (s *CounterStore) Load(ctx context.Context, fingerprint string) (uint64, error) {
	v, err := s.redis.Get(ctx, counterKey(fingerprint))
	if errors.Is(err, ErrNil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter store: corrupt value: %w", err)
	}
	return n, nil
}

// Save records counter as the new last-sent value.
func (s *CounterStore) Save(ctx context.Context, fingerprint string, counter uint64) error {
	return s.redis.Set(ctx, counterKey(fingerprint), strconv.FormatUint(counter, 10), counterTTL)
}
