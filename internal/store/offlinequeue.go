package store

import (
	"context"
	"fmt"
	"time"
)

const backlogTTL = 2 * time.Hour

// OfflineQueue buffers raw signed_data frames this server had nobody
// locally attached to deliver to at send time, keyed by this server's
// own address rather than by recipient fingerprint: for a private
// chat, the server never sees which of its local clients the envelope
// actually belongs to (that is exactly what hybrid encryption hides
// from it), so there is no per-recipient key to buffer under. Instead
// every newly-connecting local client replays the server's whole
// backlog and self-filters the same way it would for live traffic.
type OfflineQueue struct {
	redis *Redis
}

func NewOfflineQueue(r *Redis) *OfflineQueue {
	return &OfflineQueue{redis: r}
}

func backlogKey(serverAddress string) string {
	return fmt.Sprintf("backlog:%s", serverAddress)
}

// Push appends one raw frame to serverAddress's backlog.
func (q *OfflineQueue) Push(ctx context.Context, serverAddress string, raw []byte) error {
	key := backlogKey(serverAddress)
	if err := q.redis.RPush(ctx, key, raw); err != nil {
		return err
	}
	return q.redis.Expire(ctx, key, backlogTTL)
}

// Peek returns every frame currently buffered for serverAddress without
// clearing it, so every newly-connecting client can replay the same
// backlog until it expires.
func (q *OfflineQueue) Peek(ctx context.Context, serverAddress string) ([][]byte, error) {
	vals, err := q.redis.LRange(ctx, backlogKey(serverAddress))
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}
