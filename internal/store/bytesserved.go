package store

import "context"

const bytesServedKey = "file_bytes_served_total"

// BytesServedCounter accumulates total bytes streamed by the file
// download endpoint in Redis, independent of the in-process Prometheus
// counter, so the figure survives a process restart.
type BytesServedCounter struct {
	redis *Redis
}

func NewBytesServedCounter(r *Redis) *BytesServedCounter {
	return &BytesServedCounter{redis: r}
}

// Add records n more bytes served.
func (c *BytesServedCounter) Add(ctx context.Context, n int64) error {
	return c.redis.IncrBy(ctx, bytesServedKey, n)
}
