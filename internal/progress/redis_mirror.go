package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisMirror publishes every appended event to a redis pub/sub channel
// so an external dashboard can tail a run without reading the
// filesystem directly. It is wired in only when --progress-redis-channel
// is set; a pipeline must complete correctly whether or not anything is
// subscribed on the other end.
type RedisMirror struct {
	rdb     *goredis.Client
	channel string
	timeout time.Duration
}

// NewRedisMirror dials addr and pings it once so misconfiguration is
// caught at startup rather than silently dropping every mirrored event.
func NewRedisMirror(addr, channel string) (*RedisMirror, error) {
	if channel == "" {
		return nil, fmt.Errorf("progress: redis mirror requires a channel name")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("progress: redis ping %s: %w", addr, err)
	}

	return &RedisMirror{rdb: rdb, channel: channel, timeout: 5 * time.Second}, nil
}

// Publish implements Mirror.
func (m *RedisMirror) Publish(e Event) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("progress: marshal event for redis mirror: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	return m.rdb.Publish(ctx, m.channel, raw).Err()
}

// Close releases the underlying redis client.
func (m *RedisMirror) Close() error {
	return m.rdb.Close()
}
