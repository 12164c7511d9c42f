// Package notify announces committed level changes to downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/growth/internal/domain/model"
	"github.com/okian/growth/pkg/logger"
)

// Defaults for the Redis notifier.
const (
	DefaultStream       = "growth:levels"
	DefaultStreamMaxLen = 10000
	channelFormat       = "growth:%s:level.changed"
	connectTimeout      = 5 * time.Second
)

// Event is one committed level change.
type Event struct {
	Org       model.Key `json:"org"`
	Applicant model.Key `json:"applicant"`
	Mint      model.Key `json:"mint"`
	From      []int     `json:"from"`
	To        []int     `json:"to"`
	URI       string    `json:"uri,omitempty"`
	Path      string    `json:"path"`
	Timestamp int64     `json:"timestamp"`
}

// Levels converts a level vector for an Event; byte slices would encode as base64.
func Levels(v []uint8) []int {
	out := make([]int, len(v))
	for i, l := range v {
		out[i] = int(l)
	}
	return out
}

// Channel is the pub/sub channel for events of org.
func Channel(org model.Key) string {
	return fmt.Sprintf(channelFormat, org)
}

// Notifier receives level changes. Delivery is best effort.
type Notifier interface {
	LevelChanged(ctx context.Context, ev Event)
	Close() error
}

// Nop discards every event.
type Nop struct{}

// LevelChanged implements Notifier.
func (Nop) LevelChanged(context.Context, Event) {}

// Close implements Notifier.
func (Nop) Close() error { return nil }

// Client is the subset of the Redis client the notifier calls.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// Redis publishes every event on the organization's channel and appends it
// to a capped stream.
type Redis struct {
	client       Client
	stream       string
	streamMaxLen int64
	logger       logger.Logger
}

// Option configures a Redis notifier.
type Option func(*Redis)

// WithStream sets the stream name and its approximate cap (0 = unlimited).
func WithStream(name string, maxLen int64) Option {
	return func(r *Redis) {
		if name != "" {
			r.stream = name
		}
		if maxLen >= 0 {
			r.streamMaxLen = maxLen
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Redis) {
		if l != nil {
			r.logger = l
		}
	}
}

// Dial connects to the Redis server at addr and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  connectTimeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	n := NewRedis(rdb, opts...)
	n.logger.Info(ctx, "connected to redis", logger.String("addr", addr), logger.Int("db", db))
	return n, nil
}

// NewRedis wraps an existing client.
func NewRedis(client Client, opts ...Option) *Redis {
	r := &Redis{
		client:       client,
		stream:       DefaultStream,
		streamMaxLen: DefaultStreamMaxLen,
		logger:       logger.Get().Named("notify"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LevelChanged implements Notifier. Failures are logged, never returned.
func (r *Redis) LevelChanged(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.Warn(ctx, "encode level event", logger.Error(err))
		return
	}
	channel := Channel(ev.Org)
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		r.logger.Warn(ctx, "publish level event",
			logger.String("channel", channel),
			logger.Error(err),
		)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"org":       ev.Org.String(),
			"applicant": ev.Applicant.String(),
			"levels":    levelString(ev.To),
			"path":      ev.Path,
			"payload":   string(payload),
		},
	}
	if r.streamMaxLen > 0 {
		args.MaxLen = r.streamMaxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		r.logger.Warn(ctx, "append level event",
			logger.String("stream", r.stream),
			logger.Error(err),
		)
	}
}

func levelString(v []int) string {
	b := make([]uint8, len(v))
	for i, l := range v {
		b[i] = uint8(l)
	}
	return model.LevelString(b)
}

// Close closes the client.
func (r *Redis) Close() error { return r.client.Close() }
