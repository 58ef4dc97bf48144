// Package redisbox provides a Redis-backed mailbox.Backend for workers that
// run on hosts without access to the coordinator's state directory.
//
// Each recipient owns three keys:
//
//	{prefix}:{recipient}:index    -- sorted set of message IDs, priority then time
//	{prefix}:{recipient}:expiry   -- sorted set of message IDs scored by expiry
//	{prefix}:{recipient}:messages -- hash of message ID to JSON body
//
// Expired messages are pruned on every Fetch.
package redisbox

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/mailbox"
	"github.com/Iron-Ham/foreman/internal/task"
)

// DefaultPrefix namespaces all keys written by a Backend.
const DefaultPrefix = "foreman:mailbox"

// Backend stores messages in Redis.
type Backend struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ mailbox.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(b *Backend) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// WithClock overrides the time source used for pruning.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// New wraps an existing client.
func New(client redis.UniversalClient, opts ...Option) *Backend {
	b := &Backend{client: client, prefix: DefaultPrefix, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr, password string, opts ...Option) (*Backend, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:           []string{addr},
		Password:        password,
		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: time.Second,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolSize:        10,
		MinIdleConns:    2,
		ConnMaxIdleTime: 5 * time.Minute,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "redisbox: ping %s", addr)
	}
	return New(client, opts...), nil
}

// Close releases the underlying client.
func (b *Backend) Close() error {
	return b.client.Close()
}

func (b *Backend) key(recipient, suffix string) string {
	return b.prefix + ":" + recipient + ":" + suffix
}

// score orders higher priorities first and, within a priority, earlier
// messages first. Millisecond timestamps stay below 1e13 until the year 2286.
func score(p task.Priority, sentAt time.Time) float64 {
	return float64(task.PriorityCritical-p)*1e13 + float64(sentAt.UnixMilli())
}

// Put stores msg under its recipient.
func (b *Backend) Put(ctx context.Context, msg mailbox.Message) error {
	if msg.To == "" {
		return errors.New("redisbox: message To field is required")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "redisbox: marshal message")
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, b.key(msg.To, "messages"), msg.ID, data)
		pipe.ZAdd(ctx, b.key(msg.To, "index"), redis.Z{Score: score(msg.Priority, msg.SentAt), Member: msg.ID})
		if !msg.ExpiresAt.IsZero() {
			pipe.ZAdd(ctx, b.key(msg.To, "expiry"), redis.Z{Score: float64(msg.ExpiresAt.UnixMilli()), Member: msg.ID})
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "redisbox: put message")
	}
	return nil
}

// Fetch prunes expired messages for recipient and returns the rest in
// index order.
func (b *Backend) Fetch(ctx context.Context, recipient string) ([]mailbox.Message, error) {
	if recipient == "" {
		return nil, errors.New("redisbox: recipient is required")
	}
	if err := b.prune(ctx, recipient); err != nil {
		return nil, err
	}

	ids, err := b.client.ZRange(ctx, b.key(recipient, "index"), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redisbox: read index")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	bodies, err := b.client.HMGet(ctx, b.key(recipient, "messages"), ids...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redisbox: read messages")
	}

	messages := make([]mailbox.Message, 0, len(bodies))
	for _, body := range bodies {
		s, ok := body.(string)
		if !ok {
			// Index entry without a body: removed between ZRANGE and HMGET.
			continue
		}
		var msg mailbox.Message
		if err := json.Unmarshal([]byte(s), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (b *Backend) prune(ctx context.Context, recipient string) error {
	expiryKey := b.key(recipient, "expiry")
	cutoff := strconv.FormatInt(b.now().UnixMilli(), 10)
	expired, err := b.client.ZRangeByScore(ctx, expiryKey, &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
	if err != nil {
		return errors.Wrap(err, "redisbox: read expiry")
	}
	if len(expired) == 0 {
		return nil
	}

	members := make([]any, len(expired))
	for i, id := range expired {
		members[i] = id
	}
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, b.key(recipient, "index"), members...)
		pipe.ZRem(ctx, expiryKey, members...)
		pipe.HDel(ctx, b.key(recipient, "messages"), expired...)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "redisbox: prune expired")
	}
	return nil
}
