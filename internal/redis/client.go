// Package redis provides Redis stream operations and consumer group management.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ibs-source/stream-consumer/internal/codec"
	"github.com/ibs-source/stream-consumer/internal/config"
	"github.com/ibs-source/stream-consumer/internal/log"
	"github.com/ibs-source/stream-consumer/internal/message"
)

// Client wraps one Redis connection pool bound to a consumer group
type Client struct {
	rdb          *redis.Client
	name         string
	group        string
	consumer     string
	batchSize    int64
	blockTimeout time.Duration
	claimIdle    time.Duration
	pingTimeout  time.Duration
	log          *log.Logger
}

// NewClient creates a Redis client without contacting the server.
// name identifies the connection in logs (reader or writer).
func NewClient(cfg *config.RedisConfig, name string, logger *log.Logger) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		// No automatic retries: a broken connection is reported, not hidden
		MaxRetries: -1,
	})

	return &Client{
		rdb:          rdb,
		name:         name,
		group:        cfg.Group,
		consumer:     cfg.Consumer,
		batchSize:    int64(cfg.BatchSize),
		blockTimeout: cfg.BlockTimeout,
		claimIdle:    cfg.ClaimIdle,
		pingTimeout:  cfg.PingTimeout,
		log:          logger,
	}
}

// Name returns the connection role
func (c *Client) Name() string {
	return c.name
}

// Group returns the consumer group name
func (c *Client) Group() string {
	return c.group
}

// Consumer returns this instance's consumer name
func (c *Client) Consumer() string {
	return c.consumer
}

// AddHook installs a go-redis hook on the connection
func (c *Client) AddHook(h redis.Hook) {
	c.rdb.AddHook(h)
}

// Ping checks the connection within the configured ping timeout
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.pingTimeout)
	defer cancel()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis (%s): %w", c.name, err)
	}
	return nil
}

// isGroupExists reports whether err is the BUSYGROUP reply to XGROUP CREATE
func isGroupExists(err error) bool {
	return redis.HasErrorPrefix(err, "BUSYGROUP")
}

// EnsureGroup creates the consumer group at the end of the stream, creating
// the stream when missing. It reports false when the group already existed.
func (c *Client) EnsureGroup(ctx context.Context, stream string) (bool, error) {
	err := c.rdb.XGroupCreateMkStream(ctx, stream, c.group, "$").Err()
	if err == nil {
		return true, nil
	}
	if isGroupExists(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to create consumer group %s for stream %s: %w", c.group, stream, err)
}

// ReadGroup blocks on XREADGROUP for new entries on all streams.
// An expired block interval yields an empty batch and no error.
func (c *Client) ReadGroup(ctx context.Context, streams []string) (message.Batch, error) {
	if len(streams) == 0 {
		return message.Batch{}, nil
	}

	// XREADGROUP takes every key first, then one id per key
	streamsArg := make([]string, 0, len(streams)*2)
	streamsArg = append(streamsArg, streams...)
	for range streams {
		streamsArg = append(streamsArg, ">")
	}

	result, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  streamsArg,
		Count:    c.batchSize,
		Block:    c.blockTimeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return message.Batch{}, nil
		}
		return message.Batch{}, fmt.Errorf("xreadgroup failed: %w", err)
	}

	return toBatch(result), nil
}

func toBatch(result []redis.XStream) message.Batch {
	batch := message.Batch{Streams: make([]message.StreamEntries, 0, len(result))}
	for _, s := range result {
		if len(s.Messages) == 0 {
			continue
		}
		batch.Streams = append(batch.Streams, message.StreamEntries{
			Stream:  s.Stream,
			Entries: toEntries(s.Messages),
		})
	}
	return batch
}

func toEntries(msgs []redis.XMessage) []message.Entry {
	entries := make([]message.Entry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, message.Entry{ID: m.ID, Values: m.Values})
	}
	return entries
}

// Add appends an entry with a store-assigned id and returns that id
func (c *Client) Add(ctx context.Context, stream string, fields codec.Fields) (string, error) {
	if fields.Len() == 0 {
		return "", fmt.Errorf("xadd to stream %s: no fields", stream)
	}

	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		// go-redis expands only the plain []string type into arguments
		Values: []string(fields),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd failed for stream %s: %w", stream, err)
	}
	return id, nil
}

// Ack acknowledges an entry. Acknowledging twice is not an error; the
// returned count is 0 the second time.
func (c *Client) Ack(ctx context.Context, stream, id string) (int64, error) {
	n, err := c.rdb.XAck(ctx, stream, c.group, id).Result()
	if err != nil {
		return 0, fmt.Errorf("xack failed for message %s in stream %s: %w", id, stream, err)
	}
	return n, nil
}

// Delete removes an entry from the stream. Deleting a missing entry returns 0.
func (c *Client) Delete(ctx context.Context, stream, id string) (int64, error) {
	n, err := c.rdb.XDel(ctx, stream, id).Result()
	if err != nil {
		return 0, fmt.Errorf("xdel failed for message %s in stream %s: %w", id, stream, err)
	}
	return n, nil
}

// Close closes the Redis client connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}
