package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ibs-source/stream-consumer/internal/message"
)

// defaultClaimCount bounds XPENDING when no batch size is configured
const defaultClaimCount = 100

// ClaimIdle takes over pending entries that other consumers left idle for
// longer than the configured claim idle time. Per-stream failures are logged
// and skipped.
func (c *Client) ClaimIdle(ctx context.Context, streams []string) (message.Batch, error) {
	var batch message.Batch

	for _, stream := range streams {
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		pending, err := c.getPendingMessages(ctx, stream)
		if err != nil {
			c.log.Warn("failed to get pending messages for stream %s: %v", stream, err)
			continue
		}
		if len(pending) == 0 {
			continue
		}

		claimed, err := c.claimMessages(ctx, stream, pending)
		if err != nil {
			c.log.Warn("failed to claim messages for stream %s: %v", stream, err)
			continue
		}
		if len(claimed) == 0 {
			continue
		}

		batch.Streams = append(batch.Streams, message.StreamEntries{
			Stream:  stream,
			Entries: toEntries(claimed),
		})
	}

	return batch, nil
}

func (c *Client) getPendingMessages(ctx context.Context, stream string) ([]redis.XPendingExt, error) {
	count := c.batchSize
	if count <= 0 {
		count = defaultClaimCount
	}

	pending, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  c.group,
		Idle:   c.claimIdle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xpending failed: %w", err)
	}

	// Entries already owned by this consumer are still being handled here
	foreign := pending[:0]
	for _, p := range pending {
		if p.Consumer != c.consumer {
			foreign = append(foreign, p)
		}
	}
	return foreign, nil
}

func (c *Client) claimMessages(
	ctx context.Context, stream string, pending []redis.XPendingExt,
) ([]redis.XMessage, error) {
	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.ID
	}

	claimed, err := c.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  c.claimIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim failed: %w", err)
	}

	return claimed, nil
}
