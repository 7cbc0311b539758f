package redis

import (
	"context"
	"fmt"
	"time"
)

// CleanupDeadConsumers removes consumers idle longer than idleTimeout from
// the group on every stream. This instance's own consumer is never removed.
// It returns the number of consumers deleted.
func (c *Client) CleanupDeadConsumers(ctx context.Context, streams []string, idleTimeout time.Duration) int {
	total := 0

	for _, stream := range streams {
		removed, err := c.cleanupDeadConsumersForStream(ctx, stream, idleTimeout)
		if err != nil {
			c.log.Warn("failed to cleanup dead consumers for stream %s: %v", stream, err)
			continue
		}
		total += removed
	}

	if total > 0 {
		c.log.Info("Cleaned up %d dead consumers", total)
	}

	return total
}

func (c *Client) cleanupDeadConsumersForStream(
	ctx context.Context, stream string, idleTimeout time.Duration,
) (int, error) {
	consumers, err := c.rdb.XInfoConsumers(ctx, stream, c.group).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get consumers info: %w", err)
	}

	var removed int

	for _, consumer := range consumers {
		if consumer.Name == c.consumer {
			continue
		}

		if consumer.Idle <= idleTimeout {
			c.log.Debug("Consumer %s on stream %s is active (idle for %s)", consumer.Name, stream, consumer.Idle)
			continue
		}

		// Pending entries of the removed consumer are dropped from the PEL,
		// so only consumers without pending work are deleted
		if consumer.Pending > 0 {
			c.log.Debug("Consumer %s on stream %s is idle but still owns %d pending entries",
				consumer.Name, stream, consumer.Pending)
			continue
		}

		c.log.Info("Removing dead consumer %s from stream %s (idle for %s)", consumer.Name, stream, consumer.Idle)
		if _, err := c.rdb.XGroupDelConsumer(ctx, stream, c.group, consumer.Name).Result(); err != nil {
			c.log.Error("Failed to delete consumer %s from stream %s: %v", consumer.Name, stream, err)
			continue
		}
		removed++
	}

	return removed, nil
}
