package engine

import (
	"context"
	"time"

	"github.com/ibs-source/stream-consumer/internal/codec"
	"github.com/ibs-source/stream-consumer/internal/message"
)

// Reader performs the blocking group read. Only the poll loop calls it.
type Reader interface {
	ReadGroup(ctx context.Context, streams []string) (message.Batch, error)
}

// Store performs every non-blocking write
type Store interface {
	EnsureGroup(ctx context.Context, stream string) (bool, error)
	Add(ctx context.Context, stream string, fields codec.Fields) (string, error)
	Ack(ctx context.Context, stream, id string) (int64, error)
	Delete(ctx context.Context, stream, id string) (int64, error)
}

// Maintainer recovers work left behind by other consumers
type Maintainer interface {
	ClaimIdle(ctx context.Context, streams []string) (message.Batch, error)
	CleanupDeadConsumers(ctx context.Context, streams []string, idleTimeout time.Duration) int
}

// Mirror receives every response after it was appended with id
type Mirror interface {
	Mirror(ctx context.Context, resp message.Response, id string) error
}

// withTimeout bounds a single store operation; d <= 0 means no bound
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
