package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ibs-source/stream-consumer/internal/log"
	"github.com/ibs-source/stream-consumer/internal/metrics"
)

// Registrar makes sure the consumer group exists on every registered stream
type Registrar struct {
	store   Store
	group   string
	timeout time.Duration
	log     *log.Logger
	metrics *metrics.Metrics
}

// NewRegistrar creates a registrar; timeout bounds each XGROUP CREATE
func NewRegistrar(store Store, group string, timeout time.Duration, logger *log.Logger, m *metrics.Metrics) *Registrar {
	return &Registrar{store: store, group: group, timeout: timeout, log: logger, metrics: m}
}

// Register ensures the group on all streams concurrently and returns the
// streams that are ready to be read, in input order. A stream that fails
// is logged and left out. Only cancellation of ctx fails the whole call.
func (r *Registrar) Register(ctx context.Context, streams []string) ([]string, error) {
	ok := make([]bool, len(streams))

	g, gctx := errgroup.WithContext(ctx)
	for i, stream := range streams {
		i, stream := i, stream
		g.Go(func() error {
			opCtx, cancel := withTimeout(gctx, r.timeout)
			defer cancel()

			created, err := r.store.EnsureGroup(opCtx, stream)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.log.ForStream(stream).Errorf("Failed to register consumer group %s: %v", r.group, err)
				r.metrics.Failed(stream, metrics.StageRegister)
				return nil
			}

			if created {
				r.log.ForStream(stream).Infof("Created consumer group %s", r.group)
			} else {
				r.log.ForStream(stream).Infof("Consumer group %s already exists, joining it", r.group)
			}
			ok[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("consumer group registration aborted: %w", err)
	}

	registered := make([]string, 0, len(streams))
	for i, stream := range streams {
		if ok[i] {
			registered = append(registered, stream)
		}
	}
	return registered, nil
}
