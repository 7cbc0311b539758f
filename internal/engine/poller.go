package engine

import (
	"context"
	"fmt"

	"github.com/ibs-source/stream-consumer/internal/log"
	"github.com/ibs-source/stream-consumer/internal/message"
	"github.com/ibs-source/stream-consumer/internal/metrics"
)

// Poller runs the blocking read loop. One read is in flight at a time.
type Poller struct {
	reader   Reader
	streams  []string
	dispatch func(context.Context, message.Batch)
	log      *log.Logger
	metrics  *metrics.Metrics
}

// NewPoller creates a poller over streams handing every batch to dispatch
func NewPoller(
	reader Reader,
	streams []string,
	dispatch func(context.Context, message.Batch),
	logger *log.Logger,
	m *metrics.Metrics,
) *Poller {
	return &Poller{reader: reader, streams: streams, dispatch: dispatch, log: logger, metrics: m}
}

// Run reads until ctx is done or a read fails. A failed read stops the loop
// for good: it returns the error instead of retrying.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("Polling %d streams: %v", len(p.streams), p.streams)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := p.reader.ReadGroup(ctx, p.streams)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			p.log.Error("Failed to read from streams: %v", err)
			p.metrics.Failed("", metrics.StageRead)
			return fmt.Errorf("read failed: %w", err)
		}

		// Entries delivered during shutdown stay pending for this consumer
		if err := ctx.Err(); err != nil {
			if n := batch.Len(); n > 0 {
				p.log.Warn("Shutting down with %d undispatched entries left pending", n)
			}
			return err
		}

		if batch.Len() == 0 {
			continue
		}

		for _, s := range batch.Streams {
			p.metrics.Consumed(s.Stream, len(s.Entries))
		}
		p.log.Debug("Read %d entries from %d streams", batch.Len(), len(batch.Streams))

		p.dispatch(ctx, batch)
	}
}
