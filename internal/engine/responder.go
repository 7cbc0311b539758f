package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ibs-source/stream-consumer/internal/codec"
	"github.com/ibs-source/stream-consumer/internal/log"
	"github.com/ibs-source/stream-consumer/internal/message"
	"github.com/ibs-source/stream-consumer/internal/metrics"
)

// Responder turns a handler outcome into publishes and an acknowledgement
type Responder struct {
	store          Store
	serialize      codec.Serializer
	mirror         Mirror
	deleteAfterAck bool
	timeout        time.Duration
	log            *log.Logger
	metrics        *metrics.Metrics
}

// NewResponder creates a responder writing through store
func NewResponder(store Store, opts Options, logger *log.Logger) *Responder {
	r := &Responder{
		store:          store,
		serialize:      opts.Serializer,
		mirror:         opts.Mirror,
		deleteAfterAck: opts.DeleteAfterAck,
		timeout:        opts.WriteTimeout,
		log:            logger,
		metrics:        opts.Metrics,
	}
	if r.serialize == nil {
		r.serialize = codec.Serialize
	}
	return r
}

// Respond applies outcome to the message identified by mc.
// Absent leaves the message pending. AckOnly acknowledges it.
// PublishThenAck publishes every response concurrently and acknowledges
// only when all of them were written.
func (r *Responder) Respond(ctx context.Context, outcome message.Outcome, mc *message.Context) {
	logger := r.log.ForMessage(mc)

	switch outcome.Kind() {
	case message.Absent:
		logger.Debug("Handler returned no outcome, entry stays pending")
		return
	case message.AckOnly:
	case message.PublishThenAck:
		if err := r.publishAll(ctx, outcome.Responses()); err != nil {
			logger.Errorf("Failed to publish responses, entry stays pending: %v", err)
			return
		}
	default:
		logger.Errorf("Unknown outcome kind %d, entry stays pending", outcome.Kind())
		return
	}

	if err := r.acknowledge(ctx, mc); err != nil {
		logger.Error(err)
	}
}

// publishAll waits for every publish, successful or not, and returns the first error
func (r *Responder) publishAll(ctx context.Context, responses []message.Response) error {
	var g errgroup.Group
	for _, resp := range responses {
		resp := resp
		g.Go(func() error {
			return r.publish(ctx, resp)
		})
	}
	return g.Wait()
}

// publish appends one response to its target stream, then mirrors it
func (r *Responder) publish(ctx context.Context, resp message.Response) error {
	fields, err := r.serialize(resp.Payload, resp.Source)
	if err != nil {
		r.metrics.Failed(resp.Stream, metrics.StagePublish)
		return fmt.Errorf("failed to serialize response for %s: %w", resp.Stream, err)
	}

	opCtx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	id, err := r.store.Add(opCtx, resp.Stream, fields)
	if err != nil {
		r.metrics.Failed(resp.Stream, metrics.StagePublish)
		return fmt.Errorf("failed to append response to %s: %w", resp.Stream, err)
	}
	r.metrics.Published(resp.Stream)

	if r.mirror == nil {
		return nil
	}
	if err := r.mirror.Mirror(opCtx, resp, id); err != nil {
		r.metrics.Failed(resp.Stream, metrics.StagePublish)
		return fmt.Errorf("failed to mirror response %s/%s: %w", resp.Stream, id, err)
	}
	return nil
}

// acknowledge sends XACK and, when configured, XDEL. A zero count means the
// entry was already settled and is not an error.
func (r *Responder) acknowledge(ctx context.Context, mc *message.Context) error {
	ackCtx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.store.Ack(ackCtx, mc.Stream, mc.ID)
	if err != nil {
		r.metrics.Failed(mc.Stream, metrics.StageAck)
		return fmt.Errorf("failed to acknowledge entry: %w", err)
	}
	if n == 0 {
		r.log.ForMessage(mc).Debug("Entry was already acknowledged")
	}
	r.metrics.Acked(mc.Stream)

	if !r.deleteAfterAck {
		return nil
	}

	delCtx, cancelDel := withTimeout(ctx, r.timeout)
	defer cancelDel()

	if _, err := r.store.Delete(delCtx, mc.Stream, mc.ID); err != nil {
		r.metrics.Failed(mc.Stream, metrics.StageDelete)
		return fmt.Errorf("failed to delete acknowledged entry: %w", err)
	}
	r.metrics.Deleted(mc.Stream)
	return nil
}
