// Package engine coordinates group registration, polling, dispatch and the response path.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ibs-source/stream-consumer/internal/codec"
	"github.com/ibs-source/stream-consumer/internal/config"
	"github.com/ibs-source/stream-consumer/internal/log"
	"github.com/ibs-source/stream-consumer/internal/message"
	"github.com/ibs-source/stream-consumer/internal/metrics"
	"github.com/ibs-source/stream-consumer/internal/registry"
)

// ErrNoStreams is returned by Run when no stream could be registered
var ErrNoStreams = errors.New("no streams to consume")

// Options configures an Engine. Zero values disable the optional parts.
type Options struct {
	Group    string
	Consumer string

	DeleteAfterAck bool
	WriteTimeout   time.Duration // Per registration, publish, ack and delete
	MaxInFlight    int           // Concurrent handlers; 0 is unbounded

	ClaimInterval       time.Duration
	CleanupInterval     time.Duration
	ConsumerIdleTimeout time.Duration

	Serializer   codec.Serializer
	Deserializer codec.Deserializer
	Mirror       Mirror
	Maintainer   Maintainer
	Metrics      *metrics.Metrics
}

// OptionsFromConfig maps the loaded configuration onto engine options.
// Codecs, mirror, maintainer and metrics are left for the caller to set.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Group:               cfg.Redis.Group,
		Consumer:            cfg.Redis.Consumer,
		DeleteAfterAck:      cfg.Redis.DeleteAfterAck,
		WriteTimeout:        cfg.Pipeline.WriteTimeout,
		MaxInFlight:         cfg.Pipeline.MaxInFlight,
		ClaimInterval:       cfg.Redis.ClaimInterval,
		CleanupInterval:     cfg.Redis.CleanupInterval,
		ConsumerIdleTimeout: cfg.Redis.ConsumerIdleTimeout,
	}
}

// Engine consumes every stream of a handler table through one consumer group
type Engine struct {
	table      *registry.Table
	reader     Reader
	opts       Options
	registrar  *Registrar
	responder  *Responder
	dispatcher *Dispatcher
	log        *log.Logger

	loops   sync.WaitGroup
	mu      sync.Mutex
	streams []string
}

// New creates an engine. reader serves the blocking reads and store every
// other command, so they are expected to sit on separate connections.
func New(reader Reader, store Store, table *registry.Table, opts Options, logger *log.Logger) *Engine {
	e := &Engine{
		table:     table,
		reader:    reader,
		opts:      opts,
		registrar: NewRegistrar(store, opts.Group, opts.WriteTimeout, logger, opts.Metrics),
		responder: NewResponder(store, opts, logger),
		log:       logger,
	}
	e.dispatcher = NewDispatcher(table, opts, e.responder.Respond, logger)
	return e
}

// Streams returns the streams Run registered, in lookup order
func (e *Engine) Streams() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.streams))
	copy(out, e.streams)
	return out
}

// startLoop starts a loop goroutine and reports non-canceled errors
func (e *Engine) startLoop(
	ctx context.Context,
	name string,
	loop func(context.Context) error,
	errCh chan<- error,
) {
	e.loops.Add(1)
	go func() {
		defer e.loops.Done()
		if err := loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("%s loop error: %w", name, err)
		}
	}()
}

// Run registers the group on every stream and consumes until ctx is done or
// a loop fails. It returns without waiting for a read blocked on the server:
// call Drain, close the reader connection, then Wait.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("Starting stream consumer (group=%s, consumer=%s, streams=%d)",
		e.opts.Group, e.opts.Consumer, e.table.Len())

	streams, err := e.registrar.Register(ctx, e.table.Streams())
	if err != nil {
		return err
	}
	if len(streams) == 0 {
		return ErrNoStreams
	}
	if skipped := e.table.Len() - len(streams); skipped > 0 {
		e.log.Warn("%d of %d streams could not be registered and will not be consumed", skipped, e.table.Len())
	}

	e.mu.Lock()
	e.streams = streams
	e.mu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)
	poller := NewPoller(e.reader, streams, e.dispatcher.Dispatch, e.log, e.opts.Metrics)
	e.startLoop(loopCtx, "poll", poller.Run, errCh)

	if e.opts.Maintainer != nil && e.opts.ClaimInterval > 0 {
		e.startLoop(loopCtx, "claim", e.claimLoop, errCh)
	}
	if e.opts.Maintainer != nil && e.opts.CleanupInterval > 0 {
		e.startLoop(loopCtx, "cleanup", e.cleanupLoop, errCh)
	}

	select {
	case <-ctx.Done():
		e.log.Info("Shutting down stream consumer")
		return ctx.Err()
	case err := <-errCh:
		e.log.Error("Stream consumer error: %v", err)
		return err
	}
}

// Drain waits for in-flight entries, see Dispatcher.Drain
func (e *Engine) Drain(timeout time.Duration) error {
	return e.dispatcher.Drain(timeout)
}

// Wait blocks until every loop started by Run has returned
func (e *Engine) Wait() {
	e.loops.Wait()
}

// claimLoop periodically takes over entries left idle by other consumers
func (e *Engine) claimLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			batch, err := e.opts.Maintainer.ClaimIdle(ctx, e.Streams())
			if err != nil {
				e.log.Error("Failed to claim idle entries: %v", err)
				continue
			}
			if batch.Len() == 0 {
				continue
			}

			e.log.Info("Claimed %d idle entries", batch.Len())
			e.recordClaimed(batch)
			e.dispatcher.Dispatch(ctx, batch)
		}
	}
}

func (e *Engine) recordClaimed(batch message.Batch) {
	for _, s := range batch.Streams {
		e.opts.Metrics.Claimed(s.Stream, len(s.Entries))
		e.opts.Metrics.Consumed(s.Stream, len(s.Entries))
	}
}

// cleanupLoop periodically removes dead consumers from the consumer group
func (e *Engine) cleanupLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.opts.Maintainer.CleanupDeadConsumers(ctx, e.Streams(), e.opts.ConsumerIdleTimeout)
		}
	}
}
