package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ibs-source/stream-consumer/internal/codec"
	"github.com/ibs-source/stream-consumer/internal/log"
	"github.com/ibs-source/stream-consumer/internal/message"
	"github.com/ibs-source/stream-consumer/internal/metrics"
	"github.com/ibs-source/stream-consumer/internal/registry"
)

// ErrDrainTimeout is returned by Drain when in-flight entries outlive the timeout
var ErrDrainTimeout = errors.New("drain timed out")

// Dispatcher runs every entry of a batch on its own goroutine.
// Entries never wait for one another; a failing entry only affects itself.
type Dispatcher struct {
	table       *registry.Table
	group       string
	consumer    string
	deserialize codec.Deserializer
	respond     func(context.Context, message.Outcome, *message.Context)
	collectFor  time.Duration
	sem         *semaphore.Weighted
	log         *log.Logger
	metrics     *metrics.Metrics

	mu       sync.Mutex
	stopped  bool
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// NewDispatcher creates a dispatcher. opts.MaxInFlight <= 0 means unbounded.
func NewDispatcher(
	table *registry.Table,
	opts Options,
	respond func(context.Context, message.Outcome, *message.Context),
	logger *log.Logger,
) *Dispatcher {
	d := &Dispatcher{
		table:       table,
		group:       opts.Group,
		consumer:    opts.Consumer,
		deserialize: opts.Deserializer,
		respond:     respond,
		collectFor:  opts.WriteTimeout,
		log:         logger,
		metrics:     opts.Metrics,
	}
	if d.deserialize == nil {
		d.deserialize = codec.Deserialize
	}
	if opts.MaxInFlight > 0 {
		d.sem = semaphore.NewWeighted(int64(opts.MaxInFlight))
	}
	return d
}

// Dispatch starts one task per entry and returns without waiting for them.
// With a concurrency limit it blocks until a slot frees up or ctx is done;
// entries it could not start stay pending.
func (d *Dispatcher) Dispatch(ctx context.Context, batch message.Batch) {
	for _, s := range batch.Streams {
		for _, entry := range s.Entries {
			if !d.start(ctx, s.Stream, entry) {
				return
			}
		}
	}
}

// InFlight returns the number of entries currently being processed
func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// Drain stops accepting entries and waits up to timeout for running ones.
// A timeout <= 0 waits indefinitely.
func (d *Dispatcher) Drain(timeout time.Duration) error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s with %d entries in flight", ErrDrainTimeout, timeout, d.InFlight())
	}
}

func (d *Dispatcher) start(ctx context.Context, stream string, entry message.Entry) bool {
	if d.sem != nil {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			d.log.ForStream(stream).Warnf("Dispatch interrupted, entry %s stays pending: %v", entry.ID, err)
			return false
		}
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		d.release()
		d.log.ForStream(stream).Debugf("Dispatcher drained, entry %s stays pending", entry.ID)
		return false
	}
	d.wg.Add(1)
	d.mu.Unlock()

	d.inFlight.Add(1)
	d.metrics.InFlight(1)

	// Running work outlives the poll context so shutdown can drain it
	taskCtx := context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		defer d.release()
		defer func() {
			d.inFlight.Add(-1)
			d.metrics.InFlight(-1)
		}()
		d.process(taskCtx, stream, entry)
	}()
	return true
}

func (d *Dispatcher) release() {
	if d.sem != nil {
		d.sem.Release(1)
	}
}

// process runs deserialize, handler and response for one entry
func (d *Dispatcher) process(ctx context.Context, stream string, entry message.Entry) {
	mc := &message.Context{
		Stream:   stream,
		ID:       entry.ID,
		Group:    d.group,
		Consumer: d.consumer,
	}
	logger := d.log.ForMessage(mc)

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Handler panicked, entry stays pending: %v\n%s", r, debug.Stack())
			d.metrics.Failed(stream, metrics.StageHandler)
		}
	}()

	handler, ok := d.table.Lookup(stream)
	if !ok {
		logger.Error("No handler registered for stream, entry stays pending")
		d.metrics.Failed(stream, metrics.StageDispatch)
		return
	}

	payload, err := d.deserialize(entry, mc)
	if err != nil {
		logger.Errorf("Failed to deserialize entry, it stays pending: %v", err)
		d.metrics.Failed(stream, metrics.StageDeserialize)
		return
	}

	started := time.Now()
	outcome, err := handler(ctx, payload, mc)
	if err != nil {
		logger.Errorf("Handler failed, entry stays pending: %v", err)
		d.metrics.Failed(stream, metrics.StageHandler)
		return
	}

	outcome, err = d.collect(ctx, outcome)
	if err != nil {
		logger.Errorf("Failed to collect handler responses, entry stays pending: %v", err)
		d.metrics.Failed(stream, metrics.StageHandler)
		return
	}
	d.metrics.Handled(stream, outcome.Kind().String(), time.Since(started))

	d.respond(ctx, outcome.Stamp(mc), mc)
}

// collect drains a streamed outcome within the write timeout
func (d *Dispatcher) collect(ctx context.Context, outcome message.Outcome) (message.Outcome, error) {
	ctx, cancel := withTimeout(ctx, d.collectFor)
	defer cancel()
	return outcome.Collect(ctx)
}
