// Package supervisor owns the reader and writer Redis connections and turns
// any connection fault into a full, one-shot shutdown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ibs-source/stream-consumer/internal/config"
	"github.com/ibs-source/stream-consumer/internal/log"
	"github.com/ibs-source/stream-consumer/internal/metrics"
	"github.com/ibs-source/stream-consumer/internal/redis"
)

// ErrConnectionFault wraps the first connection error seen by either connection
var ErrConnectionFault = errors.New("redis connection fault")

// Connection roles
const (
	Reader = "reader"
	Writer = "writer"
)

// Supervisor holds the two connections. Reads block on the reader only;
// everything else goes through the writer.
type Supervisor struct {
	reader  *redis.Client
	writer  *redis.Client
	log     *log.Logger
	metrics *metrics.Metrics

	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	mu  sync.Mutex
	err error
}

// New opens both connections, installs the fault hooks and pings each one.
// m may be nil.
func New(ctx context.Context, cfg *config.RedisConfig, logger *log.Logger, m *metrics.Metrics) (*Supervisor, error) {
	s := &Supervisor{
		reader:  redis.NewClient(cfg, Reader, logger),
		writer:  redis.NewClient(cfg, Writer, logger),
		log:     logger,
		metrics: m,
		done:    make(chan struct{}),
	}

	s.reader.AddHook(faultHook{conn: Reader, s: s})
	s.writer.AddHook(faultHook{conn: Writer, s: s})

	for _, c := range []*redis.Client{s.reader, s.writer} {
		if err := c.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
	}

	logger.Info("Connected to Redis at %s (group=%s consumer=%s)", cfg.Address, cfg.Group, cfg.Consumer)
	return s, nil
}

// Reader returns the connection reserved for blocking reads
func (s *Supervisor) Reader() *redis.Client {
	return s.reader
}

// Writer returns the connection used for every non-blocking command
func (s *Supervisor) Writer() *redis.Client {
	return s.writer
}

// Done is closed once both connections are closed, by fault or by Close
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Err returns the fault that stopped the supervisor, or nil after a clean Close
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Fault records a connection error and shuts everything down.
// Only the first fault is kept; faults after shutdown began are ignored.
func (s *Supervisor) Fault(conn string, err error) {
	if s.closing.Load() {
		return
	}

	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	s.err = fmt.Errorf("%w: %s connection: %w", ErrConnectionFault, conn, err)
	s.mu.Unlock()

	s.log.Error("Redis %s connection error, shutting down: %v", conn, err)
	s.metrics.Fault()
	_ = s.Close()
}

// Watch pings both connections every interval until ctx is done or the
// supervisor stops. Failed pings go through the fault path.
func (s *Supervisor) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			for _, c := range []*redis.Client{s.reader, s.writer} {
				if err := c.Ping(ctx); err != nil {
					s.log.Warn("Health check failed on %s connection: %v", c.Name(), err)
				}
			}
		}
	}
}

// Close closes both connections. It is safe to call more than once.
func (s *Supervisor) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		if err := s.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close reader: %w", err))
		}
		if err := s.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer: %w", err))
		}
		close(s.done)
	})
	return errors.Join(errs...)
}
