package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ibs-source/stream-consumer/internal/codec"
	"github.com/ibs-source/stream-consumer/internal/log"
	"github.com/ibs-source/stream-consumer/internal/message"
	"github.com/ibs-source/stream-consumer/internal/registry"
)

var errStore = errors.New("simulated store error")

type addCall struct {
	Stream string
	Fields codec.Fields
}

// fakeStore records every write. ops keeps the global order as "cmd stream[/id]".
type fakeStore struct {
	mu        sync.Mutex
	groups    map[string]bool
	groupErr  map[string]error
	addErr    map[string]error
	ackErr    error
	adds      []addCall
	acks      []string
	deletes   []string
	ops       []string
	nextID    int
	addDelay  time.Duration
	groupCall atomic.Int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		groups:   make(map[string]bool),
		groupErr: make(map[string]error),
		addErr:   make(map[string]error),
	}
}

func (s *fakeStore) EnsureGroup(ctx context.Context, stream string) (bool, error) {
	s.groupCall.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.groupErr[stream]; err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s.groups[stream] {
		return false, nil
	}
	s.groups[stream] = true
	return true, nil
}

func (s *fakeStore) Add(_ context.Context, stream string, fields codec.Fields) (string, error) {
	if s.addDelay > 0 {
		time.Sleep(s.addDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adds = append(s.adds, addCall{Stream: stream, Fields: fields})
	s.ops = append(s.ops, "XADD "+stream)
	if err := s.addErr[stream]; err != nil {
		return "", err
	}
	s.nextID++
	return fmt.Sprintf("%d-0", s.nextID), nil
}

func (s *fakeStore) Ack(_ context.Context, stream, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "XACK "+stream+"/"+id)
	if s.ackErr != nil {
		return 0, s.ackErr
	}
	s.acks = append(s.acks, stream+"/"+id)
	return 1, nil
}

func (s *fakeStore) Delete(_ context.Context, stream, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "XDEL "+stream+"/"+id)
	s.deletes = append(s.deletes, stream+"/"+id)
	return 1, nil
}

func (s *fakeStore) Acks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.acks...)
}

func (s *fakeStore) Adds() []addCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]addCall(nil), s.adds...)
}

func (s *fakeStore) Deletes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deletes...)
}

func (s *fakeStore) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

// fakeReader serves scripted batches and blocks when none is queued
type fakeReader struct {
	batches chan message.Batch
	errs    chan error
	reads   atomic.Int32

	mu      sync.Mutex
	streams []string
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		batches: make(chan message.Batch, 16),
		errs:    make(chan error, 1),
	}
}

func (r *fakeReader) ReadGroup(ctx context.Context, streams []string) (message.Batch, error) {
	r.reads.Add(1)
	r.mu.Lock()
	r.streams = streams
	r.mu.Unlock()
	select {
	case <-ctx.Done():
		return message.Batch{}, ctx.Err()
	case err := <-r.errs:
		return message.Batch{}, err
	case b := <-r.batches:
		return b, nil
	}
}

func (r *fakeReader) Streams() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streams
}

// fakeMaintainer hands out one claimed batch and counts cleanup runs
type fakeMaintainer struct {
	mu       sync.Mutex
	claim    message.Batch
	claimed  bool
	cleanups atomic.Int32
}

func (m *fakeMaintainer) ClaimIdle(context.Context, []string) (message.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed {
		return message.Batch{}, nil
	}
	m.claimed = true
	return m.claim, nil
}

func (m *fakeMaintainer) CleanupDeadConsumers(context.Context, []string, time.Duration) int {
	m.cleanups.Add(1)
	return 1
}

type mirrored struct {
	Stream string
	ID     string
	Source *message.Context
}

type fakeMirror struct {
	mu   sync.Mutex
	err  error
	seen []mirrored
}

func (m *fakeMirror) Mirror(_ context.Context, resp message.Response, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, mirrored{Stream: resp.Stream, ID: id, Source: resp.Source})
	return m.err
}

func (m *fakeMirror) Seen() []mirrored {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mirrored(nil), m.seen...)
}

func testLogger() *log.Logger {
	return log.NewWithOutput(io.Discard)
}

func testOptions() Options {
	return Options{Group: "g1", Consumer: "c1", WriteTimeout: time.Second}
}

func buildTable(t *testing.T, handlers map[string]registry.Handler) *registry.Table {
	t.Helper()
	patterns := make(map[string]registry.Handler, len(handlers))
	for stream, h := range handlers {
		patterns[registry.Pattern(stream)] = h
	}
	table, _, err := registry.Build(patterns)
	require.NoError(t, err)
	return table
}

func batchOf(stream string, ids ...string) message.Batch {
	entries := make([]message.Entry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, message.Entry{ID: id, Values: map[string]interface{}{"n": id}})
	}
	return message.Batch{Streams: []message.StreamEntries{{Stream: stream, Entries: entries}}}
}

// startEngine runs e in the background and stops it at cleanup
func startEngine(t *testing.T, e *Engine) (cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = e.Drain(time.Second)
	})
	return cancel, errCh
}

type streamSet struct {
	mu      sync.Mutex
	streams []string
}

func (s *streamSet) add(stream string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = append(s.streams, stream)
}

func (s *streamSet) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.streams...)
}
