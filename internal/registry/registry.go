// Package registry binds stream names to handlers from the host's pattern snapshot.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"

	"github.com/ibs-source/stream-consumer/internal/message"
)

// ErrDuplicateStream is returned when two patterns target the same stream
var ErrDuplicateStream = errors.New("stream registered by more than one pattern")

// Handler processes one decoded stream entry
type Handler func(ctx context.Context, payload interface{}, mc *message.Context) (message.Outcome, error)

// StreamPattern is the structured form of a registration key owned by this engine
type StreamPattern struct {
	Stream               string `json:"stream"`
	IsRedisStreamHandler bool   `json:"isRedisStreamHandler"`
}

// Pattern returns the canonical registration key for stream
func Pattern(stream string) string {
	key, _ := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(StreamPattern{
		Stream:               stream,
		IsRedisStreamHandler: true,
	})
	return key
}

// ParsePattern reports whether key is a stream-handler pattern and returns it.
// Keys that are not JSON, lack the discriminator or name no stream belong to
// another transport and yield ok == false.
func ParsePattern(key string) (StreamPattern, bool) {
	var p StreamPattern
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(key, &p); err != nil {
		return StreamPattern{}, false
	}
	if !p.IsRedisStreamHandler || p.Stream == "" {
		return StreamPattern{}, false
	}
	return p, true
}

// Table maps stream names to handlers. It is immutable once built.
type Table struct {
	handlers map[string]Handler
	streams  []string
}

// Build creates a Table from a snapshot of pattern keys.
// Foreign keys are skipped; skipped reports how many.
func Build(patterns map[string]Handler) (table *Table, skipped int, err error) {
	handlers := make(map[string]Handler, len(patterns))
	keys := make(map[string]string, len(patterns))

	for key, h := range patterns {
		p, ok := ParsePattern(key)
		if !ok || h == nil {
			skipped++
			continue
		}
		if prev, dup := keys[p.Stream]; dup {
			return nil, skipped, fmt.Errorf("%w: %q (keys %s and %s)", ErrDuplicateStream, p.Stream, prev, key)
		}
		keys[p.Stream] = key
		handlers[p.Stream] = h
	}

	streams := make([]string, 0, len(handlers))
	for s := range handlers {
		streams = append(streams, s)
	}
	sort.Strings(streams)

	return &Table{handlers: handlers, streams: streams}, skipped, nil
}

// Lookup returns the handler registered for stream
func (t *Table) Lookup(stream string) (Handler, bool) {
	h, ok := t.handlers[stream]
	return h, ok
}

// Streams returns the registered stream names in sorted order
func (t *Table) Streams() []string {
	out := make([]string, len(t.streams))
	copy(out, t.streams)
	return out
}

// Len returns the number of registered streams
func (t *Table) Len() int {
	return len(t.streams)
}
