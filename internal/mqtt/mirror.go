package mqtt

import (
	"context"
	"fmt"
	"strings"

	"github.com/ibs-source/stream-consumer/internal/codec"
	"github.com/ibs-source/stream-consumer/internal/log"
	"github.com/ibs-source/stream-consumer/internal/message"
)

// Document is the JSON body published for every mirrored response
type Document struct {
	Stream  string      `json:"stream"`
	ID      string      `json:"id"`
	Source  *Source     `json:"source,omitempty"`
	Payload interface{} `json:"payload"`
}

// Source identifies the entry that produced a response
type Source struct {
	Stream string `json:"stream"`
	ID     string `json:"id"`
}

// Mirror republishes appended responses on <prefix>/<stream>
type Mirror struct {
	pub    Publisher
	prefix string
	log    *log.Logger
}

// NewMirror creates a mirror; an empty prefix publishes on the bare stream name
func NewMirror(pub Publisher, prefix string, logger *log.Logger) *Mirror {
	return &Mirror{pub: pub, prefix: strings.TrimRight(prefix, "/"), log: logger}
}

// Topic returns the topic a response for stream is published on
func (m *Mirror) Topic(stream string) string {
	if m.prefix == "" {
		return stream
	}
	return m.prefix + "/" + stream
}

// Mirror publishes resp, which was appended to its stream under id
func (m *Mirror) Mirror(ctx context.Context, resp message.Response, id string) error {
	body, err := Encode(resp, id)
	if err != nil {
		return err
	}

	topic := m.Topic(resp.Stream)
	if err := m.pub.Publish(ctx, topic, body); err != nil {
		return err
	}
	m.log.Debug("Mirrored %s/%s to %s", resp.Stream, id, topic)
	return nil
}

// Close closes the underlying publisher
func (m *Mirror) Close() error {
	return m.pub.Close()
}

// Encode builds the mirrored document for resp
func Encode(resp message.Response, id string) ([]byte, error) {
	doc := Document{Stream: resp.Stream, ID: id, Payload: resp.Payload}
	if b, ok := resp.Payload.([]byte); ok {
		doc.Payload = string(b)
	}
	if resp.Source != nil {
		doc.Source = &Source{Stream: resp.Source.Stream, ID: resp.Source.ID}
	}

	body, err := codec.JSON.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mirror document for %s: %w", resp.Stream, err)
	}
	return body, nil
}
