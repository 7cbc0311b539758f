package mqtt

import "context"

// Publisher sends raw payloads to a topic.
// Can be implemented by either a single Client or a Pool.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

var (
	_ Publisher = (*Client)(nil)
	_ Publisher = (*Pool)(nil)
)
