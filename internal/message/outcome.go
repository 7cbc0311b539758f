package message

import "context"

// Kind classifies what the response path must do with a handled message.
type Kind int

const (
	// Absent means the handler produced nothing: no ack, no publish.
	Absent Kind = iota
	// AckOnly acknowledges the message without publishing.
	AckOnly
	// PublishThenAck publishes every response and acks only if all succeed.
	PublishThenAck
)

// String implements fmt.Stringer
func (k Kind) String() string {
	switch k {
	case Absent:
		return "absent"
	case AckOnly:
		return "ack-only"
	case PublishThenAck:
		return "publish-then-ack"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of a handler invocation.
// The zero value is Absent.
type Outcome struct {
	kind      Kind
	responses []Response
	source    <-chan Response
}

// NoReply leaves the message pending
func NoReply() Outcome {
	return Outcome{kind: Absent}
}

// Ack acknowledges the message and publishes nothing
func Ack() Outcome {
	return Outcome{kind: AckOnly}
}

// Reply publishes the given responses, then acknowledges.
// Reply with no responses is equivalent to Ack.
func Reply(responses ...Response) Outcome {
	if len(responses) == 0 {
		return Ack()
	}
	return Outcome{kind: PublishThenAck, responses: responses}
}

// ReplyStream publishes every response received on ch until it is closed.
// A stream that closes without producing anything is equivalent to Ack.
// The handler must close ch: the engine gives up after its write timeout and
// leaves the entry pending, and without a timeout it waits forever.
func ReplyStream(ch <-chan Response) Outcome {
	if ch == nil {
		return NoReply()
	}
	return Outcome{kind: PublishThenAck, source: ch}
}

// Kind returns the classification. Streamed outcomes report PublishThenAck
// until they are collected.
func (o Outcome) Kind() Kind {
	return o.kind
}

// Responses returns the collected responses
func (o Outcome) Responses() []Response {
	return o.responses
}

// Collect drains a streamed outcome and returns an equivalent materialized one.
// Non-streamed outcomes are returned unchanged.
func (o Outcome) Collect(ctx context.Context) (Outcome, error) {
	if o.source == nil {
		return o, nil
	}
	var out []Response
	for {
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case r, ok := <-o.source:
			if !ok {
				return Reply(out...), nil
			}
			out = append(out, r)
		}
	}
}

// Stamp returns a copy of the outcome with every response pointing at src
func (o Outcome) Stamp(src *Context) Outcome {
	if len(o.responses) == 0 {
		return o
	}
	stamped := make([]Response, len(o.responses))
	for i, r := range o.responses {
		r.Source = src
		stamped[i] = r
	}
	o.responses = stamped
	return o
}
