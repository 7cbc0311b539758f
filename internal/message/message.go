// Package message provides the data model shared by the poller, the dispatcher and the response path.
package message

// Context carries per-message metadata from dispatch back to the ack.
// It is created once per delivered entry and never mutated afterwards.
type Context struct {
	Stream   string
	ID       string
	Group    string
	Consumer string
}

// Entry is a raw stream entry as returned by XREADGROUP
type Entry struct {
	ID     string
	Values map[string]interface{}
}

// StreamEntries groups the entries one read returned for a single stream
type StreamEntries struct {
	Stream  string
	Entries []Entry
}

// Batch is the result of one poll, in the order the store returned it
type Batch struct {
	Streams []StreamEntries
}

// Len returns the total number of entries across all streams
func (b Batch) Len() int {
	n := 0
	for _, s := range b.Streams {
		n += len(s.Entries)
	}
	return n
}

// Response is a value a handler wants appended to another stream.
// Source is stamped by the dispatcher before the response is published.
type Response struct {
	Stream  string
	Payload interface{}
	Source  *Context
}
