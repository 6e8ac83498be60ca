package mock

import "github.com/fwojciec/synapse"

// Interface compliance check.
var _ synapse.Stream = (*Stream)(nil)

// Stream is a test double for synapse.Stream.
// NextFn and MessageFn panic when nil to catch missing setup. CloseFn and
// StateFn are nil-safe because callers commonly defer stream.Close().
type Stream struct {
	NextFn    func() (synapse.Event, error)
	StateFn   func() synapse.StreamState
	MessageFn func() (synapse.AssistantMessage, error)
	CloseFn   func() error
}

// Next delegates to NextFn.
func (s *Stream) Next() (synapse.Event, error) {
	return s.NextFn()
}

// State delegates to StateFn. Returns StreamStateNew when StateFn is nil.
func (s *Stream) State() synapse.StreamState {
	if s.StateFn == nil {
		return synapse.StreamStateNew
	}
	return s.StateFn()
}

// Message delegates to MessageFn.
func (s *Stream) Message() (synapse.AssistantMessage, error) {
	return s.MessageFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *Stream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}
