// Package llm invokes hosted language models and normalizes their
// provider-specific responses into one event stream shape.
package llm

import (
	"context"
	"fmt"
)

// EventType discriminates normalized provider events.
type EventType string

const (
	// EventContentDelta carries an incremental fragment of the answer.
	EventContentDelta EventType = "content_delta"
	// EventReasoningDelta carries an incremental fragment of the model's
	// deliberation channel, for families that expose one.
	EventReasoningDelta EventType = "reasoning_delta"
	// EventStreamEnd terminates a stream with the provider's stop reason.
	EventStreamEnd EventType = "stream_end"
	// EventUsage reports token accounting. Informational only.
	EventUsage EventType = "usage_metadata"
)

// Usage is the provider's token accounting for one invocation.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Event is one normalized provider event. Err set means the stream failed
// terminally; no further events follow it.
type Event struct {
	Type       EventType
	Text       string
	StopReason string
	Usage      *Usage
	Err        error
}

// Options selects the model and per-request behavior for an invocation.
type Options struct {
	ModelID        string
	EnableThinking bool
}

// Invoker abstracts buffered and streaming model invocation. Streams deliver
// events in provider order and are closed after a stream_end or an error
// event.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, opts Options) (string, error)
	InvokeStream(ctx context.Context, prompt string, opts Options) (<-chan Event, error)
}

// InvocationError wraps any transport or provider-side failure of a model
// call.
type InvocationError struct {
	ModelID string
	Err     error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoke model %s: %v", e.ModelID, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }
