// Package provider defines the upstream AI model interface.
package provider

import "context"

// Message is one turn of conversation handed to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Event is one item of a model's streamed reply. A non-nil Err ends the
// stream; otherwise Delta carries the next text fragment.
type Event struct {
	Delta string
	Err   error
}

// ChatStreamer produces a streamed completion for a conversation.
//
// The returned channel is closed when the reply is complete or after an
// Event carrying Err. Implementations must honor ctx cancellation.
type ChatStreamer interface {
	StreamChat(ctx context.Context, model string, messages []Message) (<-chan Event, error)
}
