// Package loopback is a self-contained provider used for development and
// tests. It echoes the last user message back word by word.
package loopback

import (
	"context"
	"strings"

	"github.com/skillhub/skillhub/internal/provider"
)

// Provider streams a canned reply derived from the prompt.
type Provider struct{}

// New returns a loopback provider.
func New() *Provider {
	return &Provider{}
}

// StreamChat echoes the last user message, one word per event.
func (p *Provider) StreamChat(ctx context.Context, model string, messages []provider.Message) (<-chan provider.Event, error) {
	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			last = messages[i].Content
			break
		}
	}
	reply := "You said: " + last
	if last == "" {
		reply = "Hello from " + model
	}

	ch := make(chan provider.Event, 10)
	go func() {
		defer close(ch)
		words := strings.Fields(reply)
		for i, w := range words {
			if i > 0 {
				w = " " + w
			}
			select {
			case ch <- provider.Event{Delta: w}:
			case <-ctx.Done():
				select {
				case ch <- provider.Event{Err: ctx.Err()}:
				default:
				}
				return
			}
		}
	}()
	return ch, nil
}
