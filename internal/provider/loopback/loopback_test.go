package loopback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skillhub/skillhub/internal/provider"
)

func TestStreamChatEchoesLastUserMessage(t *testing.T) {
	p := New()
	ch, err := p.StreamChat(context.Background(), "loopback", []provider.Message{
		{Role: "system", Content: "ignored"},
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "reply"},
		{Role: "user", Content: "tell me a joke"},
	})
	require.NoError(t, err)

	var got string
	for ev := range ch {
		require.NoError(t, ev.Err)
		got += ev.Delta
	}
	require.Equal(t, "You said: tell me a joke", got)
}

func TestStreamChatEmptyPrompt(t *testing.T) {
	p := New()
	ch, err := p.StreamChat(context.Background(), "loopback", nil)
	require.NoError(t, err)

	var got string
	for ev := range ch {
		got += ev.Delta
	}
	require.Equal(t, "Hello from loopback", got)
}
