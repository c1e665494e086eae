package aistream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func collect(ch <-chan Event) (content string, errMsg string) {
	for ev := range ch {
		switch ev.Type {
		case EventDelta:
			content += ev.Delta
		case EventError:
			errMsg = ev.Message
		}
	}
	return content, errMsg
}

func TestStartRejectsSecondGeneration(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Start("sess", "msg1"))
	require.ErrorIs(t, r.Start("sess", "msg2"), ErrActiveGeneration)

	r.Finish("sess")
	require.NoError(t, r.Start("sess", "msg3"))
}

func TestSubscribeBeforeFirstFragment(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Start("sess", "msg1"))

	snap, ch, _, ok := r.Subscribe("sess")
	require.True(t, ok)
	require.Equal(t, "msg1", snap.MessageID)
	require.Empty(t, snap.Content)
	require.Equal(t, StatusActive, snap.Status)

	r.Append("sess", "Hel")
	r.Append("sess", "lo")
	r.Finish("sess")

	content, errMsg := collect(ch)
	require.Equal(t, "Hello", snap.Content+content)
	require.Empty(t, errMsg)
}

func TestSnapshotAndLiveEventsDoNotOverlap(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Start("sess", "msg1"))

	r.Append("sess", "Hel")

	snap, ch, _, ok := r.Subscribe("sess")
	require.True(t, ok)
	require.Equal(t, "Hel", snap.Content)

	r.Append("sess", "lo")
	r.Finish("sess")

	content, _ := collect(ch)
	require.Equal(t, "lo", content)
	require.Equal(t, "Hello", snap.Content+content)
}

func TestTwoWatchersSeeIdenticalContent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Start("sess", "msg1"))

	snapA, chA, _, ok := r.Subscribe("sess")
	require.True(t, ok)

	r.Append("sess", "one ")

	snapB, chB, _, ok := r.Subscribe("sess")
	require.True(t, ok)

	r.Append("sess", "two")
	r.Finish("sess")

	contentA, _ := collect(chA)
	contentB, _ := collect(chB)
	require.Equal(t, "one two", snapA.Content+contentA)
	require.Equal(t, "one two", snapB.Content+contentB)
}

func TestSubscribeWithoutStream(t *testing.T) {
	r := NewRegistry()
	_, _, _, ok := r.Subscribe("nothing-here")
	require.False(t, ok)
}

func TestFailDeliversErrorAndKeepsPrefix(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Start("sess", "msg1"))

	_, ch, _, ok := r.Subscribe("sess")
	require.True(t, ok)

	r.Append("sess", "partial")
	r.Fail("sess", "upstream exploded")

	// Late watcher still sees the buffered prefix and the errored status.
	snap, lateCh, _, ok := r.Subscribe("sess")
	require.True(t, ok)
	require.Equal(t, "partial", snap.Content)
	require.Equal(t, StatusErrored, snap.Status)
	require.Equal(t, "upstream exploded", snap.Error)

	r.Finish("sess")

	content, errMsg := collect(ch)
	require.Equal(t, "partial", content)
	require.Equal(t, "upstream exploded", errMsg)

	_, _ = collect(lateCh)
	require.False(t, r.Active("sess"))
}

func TestAppendAfterFailIsDropped(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Start("sess", "msg1"))
	r.Append("sess", "keep")
	r.Fail("sess", "boom")
	r.Append("sess", " dropped")

	snap, _, _, ok := r.Subscribe("sess")
	require.True(t, ok)
	require.Equal(t, "keep", snap.Content)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Start("sess", "msg1"))

	_, ch, id, ok := r.Subscribe("sess")
	require.True(t, ok)

	r.Unsubscribe("sess", id)
	r.Unsubscribe("sess", id)
	r.Unsubscribe("other", id)

	_, open := <-ch
	require.False(t, open)

	r.Append("sess", "nobody listening")
	r.Finish("sess")
}

func TestSlowSubscriberIsDetached(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Start("sess", "msg1"))

	_, ch, _, ok := r.Subscribe("sess")
	require.True(t, ok)

	// Overflow the subscriber buffer without draining it.
	for i := 0; i < subscriberBuffer+10; i++ {
		r.Append("sess", "x")
	}

	n := 0
	for range ch {
		n++
	}
	require.Equal(t, subscriberBuffer, n)

	// The stream itself is unaffected; a fresh subscriber sees everything.
	snap, _, _, ok2 := r.Subscribe("sess")
	require.True(t, ok2)
	require.Len(t, snap.Content, subscriberBuffer+10)
	r.Finish("sess")
}
