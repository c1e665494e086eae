// Package aistream tracks in-flight AI generations so that the initiating
// request and any number of late watchers observe the same token stream.
//
// Exactly one generation may be active per chat session. The producer
// appends fragments as they arrive from the model; subscribers receive a
// snapshot of everything buffered so far plus live events from that point
// on, with no gap and no duplication between the two.
package aistream

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrActiveGeneration is returned by Start when the session already has a
// generation in flight.
var ErrActiveGeneration = errors.New("aistream: generation already active for session")

// Status is the lifecycle state of a tracked stream.
type Status string

const (
	StatusActive   Status = "active"
	StatusErrored  Status = "errored"
	StatusFinished Status = "finished"
)

// EventType discriminates subscriber events.
type EventType string

const (
	// EventDelta carries one appended text fragment.
	EventDelta EventType = "delta"
	// EventError reports a failed generation. The stream stays registered
	// until Finish so late watchers still see the buffered prefix.
	EventError EventType = "error"
)

// Event is one live update delivered to subscribers. Channel close is the
// terminal signal.
type Event struct {
	Type    EventType
	Delta   string
	Message string
}

// Snapshot is the state of a stream at subscribe time.
type Snapshot struct {
	MessageID string
	Content   string
	Status    Status
	Error     string
}

const subscriberBuffer = 128

type streamState struct {
	messageID string
	fragments []string
	status    Status
	errMsg    string
	subs      map[uuid.UUID]chan Event
}

// Registry tracks at most one active stream per chat session.
type Registry struct {
	mu      sync.Mutex
	streams map[string]*streamState
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{streams: make(map[string]*streamState)}
}

// Start registers a new stream for sessionID writing into messageID.
// It fails with ErrActiveGeneration if the session already has one.
func (r *Registry) Start(sessionID, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.streams[sessionID]; ok {
		return ErrActiveGeneration
	}
	r.streams[sessionID] = &streamState{
		messageID: messageID,
		status:    StatusActive,
		subs:      make(map[uuid.UUID]chan Event),
	}
	return nil
}

// Append buffers one fragment and fans it out to subscribers. Appends to
// unknown or non-active sessions are dropped.
func (r *Registry) Append(sessionID, delta string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.streams[sessionID]
	if !ok || st.status != StatusActive {
		return
	}
	st.fragments = append(st.fragments, delta)
	st.broadcast(Event{Type: EventDelta, Delta: delta})
}

// Fail marks the stream errored and notifies subscribers. The buffered
// prefix stays readable until Finish retires the stream.
func (r *Registry) Fail(sessionID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.streams[sessionID]
	if !ok || st.status != StatusActive {
		return
	}
	st.status = StatusErrored
	st.errMsg = message
	st.broadcast(Event{Type: EventError, Message: message})
}

// Finish retires the stream. All subscriber channels are closed and the
// session becomes immediately available for a new generation.
func (r *Registry) Finish(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.streams[sessionID]
	if !ok {
		return
	}
	if st.status == StatusActive {
		st.status = StatusFinished
	}
	for id, sub := range st.subs {
		close(sub)
		delete(st.subs, id)
	}
	delete(r.streams, sessionID)
}

// Subscribe attaches to the session's stream. The snapshot and the event
// channel are consistent: every fragment is either in the snapshot or will
// arrive on the channel, never both. ok is false when no stream exists.
func (r *Registry) Subscribe(sessionID string) (Snapshot, <-chan Event, uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.streams[sessionID]
	if !ok {
		return Snapshot{}, nil, uuid.Nil, false
	}
	snap := Snapshot{
		MessageID: st.messageID,
		Content:   strings.Join(st.fragments, ""),
		Status:    st.status,
		Error:     st.errMsg,
	}
	id := uuid.New()
	ch := make(chan Event, subscriberBuffer)
	st.subs[id] = ch
	return snap, ch, id, true
}

// Unsubscribe detaches a subscriber. It is a no-op if the stream or the
// subscription is already gone.
func (r *Registry) Unsubscribe(sessionID string, id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.streams[sessionID]
	if !ok {
		return
	}
	if sub, ok := st.subs[id]; ok {
		delete(st.subs, id)
		close(sub)
	}
}

// Active reports whether a stream is registered for the session.
func (r *Registry) Active(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.streams[sessionID]
	return ok
}

// Subscribers reports how many subscribers are attached to the session.
func (r *Registry) Subscribers(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.streams[sessionID]
	if !ok {
		return 0
	}
	return len(st.subs)
}

// broadcast delivers ev to every subscriber. A subscriber whose buffer is
// full is detached and its channel closed; it can recover the full content
// by re-subscribing for a fresh snapshot.
func (st *streamState) broadcast(ev Event) {
	for id, sub := range st.subs {
		select {
		case sub <- ev:
		default:
			delete(st.subs, id)
			close(sub)
		}
	}
}
