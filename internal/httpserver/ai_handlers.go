package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/skillhub/skillhub/internal/aistream"
	"github.com/skillhub/skillhub/internal/provider"
	"github.com/skillhub/skillhub/internal/store"
)

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"models": s.cfg.Models})
}

type chatStreamRequest struct {
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
	Content   string `json:"content"`
	SkillID   string `json:"skill_id"`
}

type streamEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id,omitempty"`
	Content   string `json:"content,omitempty"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
}

// handleChatStream starts a generation for the session and streams it back.
// The generation itself runs in the background, so the reply keeps going
// and gets persisted even if this client disconnects mid-stream.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatStreamRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "content is required")
		return
	}
	if !s.cfg.ModelAllowed(req.Model) {
		respondError(w, http.StatusBadRequest, "model not available")
		return
	}
	sess := s.loadOwnSession(w, r, req.SessionID)
	if sess == nil {
		return
	}
	if s.streams.Active(sess.ID) {
		respondError(w, http.StatusConflict, "generation already in progress")
		return
	}

	ctx := r.Context()
	if _, err := s.store.CreateMessage(ctx, sess.ID, store.ChatRoleUser, req.Content, req.SkillID); err != nil {
		respondError(w, http.StatusInternalServerError, "persist message")
		return
	}
	prompt, err := s.buildPrompt(r, sess.ID, req.SkillID)
	if err != nil {
		s.logger.Printf("build prompt: %v", err)
		respondError(w, http.StatusInternalServerError, "build prompt")
		return
	}
	assistant, err := s.store.CreateMessage(ctx, sess.ID, store.ChatRoleAssistant, "", req.SkillID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "persist message")
		return
	}

	if err := s.streams.Start(sess.ID, assistant.ID); err != nil {
		if errors.Is(err, aistream.ErrActiveGeneration) {
			respondError(w, http.StatusConflict, "generation already in progress")
			return
		}
		respondError(w, http.StatusInternalServerError, "start stream")
		return
	}
	_, events, subID, ok := s.streams.Subscribe(sess.ID)
	if !ok {
		respondError(w, http.StatusInternalServerError, "start stream")
		return
	}
	defer s.streams.Unsubscribe(sess.ID, subID)

	go s.runGeneration(context.WithoutCancel(ctx), sess.ID, assistant.ID, req.Model, prompt)

	flusher, ok := beginSSE(w)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	writeSSE(w, flusher, streamEvent{Type: "start", MessageID: assistant.ID})
	s.relayEvents(w, flusher, r, sess.ID, events)
}

// handleChatStreamWatch attaches to an in-flight generation. If none is
// running the response terminates immediately.
func (s *Server) handleChatStreamWatch(w http.ResponseWriter, r *http.Request) {
	sess := s.loadOwnSession(w, r, r.URL.Query().Get("session_id"))
	if sess == nil {
		return
	}

	flusher, sseOK := beginSSE(w)
	if !sseOK {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	snap, events, subID, ok := s.streams.Subscribe(sess.ID)
	if !ok {
		writeSSEDone(w, flusher)
		return
	}
	defer s.streams.Unsubscribe(sess.ID, subID)

	writeSSE(w, flusher, streamEvent{
		Type:      "snapshot",
		MessageID: snap.MessageID,
		Content:   snap.Content,
		Status:    string(snap.Status),
		Message:   snap.Error,
	})
	s.relayEvents(w, flusher, r, sess.ID, events)
}

// relayEvents copies registry events onto the SSE response until the stream
// ends or the client goes away.
func (s *Server) relayEvents(w http.ResponseWriter, flusher http.Flusher, r *http.Request, sessionID string, events <-chan aistream.Event) {
	for {
		select {
		case ev, open := <-events:
			if !open {
				writeSSEDone(w, flusher)
				return
			}
			switch ev.Type {
			case aistream.EventDelta:
				writeSSE(w, flusher, streamEvent{Type: "delta", Content: ev.Delta})
			case aistream.EventError:
				writeSSE(w, flusher, streamEvent{Type: "error", Message: ev.Message})
			}
		case <-r.Context().Done():
			return
		}
	}
}

// runGeneration drives the model stream into the registry and persists the
// final assistant content. It owns the stream's lifecycle: whatever happens,
// the stream is finished and the session freed.
func (s *Server) runGeneration(ctx context.Context, sessionID, messageID, model string, prompt []provider.Message) {
	var chunks []string
	var failure string
	defer func() {
		reply := strings.Join(chunks, "")
		if reply != "" {
			if err := s.store.UpdateMessageContent(ctx, messageID, reply); err != nil {
				s.logger.Printf("persist assistant message %s: %v", messageID, err)
			}
		}
		s.streams.Finish(sessionID)
		if s.aiDebug != nil {
			if err := s.aiDebug.record(aiDebugRecord{
				Time:      time.Now().UTC(),
				SessionID: sessionID,
				MessageID: messageID,
				Model:     model,
				Prompt:    prompt,
				Reply:     reply,
				Error:     failure,
			}); err != nil {
				s.logger.Printf("ai debug record: %v", err)
			}
		}
	}()

	events, err := s.ai.StreamChat(ctx, model, prompt)
	if err != nil {
		s.logger.Printf("stream chat session=%s: %v", sessionID, err)
		failure = err.Error()
		s.streams.Fail(sessionID, failure)
		return
	}
	for ev := range events {
		if ev.Err != nil {
			s.logger.Printf("stream chat session=%s: %v", sessionID, ev.Err)
			failure = ev.Err.Error()
			s.streams.Fail(sessionID, failure)
			return
		}
		chunks = append(chunks, ev.Delta)
		s.streams.Append(sessionID, ev.Delta)
	}
}

// buildPrompt assembles the model conversation: the most recent session
// history followed by a trailing system message carrying the shared context
// and the optional skill instructions.
func (s *Server) buildPrompt(r *http.Request, sessionID, skillID string) ([]provider.Message, error) {
	history, err := s.store.ListRecentMessages(r.Context(), sessionID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	var prompt []provider.Message
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		prompt = append(prompt, provider.Message{Role: string(m.Role), Content: m.Content})
	}

	var system []string
	if s.systemContext != "" {
		system = append(system, s.systemContext)
	}
	if skillID != "" {
		latest, err := s.latestVersion(r, skillID)
		if err != nil {
			return nil, err
		}
		if latest != nil && latest.Content != "" {
			system = append(system, latest.Content)
		}
	}
	if len(system) > 0 {
		prompt = append(prompt, provider.Message{Role: "system", Content: strings.Join(system, "\n\n")})
	}
	return prompt, nil
}

func beginSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func writeSSEDone(w http.ResponseWriter, flusher http.Flusher) {
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}
