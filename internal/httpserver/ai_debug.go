package httpserver

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/skillhub/skillhub/internal/provider"
)

// aiDebugRecord is one JSONL line describing a completed generation.
type aiDebugRecord struct {
	Time      time.Time          `json:"time"`
	SessionID string             `json:"session_id"`
	MessageID string             `json:"message_id"`
	Model     string             `json:"model"`
	Prompt    []provider.Message `json:"prompt"`
	Reply     string             `json:"reply"`
	Error     string             `json:"error,omitempty"`
}

// aiDebugRecorder appends generation records to a JSONL file. Best effort
// troubleshooting aid, enabled by the ai_debug_log config key.
type aiDebugRecorder struct {
	mu   sync.Mutex
	path string
}

func newAIDebugRecorder(path string) *aiDebugRecorder {
	if path == "" {
		return nil
	}
	return &aiDebugRecorder{path: path}
}

func (d *aiDebugRecorder) record(rec aiDebugRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal debug record: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	f, err := os.OpenFile(d.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open debug log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write debug record: %w", err)
	}
	return nil
}
