package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// sessionLog appends the conversation of one trading day to
// <root>/<signature>/log/<date>/log.jsonl.
type sessionLog struct {
	path      string
	signature string
	now       func() time.Time
}

type logEntry struct {
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

func newSessionLog(root, signature, date string) (*sessionLog, error) {
	dir := filepath.Join(root, signature, "log", date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session log dir: %w", err)
	}
	return &sessionLog{
		path:      filepath.Join(dir, "log.jsonl"),
		signature: signature,
		now:       time.Now,
	}, nil
}

func (l *sessionLog) Append(role, content string) error {
	entry := logEntry{
		Timestamp: l.now().Format(time.RFC3339),
		Signature: l.signature,
		Role:      role,
		Content:   content,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode session log entry: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write session log: %w", err)
	}
	return nil
}
