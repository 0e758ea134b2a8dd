package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"blastd/pkg/logx"
)

// fileStore is a dependency-free persistence backend: an append-only
// JSON Lines audit file.
type fileStore struct {
	log logx.Logger

	mu        sync.Mutex
	auditFile *os.File
}

type auditRecord struct {
	At        time.Time `json:"at"`
	SessionID string    `json:"session_id"`
	Event     string    `json:"event"`
	Target    string    `json:"target,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	Error     string    `json:"error,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, auditFile: f}, nil
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	enc := json.NewEncoder(s.auditFile)
	return enc.Encode(auditRecord{
		At:        e.At,
		SessionID: e.SessionID,
		Event:     e.Event,
		Target:    e.Target,
		Mode:      e.Mode,
		Sent:      e.Sent,
		Failed:    e.Failed,
		Error:     e.Error,
	})
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}
