// Package credstore materializes submitted transport credentials into the
// per-session directory layout the transport adapter expects, and removes
// those artifacts when a session ends.
package credstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"blastd/internal/transport"
	"blastd/pkg/logx"
)

const credFileName = "credentials"

// Store is a file-backed credential store rooted at a sessions directory.
type Store struct {
	root string
	log  logx.Logger
}

func New(root string, log logx.Logger) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("credstore: root directory is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("credstore: create root: %w", err)
	}
	return &Store{root: root, log: log}, nil
}

// Handle points at materialized credentials and rebuilds auth material
// across reconnects (re-reads the file so refreshed credentials are seen).
type Handle struct {
	path string
}

func (h Handle) AuthMaterial() (transport.AuthMaterial, error) {
	b, err := os.ReadFile(h.path)
	if err != nil {
		return transport.AuthMaterial{}, fmt.Errorf("credstore: read credentials: %w", err)
	}
	return transport.AuthMaterial{Data: b}, nil
}

// Materialize writes the raw credential bytes into the session's directory.
func (s *Store) Materialize(sessionID string, raw []byte) (Handle, error) {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return Handle{}, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Handle{}, fmt.Errorf("credstore: create session dir: %w", err)
	}
	path := filepath.Join(dir, credFileName)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return Handle{}, fmt.Errorf("credstore: write credentials: %w", err)
	}
	return Handle{path: path}, nil
}

// Cleanup removes all persisted artifacts for the session. Best-effort:
// callers log failures and move on.
func (s *Store) Cleanup(sessionID string) error {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("credstore: remove session dir: %w", err)
	}
	return nil
}

func (s *Store) sessionDir(sessionID string) (string, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("credstore: invalid session id %q", sessionID)
	}
	return filepath.Join(s.root, id), nil
}
