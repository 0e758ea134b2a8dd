package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the optional audit store.
//
// Driver values:
//   - "file": dependency-free append-only JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one campaign lifecycle event.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At        time.Time
	SessionID string
	Event     string // started | stopped | completed | failed | swept
	Target    string
	Mode      string
	Sent      int
	Failed    int
	Error     string
}
