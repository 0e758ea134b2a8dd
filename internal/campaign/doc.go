// Package campaign is the session supervisor for bulk-messaging campaigns.
//
// A campaign submission becomes a session: a registry entry, a log stream
// and one delivery engine goroutine. The supervisor serves stop and status
// requests and periodically sweeps stopped sessions that have been idle
// beyond the retention window.
//
// Connection- and send-level failures never escape a session's engine; they
// surface as counters and log entries only. Stop/status on an unknown id
// returns ErrNotFound.
package campaign
