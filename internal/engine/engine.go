package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"blastd/internal/logstream"
	"blastd/internal/session"
	"blastd/internal/transport"
	"blastd/pkg/logx"
)

// Config holds the engine timing knobs. Zero values fall back to the
// production defaults; tests compress them.
type Config struct {
	// ReconnectBackoff is the flat delay before a reconnect attempt.
	ReconnectBackoff time.Duration
	// MaxReconnects bounds reconnect attempts per session.
	MaxReconnects int
	// FailureCooldown is applied after a non-fatal send failure.
	FailureCooldown time.Duration
	// MessageDelay is the caller-supplied pause after each successful send.
	MessageDelay time.Duration
}

const (
	defaultReconnectBackoff = 10 * time.Second
	defaultMaxReconnects    = 15
	defaultFailureCooldown  = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = defaultReconnectBackoff
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = defaultMaxReconnects
	}
	if c.FailureCooldown <= 0 {
		c.FailureCooldown = defaultFailureCooldown
	}
	if c.MessageDelay < 0 {
		c.MessageDelay = 0
	}
	return c
}

// AuthFunc rebuilds the transport auth material. It is called before every
// connection attempt so credentials refreshed on disk are picked up across
// reconnects.
type AuthFunc func() (transport.AuthMaterial, error)

// Params wires one engine instance to its session.
type Params struct {
	SessionID string
	Client    transport.Client
	Auth      AuthFunc
	Target    transport.Target
	Queue     []string
	Registry  *session.Registry
	Logs      *logstream.Hub
	// Cleanup removes session-local persisted artifacts on terminal states.
	// Best-effort; errors are logged, never escalated.
	Cleanup func(sessionID string) error
	Logger  logx.Logger
}

// Engine drives one campaign session: it owns the connection handle,
// consumes the message queue in order, and reacts to connection events
// with bounded reconnects.
type Engine struct {
	p   Params
	cfg Config
	log logx.Logger

	stopOnce sync.Once
	stopCh   chan struct{}

	mu    sync.Mutex
	state State
	next  int // index of the next undelivered message
}

func New(p Params, cfg Config) *Engine {
	log := p.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		p:      p,
		cfg:    cfg.withDefaults(),
		log:    log.With(logx.String("session", p.SessionID)),
		stopCh: make(chan struct{}),
		state:  StateConnecting,
	}
}

// Stop requests a transition to StateStopped. Safe to call more than once;
// it also interrupts an in-progress backoff or cooldown wait.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.log.Debug("state changed", logx.String("state", string(s)))
}

// Run executes the session to a terminal state. It never returns an error:
// connection and send failures surface as counters and log entries only.
func (e *Engine) Run(ctx context.Context) {
	attempts := 0
	for {
		if e.stopRequested(ctx) {
			e.finish(nil, StateStopped, "Stopped by user")
			return
		}

		e.setState(StateConnecting)
		auth, err := e.p.Auth()
		if err != nil {
			e.appendf("[error] credentials unavailable: %v", err)
			e.finish(nil, StateFailed, "Failed: credentials unavailable")
			return
		}

		conn, err := e.p.Client.Connect(ctx, auth)
		if err != nil {
			if transport.IsAuthRejected(err) {
				e.appendf("[error] authentication rejected: %v", err)
				e.finish(nil, StateFailed, "Failed: authentication rejected")
				return
			}
			e.appendf("[error] connect failed: %v", err)
			if !e.awaitReconnect(ctx, &attempts) {
				return
			}
			continue
		}

		e.setState(StateAuthenticating)
		switch e.awaitOpen(ctx, conn) {
		case openOK:
			// fallthrough to delivering
		case openStopped:
			e.finish(conn, StateStopped, "Stopped by user")
			return
		case openAuthRejected:
			e.appendf("[error] authentication rejected by transport")
			e.finish(conn, StateFailed, "Failed: authentication rejected")
			return
		case openClosed:
			_ = conn.Close()
			if !e.awaitReconnect(ctx, &attempts) {
				return
			}
			continue
		}

		e.p.Registry.Touch(e.p.SessionID)
		e.append("Connected")
		e.setState(StateDelivering)
		attempts = 0

		out := e.deliver(ctx, conn)
		switch out {
		case deliverDone:
			e.finish(conn, StateCompleted, fmt.Sprintf("Campaign completed (%d queued)", len(e.p.Queue)))
			return
		case deliverStopped:
			e.finish(conn, StateStopped, "Stopped by user")
			return
		case deliverAuthRejected:
			e.finish(conn, StateFailed, "Failed: authentication rejected")
			return
		case deliverConnLost:
			_ = conn.Close()
			if e.stopRequested(ctx) {
				e.finish(nil, StateStopped, "Stopped by user")
				return
			}
			if !e.awaitReconnect(ctx, &attempts) {
				return
			}
		}
	}
}

// awaitReconnect applies the flat backoff and bounds the attempt counter.
// It reports false when Run must return; in that case the session has
// already been finished with its terminal state.
func (e *Engine) awaitReconnect(ctx context.Context, attempts *int) bool {
	*attempts++
	if *attempts > e.cfg.MaxReconnects {
		e.appendf("[error] giving up after %d reconnect attempts", e.cfg.MaxReconnects)
		e.finish(nil, StateFailed, "Failed: reconnect attempts exhausted")
		return false
	}
	e.setState(StateAwaitingReconnect)
	e.appendf("Reconnecting in %s (attempt %d/%d)", e.cfg.ReconnectBackoff, *attempts, e.cfg.MaxReconnects)
	if !e.wait(ctx, e.cfg.ReconnectBackoff) {
		e.finish(nil, StateStopped, "Stopped by user")
		return false
	}
	return true
}

type openResult int

const (
	openOK openResult = iota
	openClosed
	openAuthRejected
	openStopped
)

// awaitOpen blocks until the transport reports the connection open (or
// closed, or the session is stopped). Auth challenges are informational.
func (e *Engine) awaitOpen(ctx context.Context, conn transport.Conn) openResult {
	for {
		select {
		case <-e.stopCh:
			return openStopped
		case <-ctx.Done():
			return openStopped
		case ev, ok := <-conn.Events():
			if !ok {
				return openClosed
			}
			switch ev.Kind {
			case transport.EventOpened:
				return openOK
			case transport.EventAuthChallenge:
				e.appendf("Authentication challenge: %s", ev.Cause)
			case transport.EventClosed:
				if ev.Permanent {
					return openAuthRejected
				}
				e.appendf("[error] connection closed: %s", ev.Cause)
				return openClosed
			}
		}
	}
}

type deliverResult int

const (
	deliverDone deliverResult = iota
	deliverStopped
	deliverConnLost
	deliverAuthRejected
)

// deliver walks the queue in order starting at the next undelivered
// message. Message i+1 is attempted only after message i's attempt and its
// delay complete.
func (e *Engine) deliver(ctx context.Context, conn transport.Conn) deliverResult {
	for {
		e.mu.Lock()
		i := e.next
		e.mu.Unlock()
		if i >= len(e.p.Queue) {
			return deliverDone
		}

		if e.stopRequested(ctx) {
			return deliverStopped
		}
		if res, abort := e.drainEvents(conn); abort {
			return res
		}

		msg := e.p.Queue[i]
		err := conn.Send(ctx, e.p.Target, msg)

		e.mu.Lock()
		e.next = i + 1
		e.mu.Unlock()

		// A stop observed while the send was in flight wins: the result is
		// not counted and no progress entry is emitted.
		if e.stopRequested(ctx) {
			return deliverStopped
		}

		if err == nil {
			e.p.Registry.Update(e.p.SessionID, func(s *session.Session) {
				s.SentCount++
				bumpActivity(s)
			})
			e.appendf("Sent: %s", preview(msg))
			if e.cfg.MessageDelay > 0 && i+1 < len(e.p.Queue) {
				if !e.wait(ctx, e.cfg.MessageDelay) {
					return deliverStopped
				}
			}
			continue
		}

		e.p.Registry.Update(e.p.SessionID, func(s *session.Session) {
			s.FailedCount++
			bumpActivity(s)
		})
		e.appendf("[error] send failed: %v", err)

		if transport.IsAuthRejected(err) {
			return deliverAuthRejected
		}
		if transport.IsConnectionLost(err) {
			// Abort the remaining queue for this connection attempt; the
			// close transition drives reconnection.
			return deliverConnLost
		}
		if !e.wait(ctx, e.cfg.FailureCooldown) {
			return deliverStopped
		}
	}
}

// drainEvents consumes any pending connection events without blocking.
func (e *Engine) drainEvents(conn transport.Conn) (deliverResult, bool) {
	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				return deliverConnLost, true
			}
			switch ev.Kind {
			case transport.EventClosed:
				if ev.Permanent {
					return deliverAuthRejected, true
				}
				e.appendf("[error] connection closed: %s", ev.Cause)
				return deliverConnLost, true
			case transport.EventAuthChallenge:
				e.appendf("Authentication challenge: %s", ev.Cause)
			}
		default:
			return deliverDone, false
		}
	}
}

func (e *Engine) stopRequested(ctx context.Context) bool {
	select {
	case <-e.stopCh:
		return true
	default:
	}
	if ctx.Err() != nil {
		return true
	}
	if s, ok := e.p.Registry.Get(e.p.SessionID); ok && !s.Running {
		return true
	}
	return false
}

// wait sleeps for d unless the session is stopped or the context is
// cancelled first. Reports false when interrupted.
func (e *Engine) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !e.stopRequested(ctx)
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-e.stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-tmr.C:
		return true
	}
}

// finish enters the terminal state: close the handle, flip running off,
// emit the final log entry, schedule artifact cleanup.
func (e *Engine) finish(conn transport.Conn, s State, msg string) {
	if conn != nil {
		_ = conn.Close()
	}
	e.setState(s)
	e.p.Registry.Update(e.p.SessionID, func(sess *session.Session) {
		sess.Running = false
		bumpActivity(sess)
	})
	e.append(msg)
	e.log.Info("session finished", logx.String("state", string(s)))
	if e.p.Cleanup != nil {
		if err := e.p.Cleanup(e.p.SessionID); err != nil {
			e.log.Warn("artifact cleanup failed", logx.Err(err))
		}
	}
}

func (e *Engine) append(text string) {
	e.p.Logs.Append(e.p.SessionID, text)
}

func (e *Engine) appendf(format string, args ...any) {
	e.append(fmt.Sprintf(format, args...))
}

// bumpActivity keeps LastActivity monotonically non-decreasing.
func bumpActivity(s *session.Session) {
	now := time.Now()
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
}

const previewLen = 40

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen]) + "..."
}
