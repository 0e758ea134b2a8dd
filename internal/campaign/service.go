package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"blastd/internal/credstore"
	"blastd/internal/engine"
	"blastd/internal/logstream"
	"blastd/internal/runtime/supervisor"
	"blastd/internal/session"
	"blastd/internal/storage"
	"blastd/internal/transport"
	"blastd/pkg/logx"
)

// ErrNotFound is returned when a session id is unknown to the registry.
var ErrNotFound = errors.New("session not found")

const (
	defaultRetention     = time.Hour
	defaultSweepInterval = 5 * time.Minute
)

// Config controls the campaign supervisor.
type Config struct {
	// Retention is how long a stopped session stays visible after its
	// last activity before the sweep evicts it.
	Retention time.Duration
	// SweepInterval is the fixed sweep timer period.
	SweepInterval time.Duration
	// Engine carries the delivery engine timing knobs (the per-campaign
	// message delay comes from each StartRequest).
	Engine engine.Config
}

func (c Config) withDefaults() Config {
	if c.Retention <= 0 {
		c.Retention = defaultRetention
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	return c
}

// StartRequest is one campaign submission.
type StartRequest struct {
	Payload      string
	Prefix       string
	Target       transport.Target
	MessageDelay time.Duration
	Credentials  []byte
}

// Status is the observer-facing view of one session.
type Status struct {
	ID           string            `json:"id"`
	Running      bool              `json:"running"`
	State        string            `json:"state,omitempty"`
	Target       transport.Target  `json:"target"`
	StartTime    time.Time         `json:"start_time"`
	SentCount    int               `json:"sent_count"`
	FailedCount  int               `json:"failed_count"`
	LastActivity time.Time         `json:"last_activity"`
}

// Service is the session supervisor: it creates sessions, runs one delivery
// engine per session, serves stop/status, and sweeps stale stopped sessions.
type Service struct {
	cfg    Config
	client transport.Client
	creds  *credstore.Store
	reg    *session.Registry
	logs   *logstream.Hub
	store  storage.Store // optional audit sink; may be nil
	log    logx.Logger

	mu      sync.Mutex
	engines map[string]*engine.Engine

	sup  *supervisor.Supervisor
	cron *cron.Cron
}

func New(cfg Config, client transport.Client, creds *credstore.Store, reg *session.Registry, logs *logstream.Hub, store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg.withDefaults(),
		client:  client,
		creds:   creds,
		reg:     reg,
		logs:    logs,
		store:   store,
		log:     log,
		engines: map[string]*engine.Engine{},
	}
}

func (s *Service) Registry() *session.Registry { return s.reg }
func (s *Service) Logs() *logstream.Hub        { return s.logs }

// Start launches the sweep timer. Engines are started per campaign.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = supervisor.New(ctx,
		supervisor.WithLogger(s.log.With(logx.String("comp", "campaign.sup"))),
	)

	c := cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.SweepInterval)
	if _, err := c.AddFunc(spec, func() { s.Sweep(time.Now()) }); err != nil {
		// The spec string is built from a validated duration; failing here
		// means a programming error, so surface it loudly.
		s.log.Error("sweep schedule rejected", logx.Err(err), logx.String("spec", spec))
	}
	c.Start()
	s.cron = c

	s.log.Info("campaign supervisor started",
		logx.Duration("retention", s.cfg.Retention),
		logx.Duration("sweep_interval", s.cfg.SweepInterval))
}

// Stop halts the sweep timer and waits for running engines to finish
// terminating (their contexts are cancelled by the supervisor).
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	if sup != nil {
		_ = sup.Stop(ctx)
	}
	s.log.Info("campaign supervisor stopped")
}

// StartCampaign parses the payload, creates the session and starts its
// delivery engine. It returns the session id immediately without waiting
// for the connection to come up.
func (s *Service) StartCampaign(req StartRequest) (string, error) {
	if !req.Target.Mode.Valid() {
		return "", fmt.Errorf("invalid delivery mode %q", req.Target.Mode)
	}
	if req.Target.Address == "" {
		return "", errors.New("target address is required")
	}
	queue := BuildQueue(req.Payload, req.Prefix)
	if len(queue) == 0 {
		return "", errors.New("payload contains no messages")
	}
	if len(req.Credentials) == 0 {
		return "", errors.New("credentials are required")
	}
	if req.MessageDelay < 0 {
		return "", errors.New("message delay must be >= 0")
	}

	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return "", errors.New("campaign supervisor is not running")
	}

	sess := s.reg.Create(req.Target)

	handle, err := s.creds.Materialize(sess.ID, req.Credentials)
	if err != nil {
		s.reg.Remove(sess.ID)
		return "", err
	}

	cfg := s.cfg.Engine
	cfg.MessageDelay = req.MessageDelay
	eng := engine.New(engine.Params{
		SessionID: sess.ID,
		Client:    s.client,
		Auth:      handle.AuthMaterial,
		Target:    req.Target,
		Queue:     queue,
		Registry:  s.reg,
		Logs:      s.logs,
		Cleanup:   s.creds.Cleanup,
		Logger:    s.log.With(logx.String("comp", "engine")),
	}, cfg)

	s.mu.Lock()
	s.engines[sess.ID] = eng
	s.mu.Unlock()

	s.logs.Append(sess.ID, fmt.Sprintf("Campaign created: %d messages to %s (%s)",
		len(queue), req.Target.Address, req.Target.Mode))
	s.audit(sess.ID, "started", 0, 0, "")
	s.log.Info("campaign started",
		logx.String("session", sess.ID),
		logx.Int("messages", len(queue)),
		logx.String("target", req.Target.Address))

	sup.Go0("engine."+sess.ID, func(ctx context.Context) {
		eng.Run(ctx)
		if st, ok := s.reg.Get(sess.ID); ok {
			s.audit(sess.ID, auditEvent(eng.State()), st.SentCount, st.FailedCount, "")
		}
	})

	return sess.ID, nil
}

// StopCampaign flips the session to not-running and signals its engine.
// Stopping an already-stopped session is a no-op success.
func (s *Service) StopCampaign(id string) error {
	if !s.reg.Update(id, func(sess *session.Session) { sess.Running = false }) {
		return ErrNotFound
	}

	s.mu.Lock()
	eng := s.engines[id]
	s.mu.Unlock()
	if eng != nil {
		eng.Stop()
	}

	s.log.Info("campaign stop requested", logx.String("session", id))
	return nil
}

// Status returns the observer view of one session.
func (s *Service) Status(id string) (Status, error) {
	sess, ok := s.reg.Get(id)
	if !ok {
		return Status{}, ErrNotFound
	}
	return s.status(sess), nil
}

// List returns all known sessions, newest first.
func (s *Service) List() []Status {
	sessions := s.reg.List()
	out := make([]Status, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, s.status(sess))
	}
	return out
}

func (s *Service) status(sess session.Session) Status {
	st := Status{
		ID:           sess.ID,
		Running:      sess.Running,
		Target:       sess.Target,
		StartTime:    sess.StartTime,
		SentCount:    sess.SentCount,
		FailedCount:  sess.FailedCount,
		LastActivity: sess.LastActivity,
	}
	s.mu.Lock()
	if eng := s.engines[sess.ID]; eng != nil {
		st.State = string(eng.State())
	}
	s.mu.Unlock()
	return st
}

// Sweep evicts sessions that are stopped and idle beyond the retention
// window. Running sessions are never swept regardless of age.
func (s *Service) Sweep(now time.Time) int {
	evicted := 0
	for _, sess := range s.reg.List() {
		if sess.Running {
			continue
		}
		if now.Sub(sess.LastActivity) <= s.cfg.Retention {
			continue
		}

		if err := s.creds.Cleanup(sess.ID); err != nil {
			s.log.Warn("artifact cleanup failed during sweep",
				logx.String("session", sess.ID), logx.Err(err))
		}
		s.reg.Remove(sess.ID)
		s.logs.Drop(sess.ID)
		s.mu.Lock()
		delete(s.engines, sess.ID)
		s.mu.Unlock()

		s.audit(sess.ID, "swept", sess.SentCount, sess.FailedCount, "")
		s.log.Info("session swept",
			logx.String("session", sess.ID),
			logx.Time("last_activity", sess.LastActivity))
		evicted++
	}
	return evicted
}

func auditEvent(st engine.State) string {
	switch st {
	case engine.StateCompleted:
		return "completed"
	case engine.StateStopped:
		return "stopped"
	case engine.StateFailed:
		return "failed"
	}
	return string(st)
}

func (s *Service) audit(id, event string, sent, failed int, errMsg string) {
	if s.store == nil {
		return
	}
	var target transport.Target
	if sess, ok := s.reg.Get(id); ok {
		target = sess.Target
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.store.AppendAudit(ctx, storage.AuditEntry{
		At:        time.Now(),
		SessionID: id,
		Event:     event,
		Target:    target.Address,
		Mode:      string(target.Mode),
		Sent:      sent,
		Failed:    failed,
		Error:     errMsg,
	}); err != nil {
		s.log.Warn("audit append failed", logx.String("session", id), logx.Err(err))
	}
}
