// Package app wires configuration, logging, storage, the transport adapter
// and the campaign supervisor into one process lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"blastd/internal/campaign"
	"blastd/internal/config"
	"blastd/internal/credstore"
	"blastd/internal/engine"
	"blastd/internal/httpapi"
	"blastd/internal/logstream"
	"blastd/internal/runtime/supervisor"
	"blastd/internal/session"
	"blastd/internal/storage"
	"blastd/internal/transport/telegram"
	"blastd/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	logSvc *logx.Service
	log    logx.Logger

	store storage.Store
	svc   *campaign.Service
	web   *httpapi.Server

	sup *supervisor.Supervisor
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	sessDir := cfg.Sessions.Dir
	if sessDir == "" {
		sessDir = "./sessions"
	}
	creds, err := credstore.New(sessDir, log.With(logx.String("comp", "credstore")))
	if err != nil {
		return nil, err
	}

	var store storage.Store
	if cfg.Storage != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return nil, err
		}
		store, err = storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
	}

	httpTimeout, err := config.ParseDurationField("transport.http_timeout", cfg.Transport.HTTPTimeout)
	if err != nil {
		return nil, err
	}
	client := telegram.New(telegram.Config{
		RatePerSec:  cfg.Transport.RatePerSec,
		HTTPTimeout: httpTimeout,
	}, log.With(logx.String("comp", "transport")))

	campaignCfg, err := campaignConfig(cfg)
	if err != nil {
		return nil, err
	}
	svc := campaign.New(campaignCfg, client, creds,
		session.NewRegistry(), logstream.NewHub(), store,
		log.With(logx.String("comp", "campaign")))

	var web *httpapi.Server
	if cfg.HTTP.Enabled {
		web = httpapi.New(httpapi.Config{Addr: cfg.HTTP.Addr}, svc,
			log.With(logx.String("comp", "http")))
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		logSvc:  logSvc,
		log:     log,
		store:   store,
		svc:     svc,
		web:     web,
	}, nil
}

func campaignConfig(cfg *config.Config) (campaign.Config, error) {
	retention, err := config.ParseDurationOrDefault("sessions.retention", cfg.Sessions.Retention, time.Hour)
	if err != nil {
		return campaign.Config{}, err
	}
	sweep, err := config.ParseDurationOrDefault("sessions.sweep_interval", cfg.Sessions.SweepInterval, 5*time.Minute)
	if err != nil {
		return campaign.Config{}, err
	}
	backoff, err := config.ParseDurationField("engine.reconnect_backoff", cfg.Engine.ReconnectBackoff)
	if err != nil {
		return campaign.Config{}, err
	}
	cooldown, err := config.ParseDurationField("engine.failure_cooldown", cfg.Engine.FailureCooldown)
	if err != nil {
		return campaign.Config{}, err
	}
	return campaign.Config{
		Retention:     retention,
		SweepInterval: sweep,
		Engine: engine.Config{
			ReconnectBackoff: backoff,
			MaxReconnects:    cfg.Engine.MaxReconnects,
			FailureCooldown:  cooldown,
		},
	}, nil
}

// Campaigns exposes the supervisor (for embedding or CLI tooling).
func (a *App) Campaigns() *campaign.Service { return a.svc }

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "sup"))),
	)

	a.svc.Start(a.sup.Context())

	if a.web != nil {
		a.sup.Go("http", a.web.Run)
	}

	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("config.apply", a.applyConfigUpdates)

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err == nil && sent {
		a.log.Debug("systemd notified ready")
	}
	a.log.Info("blastd started")
	return nil
}

// applyConfigUpdates consumes validated config reloads. Only logging is
// hot-applied; engine/session knobs are start-time only.
func (a *App) applyConfigUpdates(ctx context.Context) {
	ch := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok || cfg == nil {
				return
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("logging config applied")
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.svc.Stop(ctx)
	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logSvc.Close()
	a.log.Info("blastd stopped")
	return err
}
