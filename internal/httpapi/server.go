// Package httpapi is the thin HTTP surface over the campaign supervisor:
// submissions, stop, status, and live log subscription over websocket.
// Handlers hold no business logic.
package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"blastd/internal/campaign"
	"blastd/internal/transport"
	"blastd/pkg/logx"
)

type Config struct {
	Addr string
}

type Server struct {
	cfg  Config
	svc  *campaign.Service
	log  logx.Logger
	http *http.Server
}

func New(cfg Config, svc *campaign.Service, log logx.Logger) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{cfg: cfg, svc: svc, log: log}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.POST("/campaigns", s.createCampaign)
	api.GET("/campaigns", s.listCampaigns)
	api.GET("/campaigns/:id", s.getCampaign)
	api.DELETE("/campaigns/:id", s.stopCampaign)
	api.GET("/campaigns/:id/logs", s.streamLogs)

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the route tree (used by tests).
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()
	s.log.Info("http server listening", logx.String("addr", s.cfg.Addr))

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type createRequest struct {
	Payload      string `json:"payload" binding:"required"`
	Prefix       string `json:"prefix"`
	Address      string `json:"address" binding:"required"`
	Mode         string `json:"mode"`
	DelaySeconds int    `json:"delay_seconds"`
	// Credentials is the base64-encoded raw credential blob for the
	// transport (e.g. a bot token).
	Credentials string `json:"credentials" binding:"required"`
}

func (s *Server) createCampaign(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	creds, err := base64.StdEncoding.DecodeString(req.Credentials)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "credentials must be base64"})
		return
	}
	mode := transport.DeliveryMode(req.Mode)
	if req.Mode == "" {
		mode = transport.ModeDirect
	}
	if req.DelaySeconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delay_seconds must be >= 0"})
		return
	}

	id, err := s.svc.StartCampaign(campaign.StartRequest{
		Payload:      req.Payload,
		Prefix:       req.Prefix,
		Target:       transport.Target{Address: req.Address, Mode: mode},
		MessageDelay: time.Duration(req.DelaySeconds) * time.Second,
		Credentials:  creds,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": id})
}

func (s *Server) listCampaigns(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.List())
}

func (s *Server) getCampaign(c *gin.Context) {
	st, err := s.svc.Status(c.Param("id"))
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) stopCampaign(c *gin.Context) {
	if err := s.svc.StopCampaign(c.Param("id")); err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": true})
}
