// Package telegram adapts the transport capability onto the Telegram Bot
// API via telebot. It is plumbing only: the delivery engine never sees
// telebot types, just transport.Conn and classified errors.
package telegram

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"blastd/internal/transport"
	"blastd/pkg/logx"
)

type Config struct {
	// RatePerSec caps outbound sends across all connections (courtesy
	// limit, Telegram-side throttling still applies).
	RatePerSec int
	// HTTPTimeout bounds a single Bot API call.
	HTTPTimeout time.Duration
}

// Client implements transport.Client. One Connect call builds one bot
// instance; auth material is the bot token.
type Client struct {
	cfg     Config
	log     logx.Logger
	limiter *rate.Limiter
}

func New(cfg Config, log logx.Logger) *Client {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

func (c *Client) Connect(ctx context.Context, auth transport.AuthMaterial) (transport.Conn, error) {
	token := strings.TrimSpace(string(auth.Data))
	if token == "" {
		return nil, transport.ErrAuthRejected
	}

	// NewBot performs getMe, which doubles as the authentication handshake.
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		Offline: false,
	})
	if err != nil {
		if isAuthError(err) {
			return nil, errors.Join(transport.ErrAuthRejected, err)
		}
		return nil, err
	}

	conn := &conn{
		bot:     b,
		limiter: c.limiter,
		log:     c.log,
		events:  make(chan transport.Event, 8),
	}
	conn.events <- transport.Event{Kind: transport.EventOpened}
	return conn, nil
}

type conn struct {
	bot     *tele.Bot
	limiter *rate.Limiter
	log     logx.Logger

	closeOnce sync.Once
	events    chan transport.Event
}

func (c *conn) Events() <-chan transport.Event { return c.events }

func (c *conn) Send(ctx context.Context, target transport.Target, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &transport.SendError{Reason: "rate wait interrupted", ConnectionLost: true, Err: err}
	}

	_, err := c.bot.Send(recipientFor(target), text)
	if err == nil {
		return nil
	}
	if isAuthError(err) {
		return errors.Join(transport.ErrAuthRejected, err)
	}
	if isNetworkError(err) {
		c.emit(transport.Event{Kind: transport.EventClosed, Cause: err.Error()})
		return &transport.SendError{Reason: err.Error(), ConnectionLost: true, Err: err}
	}
	return &transport.SendError{Reason: err.Error(), Err: err}
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() { close(c.events) })
	return nil
}

func (c *conn) emit(ev transport.Event) {
	defer func() { _ = recover() }() // events may already be closed
	select {
	case c.events <- ev:
	default:
	}
}

// recipientFor maps the campaign target onto a Bot API chat reference:
// a numeric chat id for direct mode, or an @alias for broadcast mode.
func recipientFor(t transport.Target) tele.Recipient {
	addr := strings.TrimSpace(t.Address)
	if t.Mode == transport.ModeBroadcast && !strings.HasPrefix(addr, "@") {
		addr = "@" + addr
	}
	if id, err := strconv.ParseInt(addr, 10, 64); err == nil {
		return tele.ChatID(id)
	}
	return rawRecipient(addr)
}

type rawRecipient string

func (r rawRecipient) Recipient() string { return string(r) }

func isAuthError(err error) bool {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 401
	}
	return false
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
