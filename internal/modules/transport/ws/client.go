// Package ws implements the WebSocket push client. Push records are the
// higher-priority source for live round fields.
package ws

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	rounddomain "github.com/frankieli/livetable/internal/modules/round/domain"
	"github.com/frankieli/livetable/internal/modules/round/store"
	"github.com/frankieli/livetable/internal/modules/session"
	"github.com/frankieli/livetable/internal/modules/transport/feed"
	"github.com/frankieli/livetable/pkg/logger"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
	reconnectDelay = 3 * time.Second
)

// Client maintains the push connection and feeds normalized records into the
// store. It reconnects with a fixed delay until its context is cancelled.
type Client struct {
	url     string
	session *session.Holder
	store   *store.Store
	dialer  *websocket.Dialer
}

// NewClient creates a push client for the given ws:// or wss:// URL
func NewClient(wsURL string, sess *session.Holder, st *store.Store) *Client {
	return &Client{
		url:     wsURL,
		session: sess,
		store:   st,
		dialer:  websocket.DefaultDialer,
	}
}

// Run connects and keeps reading until ctx is cancelled. Dial and read
// failures trigger a reconnect after a fixed delay; the REST poller covers
// the gap in the meantime.
func (c *Client) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.dial(ctx)
		if err != nil {
			logger.Warn(ctx).Err(err).Str("url", c.url).Msg("websocket dial failed")
		} else {
			c.readPump(ctx, conn)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	target, err := url.Parse(c.url)
	if err != nil {
		return nil, err
	}
	if token, ok := c.session.Get(); ok {
		q := target.Query()
		q.Set("token", token)
		target.RawQuery = q.Encode()
	}

	conn, _, err := c.dialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx).Str("url", c.url).Msg("websocket connected")
	return conn, nil
}

// readPump reads push messages until the connection drops. A ping loop keeps
// the connection alive; pongs extend the read deadline.
func (c *Client) readPump(ctx context.Context, conn *websocket.Conn) {
	var closeOnce sync.Once
	closeConn := func(reason string, err error) {
		closeOnce.Do(func() {
			logger.Warn(ctx).Str("reason", reason).Err(err).Msg("websocket closed")
			conn.Close()
		})
	}
	defer closeConn("read_loop_exit", nil)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					closeConn("ping_error", err)
					return
				}
			case <-pingDone:
				return
			case <-ctx.Done():
				closeConn("shutdown", nil)
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			closeConn("read_error", err)
			return
		}
		c.handleMessage(ctx, message)
	}
}

func (c *Client) handleMessage(ctx context.Context, message []byte) {
	records := feed.ParsePush(message)
	if len(records) == 0 {
		// Unparseable push noise is dropped; the feed self-corrects.
		logger.Debug(ctx).Int("size", len(message)).Msg("dropped unparseable push message")
		return
	}
	for _, rec := range records {
		c.store.ApplyTableRecord(ctx, rec, rounddomain.SourceWebSocket)
	}
}
