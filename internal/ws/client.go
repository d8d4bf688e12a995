package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const defaultReadLimit = 4 << 20

type Options struct {
	URL            string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	// PingPayload is written as JSON on every ping tick. When nil a protocol
	// level ping frame is sent instead.
	PingPayload any
	ReadLimit   int64
	// OnReconnect runs after a dropped connection has been re-established
	// and subscriptions replayed.
	OnReconnect func(ctx context.Context)
}

type Client struct {
	opts Options
	log  *zap.Logger

	mu   sync.Mutex
	url  string
	conn *websocket.Conn
	subs []any
}

func New(opts Options, log *zap.Logger) *Client {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{opts: opts, url: opts.URL, log: log}
}

// SetURL changes the endpoint used by the next dial. The current connection,
// if any, is left untouched.
func (c *Client) SetURL(url string) {
	c.mu.Lock()
	c.url = url
	c.mu.Unlock()
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(c.opts.ReadLimit)
	c.conn = conn
	return nil
}

// Subscribe sends sub now and replays it after every reconnect.
func (c *Client) Subscribe(ctx context.Context, sub any) error {
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("ws not connected")
	}
	return writeJSON(ctx, conn, sub)
}

// Run reads until ctx is done, reconnecting after read failures.
func (c *Client) Run(ctx context.Context, handler func(json.RawMessage)) error {
	reconnect := false
	for {
		if err := c.ensureConnected(ctx, reconnect); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("ws connect failed", zap.Error(err))
			c.resetConn()
			if !sleepCtx(ctx, c.opts.ReconnectDelay) {
				return ctx.Err()
			}
			reconnect = true
			continue
		}
		if reconnect && c.opts.OnReconnect != nil {
			c.opts.OnReconnect(ctx)
		}
		pingCtx, cancel := context.WithCancel(ctx)
		pingDone := make(chan struct{})
		go func() {
			defer close(pingDone)
			c.pingLoop(pingCtx)
		}()
		err := c.readLoop(ctx, handler)
		cancel()
		<-pingDone
		if ctx.Err() != nil {
			c.resetConn()
			return ctx.Err()
		}
		c.logReadLoopError(err)
		c.resetConn()
		if !sleepCtx(ctx, c.opts.ReconnectDelay) {
			return ctx.Err()
		}
		reconnect = true
	}
}

func (c *Client) ensureConnected(ctx context.Context, replay bool) error {
	c.mu.Lock()
	fresh := c.conn == nil
	c.mu.Unlock()
	if err := c.Connect(ctx); err != nil {
		return err
	}
	if !fresh && !replay {
		return nil
	}
	c.mu.Lock()
	conn := c.conn
	subs := append([]any(nil), c.subs...)
	c.mu.Unlock()
	for _, sub := range subs {
		if err := writeJSON(ctx, conn, sub); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context, handler func(json.RawMessage)) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("ws not connected")
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if handler != nil {
			handler(json.RawMessage(data))
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	interval := c.opts.PingInterval
	if conn == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var err error
			if c.opts.PingPayload != nil {
				err = writeJSON(ctx, conn, c.opts.PingPayload)
			} else {
				err = conn.Ping(ctx)
			}
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) logReadLoopError(err error) {
	var closeErr websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == websocket.StatusNormalClosure {
		c.log.Info("ws read loop ended", zap.Int("status", int(closeErr.Code)), zap.String("reason", closeErr.Reason))
		return
	}
	c.log.Warn("ws read loop ended", zap.Error(err))
}

func (c *Client) resetConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "reset")
		c.conn = nil
	}
}

// Close drops the current connection. Run reconnects unless its context is done.
func (c *Client) Close() {
	c.resetConn()
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
