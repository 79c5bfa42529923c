package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Batch is one frame of live records for a vehicle.
type Batch struct {
	VIN     string
	Records []any
}

type signalFrame struct {
	Type    string `json:"type,omitempty"`
	VIN     string `json:"vin"`
	Records []any  `json:"records,omitempty"`
}

// SignalOptions configures a SignalClient. Zero values take the defaults.
type SignalOptions struct {
	Header       http.Header
	Dialer       *websocket.Dialer
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	PingInterval time.Duration
	WriteTimeout time.Duration
	Buffer       int
	Logger       *zap.Logger
}

// SignalClient keeps a websocket subscription to the live feed for one
// vehicle at a time, reconnecting with capped exponential backoff.
type SignalClient struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger *zap.Logger

	minBackoff   time.Duration
	maxBackoff   time.Duration
	pingInterval time.Duration
	writeTimeout time.Duration

	batches chan Batch

	mu   sync.Mutex
	conn *websocket.Conn
	vin  string

	writeMu sync.Mutex
}

func NewSignalClient(url string, opts SignalOptions) *SignalClient {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &SignalClient{
		url:          url,
		header:       opts.Header,
		dialer:       opts.Dialer,
		logger:       opts.Logger,
		minBackoff:   opts.MinBackoff,
		maxBackoff:   opts.MaxBackoff,
		pingInterval: opts.PingInterval,
		writeTimeout: opts.WriteTimeout,
		batches:      make(chan Batch, opts.Buffer),
	}
}

// Batches delivers received frames. It is closed when Run returns.
func (c *SignalClient) Batches() <-chan Batch {
	return c.batches
}

// Resubscribe moves the subscription to vin. When disconnected the VIN is
// remembered and subscribed on the next connect.
func (c *SignalClient) Resubscribe(_ context.Context, vin string) error {
	c.mu.Lock()
	prev := c.vin
	c.vin = vin
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.logger.Debug("signal feed not connected, subscription deferred", zap.String("vin", vin))
		return nil
	}
	if prev != "" && prev != vin {
		if err := c.writeJSON(conn, signalFrame{Type: "unsubscribe", VIN: prev}); err != nil {
			return err
		}
	}
	return c.writeJSON(conn, signalFrame{Type: "subscribe", VIN: vin})
}

func (c *SignalClient) writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(conn, websocket.TextMessage, data)
}

func (c *SignalClient) write(conn *websocket.Conn, messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return conn.WriteMessage(messageType, data)
}

// Run connects and reads until ctx is done, reconnecting after failures.
func (c *SignalClient) Run(ctx context.Context) error {
	defer close(c.batches)

	backoff := c.minBackoff
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = c.minBackoff
		}
		c.logger.Info("signal feed disconnected", zap.Error(err), zap.Duration("retry_in", backoff))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

// session runs one connection until it fails. connected reports whether
// the dial succeeded.
func (c *SignalClient) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return false, err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	c.mu.Lock()
	c.conn = conn
	vin := c.vin
	c.mu.Unlock()
	c.logger.Info("signal feed connected", zap.String("url", c.url))

	if vin != "" {
		if err := c.writeJSON(conn, signalFrame{Type: "subscribe", VIN: vin}); err != nil {
			return true, err
		}
	}

	readTimeout := 2 * c.pingInterval
	conn.SetReadLimit(1024 * 1024)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go c.ping(conn, done)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		var frame signalFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("discarding malformed signal frame", zap.Error(err))
			continue
		}
		if frame.VIN == "" || len(frame.Records) == 0 {
			continue
		}
		select {
		case c.batches <- Batch{VIN: frame.VIN, Records: frame.Records}:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}

func (c *SignalClient) ping(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.write(conn, websocket.PingMessage, []byte("ping")); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.logger.Debug("signal ping failed", zap.Error(err))
				}
				return
			}
		}
	}
}
