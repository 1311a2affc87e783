package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"handsteady/internal/handik"
)

const (
	sensorConnectAttempts = 10
	sensorRetryDelay      = 500 * time.Millisecond
)

// TrackingClient reads hand frames from a tracking bridge over websocket.
//
// Run owns the connection and reconnects on failure. The daemon loop calls
// Poll once per tick; only the newest frame is kept between polls.
type TrackingClient struct {
	url         string
	logger      *slog.Logger
	readTimeout time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	latest   *handik.Frame
	received uint64
	dropped  uint64
	invalid  uint64
}

// NewTrackingClient validates wsURL and returns an unconnected client.
func NewTrackingClient(wsURL string, readTimeoutMS int, logger *slog.Logger) (*TrackingClient, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid websocket URL %q: scheme must be ws or wss", wsURL)
	}
	if readTimeoutMS <= 0 {
		readTimeoutMS = defaultReadTimeoutMS
	}
	return &TrackingClient{
		url:         wsURL,
		logger:      logger,
		readTimeout: time.Duration(readTimeoutMS) * time.Millisecond,
	}, nil
}

// connect establishes a websocket connection to the bridge.
func (c *TrackingClient) connect(ctx context.Context) error {
	d := websocket.Dialer{
		HandshakeTimeout: 2 * time.Second,
	}
	conn, _, err := d.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// connectWithRetry attempts to connect a bounded number of times.
func (c *TrackingClient) connectWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < sensorConnectAttempts; attempt++ {
		err := c.connect(ctx)
		if err == nil {
			c.logger.Info("connected to tracking bridge", "url", c.url)
			return nil
		}
		lastErr = err
		c.logger.Warn("tracking bridge connection failed; retrying...", "error", err, "attempt", attempt+1)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sensorRetryDelay):
		}
	}
	return fmt.Errorf("failed to connect after %d attempts: %w", sensorConnectAttempts, lastErr)
}

// Run reads frames until ctx is canceled. A read error or timeout drops the
// connection and reconnects. It returns an error only when reconnecting
// gives up.
func (c *TrackingClient) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	for {
		if err := c.connectWithRetry(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		err := c.readLoop()
		if ctx.Err() != nil {
			return nil
		}
		c.markLost()
		c.logger.Warn("tracking bridge connection lost; reconnecting...", "error", err)
	}
}

func (c *TrackingClient) readLoop() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no websocket connection")
	}

	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var wf wireFrame
		if err := json.Unmarshal(msg, &wf); err != nil {
			c.rejected("decode frame", err)
			continue
		}
		frame, err := wf.toFrame()
		if err != nil {
			c.rejected("convert frame", err)
			continue
		}
		c.store(frame)
	}
}

func (c *TrackingClient) rejected(what string, err error) {
	c.mu.Lock()
	c.invalid++
	c.mu.Unlock()
	c.logger.Debug("tracking frame rejected", "stage", what, "error", err)
}

func (c *TrackingClient) store(f *handik.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest != nil {
		c.dropped++
	}
	c.latest = f
	c.received++
}

// markLost queues an empty frame so both hands release while reconnecting.
func (c *TrackingClient) markLost() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest = &handik.Frame{}
}

// Poll returns the newest frame since the previous Poll, or nil.
func (c *TrackingClient) Poll() *handik.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.latest
	c.latest = nil
	return f
}

// Stats returns frames received, frames superseded before being polled and
// frames rejected as malformed.
func (c *TrackingClient) Stats() (received, dropped, invalid uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.received, c.dropped, c.invalid
}

// Close closes the current connection, if any.
func (c *TrackingClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
