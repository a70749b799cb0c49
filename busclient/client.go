// Package busclient provides the publish/subscribe frame transport over
// NATS. Publishing is fire-and-forget; subscriptions filter by topic prefix
// at the transport level, so frames for other nodes are never delivered. A
// subscription starts buffering eligible frames as soon as it is opened,
// before any application-level handshake is observed.
package busclient

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/plsm/assisi-go/errors"
	"github.com/plsm/assisi-go/wire"
)

// ConnectionStatus represents the state of the bus connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnected
	StatusReconnecting
	StatusClosed
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client manages one bus connection.
type Client struct {
	url    string
	status atomic.Value // stores ConnectionStatus
	logger *slog.Logger

	conn *nats.Conn
	subs []*nats.Subscription

	// Connection options
	clientName    string
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	reconnects atomic.Int32

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

// Dial creates a client and establishes the connection.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c := &Client{
		url:           url,
		logger:        slog.Default(),
		maxReconnects: -1, // infinite by default
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  30 * time.Second,
	}
	c.status.Store(StatusDisconnected)

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "Dial", "apply option")
		}
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	natsOpts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
	}
	if c.clientName != "" {
		natsOpts = append(natsOpts, nats.Name(c.clientName))
	}

	c.logger.Debug("connecting to bus", "url", c.url)

	connectDone := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(c.url, natsOpts...)
		if err != nil {
			connectDone <- err
			return
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		connectDone <- nil
	}()

	select {
	case err := <-connectDone:
		if err != nil {
			return errors.WrapTransient(err, "Client", "Dial", "establish connection")
		}
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Client", "Dial", "connection cancelled")
	}

	c.status.Store(StatusConnected)
	c.logger.Debug("connected to bus", "url", c.url)
	return nil
}

// URL returns the bus address this client dialed.
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	val := c.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

// IsHealthy returns true if the connection is healthy
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// Reconnects returns the number of times the connection was re-established.
func (c *Client) Reconnects() int32 {
	return c.reconnects.Load()
}

// Publish sends one frame. Delivery is fire-and-forget: no acknowledgement,
// no retry.
func (c *Client) Publish(_ context.Context, f wire.Frame) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(errors.ErrNotConnected, "Client", "Publish", "publish "+f.Subject())
	}
	if err := conn.Publish(f.Subject(), f.Payload); err != nil {
		return errors.WrapTransient(err, "Client", "Publish", "publish "+f.Subject())
	}
	return nil
}

// Subscribe opens a prefix-filtered inbound channel: only frames whose
// target equals prefix are delivered. capacity bounds the transport-side
// buffer of undelivered frames.
func (c *Client) Subscribe(prefix string, capacity int) (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return nil, errors.WrapTransient(errors.ErrNotConnected, "Client", "Subscribe", "subscribe "+prefix)
	}
	if capacity <= 0 {
		capacity = 64
	}

	ch := make(chan *nats.Msg, capacity)
	sub, err := c.conn.ChanSubscribe(prefix+".>", ch)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "Subscribe", "subscribe "+prefix)
	}
	c.subs = append(c.subs, sub)

	return newSubscription(sub, ch, c.logger), nil
}

// Close drains subscriptions and closes the connection. Safe to call more
// than once.
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Load() {
		return nil
	}
	c.closed.Store(true)

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	c.subs = nil

	if c.conn != nil {
		drainTimeout := c.drainTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
				drainTimeout = remaining
			}
		}

		drainDone := make(chan error, 1)
		go func() {
			drainDone <- c.conn.Drain()
		}()

		select {
		case err := <-drainDone:
			if err != nil {
				errs = append(errs, err)
			}
		case <-time.After(drainTimeout):
			c.logger.Warn("drain timeout, force closing", "timeout", drainTimeout)
		case <-ctx.Done():
			c.logger.Warn("context cancelled during drain, force closing")
		}

		c.conn.Close()
		c.conn = nil
	}

	c.status.Store(StatusClosed)

	if len(errs) > 0 {
		return errors.Wrap(stderrors.Join(errs...), "Client", "Close", "cleanup")
	}
	return nil
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	c.status.Store(StatusReconnecting)
	c.logger.Warn("bus disconnected", "url", c.url, "error", err)
}

func (c *Client) handleReconnect(_ *nats.Conn) {
	c.status.Store(StatusConnected)
	c.reconnects.Add(1)
	c.logger.Info("bus reconnected", "url", c.url)
}

func (c *Client) handleClosed(_ *nats.Conn) {
	if !c.closed.Load() {
		c.status.Store(StatusDisconnected)
	}
}
