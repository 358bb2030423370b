package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/observability"
)

// JSON-RPC code for invalid params; a subscription rejected with it will never succeed.
const rpcInvalidParams = -32602

// StreamConfig configures stream client behavior.
type StreamConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the longest silence tolerated before the peer is considered dead.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// HandshakeTimeout bounds the websocket upgrade.
	HandshakeTimeout time.Duration
	// SubscribeTimeout bounds the wait for the subscription id.
	SubscribeTimeout time.Duration
	// Header is sent with the handshake (provider API keys).
	Header http.Header
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
	}
}

// StreamClient implements LogStream over a single gorilla/websocket connection
// that is re-established with exponential backoff whenever it drops.
type StreamClient struct {
	endpoint string
	host     string
	config   StreamConfig
	dialer   *websocket.Dialer
	logger   zerolog.Logger

	running   atomic.Bool
	seq       atomic.Uint64
	requestID atomic.Uint64

	errMu sync.Mutex
	err   error
}

// ValidateEndpoint checks that endpoint is a usable websocket URL.
func ValidateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: stream endpoint: %v", domain.ErrConfiguration, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: stream endpoint scheme must be ws or wss, got %q", domain.ErrConfiguration, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: stream endpoint has no host", domain.ErrConfiguration)
	}
	return nil
}

// NewStreamClient validates the endpoint and creates a client. No connection is made until Subscribe.
func NewStreamClient(endpoint string, config *StreamConfig, logger zerolog.Logger) (*StreamClient, error) {
	if err := ValidateEndpoint(endpoint); err != nil {
		return nil, err
	}
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}
	u, _ := url.Parse(endpoint)

	return &StreamClient{
		endpoint: endpoint,
		host:     u.Host,
		config:   cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger:   logger.With().Str("component", "stream").Logger(),
	}, nil
}

// Subscribe starts the connect/subscribe/read cycle in the background.
// Only one subscription may run at a time.
func (c *StreamClient) Subscribe(ctx context.Context, filter LogsFilter) (<-chan domain.RawEvent, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, errors.New("stream already subscribed")
	}
	c.setErr(nil)

	out := make(chan domain.RawEvent)
	go c.run(ctx, filter, out)
	return out, nil
}

// Err returns the permanent failure that closed the last subscription.
func (c *StreamClient) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *StreamClient) setErr(err error) {
	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()
}

func (c *StreamClient) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.ReconnectDelay
	b.MaxInterval = c.config.MaxReconnectDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// run owns the output channel. It retries transient failures forever and stops
// only on context cancellation or a permanent error.
func (c *StreamClient) run(ctx context.Context, filter LogsFilter, out chan<- domain.RawEvent) {
	defer c.running.Store(false)
	defer close(out)

	bo := c.newBackOff()
	connected := false
	attempt := 0

	for {
		subscribed, err := c.session(ctx, filter, out, connected, attempt)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, domain.ErrAuthRejected) || errors.Is(err, domain.ErrConfiguration) {
			c.setErr(err)
			c.logger.Error().Err(err).Str("host", c.host).Msg("stream terminated")
			return
		}
		if subscribed {
			connected = true
			attempt = 0
			bo.Reset()
		}
		attempt++

		delay := bo.NextBackOff()
		c.logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("stream disconnected, reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session runs one connection from dial to failure. subscribed reports whether
// the subscription was established, which resets the backoff.
func (c *StreamClient) session(ctx context.Context, filter LogsFilter, out chan<- domain.RawEvent, reconnect bool, attempt int) (subscribed bool, err error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return false, err
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sessCtx.Done()
		conn.Close()
	}()

	subID, err := c.subscribe(conn, filter)
	if err != nil {
		return false, err
	}
	c.logger.Info().Str("host", c.host).Int64("subscription", subID).Strs("mentions", filter.Mentions).Msg("logs subscribed")

	if reconnect {
		marker := domain.RawEvent{
			Kind:       domain.EventReconnected,
			ReceivedAt: time.Now(),
			Attempt:    attempt,
		}
		if err := c.deliver(sessCtx, out, marker); err != nil {
			return true, err
		}
	}

	go c.pingLoop(sessCtx, conn)
	return true, c.readLoop(sessCtx, conn, out)
}

// dial establishes the websocket connection.
func (c *StreamClient) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, c.config.Header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, fmt.Errorf("%w: handshake status %d", domain.ErrAuthRejected, resp.StatusCode)
			}
		}
		return nil, fmt.Errorf("%w: websocket dial: %v", domain.ErrTransientNetwork, err)
	}
	return conn, nil
}

// subscribe sends logsSubscribe and waits for the subscription id.
func (c *StreamClient) subscribe(conn *websocket.Conn, filter LogsFilter) (int64, error) {
	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params:  filter.params(),
	}

	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return 0, fmt.Errorf("%w: write subscribe: %v", domain.ErrTransientNetwork, err)
	}

	conn.SetReadDeadline(time.Now().Add(c.config.SubscribeTimeout))
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return 0, fmt.Errorf("%w: await subscription: %v", domain.ErrTransientNetwork, err)
		}

		var env wsEnvelope
		if err := json.Unmarshal(message, &env); err != nil || env.ID == nil || *env.ID != reqID {
			continue
		}
		if env.Error != nil {
			if env.Error.Code == rpcInvalidParams {
				return 0, fmt.Errorf("%w: subscription rejected: %v", domain.ErrConfiguration, env.Error)
			}
			return 0, fmt.Errorf("%w: subscription rejected: %v", domain.ErrTransientNetwork, env.Error)
		}

		var subID int64
		if err := json.Unmarshal(env.Result, &subID); err != nil {
			return 0, fmt.Errorf("%w: subscription id: %v", domain.ErrTransientNetwork, err)
		}
		return subID, nil
	}
}

// readLoop forwards notifications until the connection fails.
func (c *StreamClient) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- domain.RawEvent) error {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	for {
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: read: %v", domain.ErrTransientNetwork, err)
		}
		receivedAt := time.Now()

		var env wsEnvelope
		if err := json.Unmarshal(message, &env); err == nil && env.Method != "logsNotification" {
			if env.Error != nil {
				c.logger.Warn().Int("code", env.Error.Code).Str("msg", env.Error.Message).Msg("rpc error frame")
			}
			continue
		}

		// Notifications and undecodable frames go downstream; the detector owns parse errors.
		ev := domain.RawEvent{
			Kind:       domain.EventNotification,
			Payload:    message,
			ReceivedAt: receivedAt,
		}
		if err := c.deliver(ctx, out, ev); err != nil {
			return err
		}
	}
}

// deliver blocks until the consumer takes the event. Events are never dropped.
func (c *StreamClient) deliver(ctx context.Context, out chan<- domain.RawEvent, ev domain.RawEvent) error {
	ev.Seq = c.seq.Add(1)
	select {
	case out <- ev:
		if ev.IsMarker() {
			observability.RecordReconnect()
		} else {
			observability.RecordStreamEvent(float64(ev.ReceivedAt.Unix()))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *StreamClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	if c.config.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				// Reader notices the dead connection.
				return
			}
		}
	}
}

var _ LogStream = (*StreamClient)(nil)
