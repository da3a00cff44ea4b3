// Package event consumes the remote server's ordered event stream over
// a persistent WebSocket connection and hands envelopes to a single
// consumer, preserving arrival order.
package event

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Config holds event stream configuration.
type Config struct {
	// URL is the WebSocket URL, e.g. "ws://localhost:4096/event".
	URL string

	// Token is the server auth token, sent as a Bearer header.
	Token string

	// ReconnectInterval is the initial delay between reconnection attempts.
	ReconnectInterval time.Duration

	// MaxReconnectInterval caps the exponential backoff.
	MaxReconnectInterval time.Duration

	// Buffer is the event channel capacity.
	Buffer int
}

// DefaultConfig returns sane defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		ReconnectInterval:    1 * time.Second,
		MaxReconnectInterval: 30 * time.Second,
		Buffer:               256,
	}
}

// Stream is a persistent WebSocket consumer of the server event stream.
// Events are delivered on the channel returned by Events in arrival
// order; there must be exactly one consumer.
type Stream struct {
	cfg    Config
	logger zerolog.Logger
	events chan Envelope
}

// NewStream creates a stream. Run must be called to start consuming.
func NewStream(cfg Config, logger zerolog.Logger) *Stream {
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = 1 * time.Second
	}
	if cfg.MaxReconnectInterval == 0 {
		cfg.MaxReconnectInterval = 30 * time.Second
	}
	if cfg.Buffer == 0 {
		cfg.Buffer = 256
	}
	return &Stream{
		cfg:    cfg,
		logger: logger.With().Str("component", "event-stream").Logger(),
		events: make(chan Envelope, cfg.Buffer),
	}
}

// Events returns the ordered event channel. Closed when Run returns.
func (s *Stream) Events() <-chan Envelope { return s.events }

// Run connects and reads events until ctx is cancelled, reconnecting
// with exponential backoff on connection loss. After every successful
// (re)connect a synthetic server.connected envelope is emitted so the
// consumer can refresh state that changed while disconnected.
func (s *Stream) Run(ctx context.Context) error {
	defer close(s.events)

	attempt := 0
	for {
		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay := s.backoff(attempt)
			attempt++
			s.logger.Warn().Err(err).Dur("retry_in", delay).Msg("event stream dial failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		attempt = 0
		s.logger.Info().Str("url", s.cfg.URL).Msg("event stream connected")
		s.emit(ctx, Envelope{Type: TypeServerConnected})

		if err := s.readLoop(ctx, conn); err != nil && ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("event stream read error")
		}
		conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *Stream) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	header := http.Header{}
	header.Set("X-Client-ID", uuid.New().String())
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, header)
	return conn, err
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) error {
	// Unblock ReadMessage when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			s.logger.Warn().Err(err).Msg("event parse error")
			continue
		}
		if env.Type == "" {
			continue
		}

		if !s.emit(ctx, env) {
			return ctx.Err()
		}
	}
}

// emit delivers an envelope, blocking until the consumer accepts it or
// the context ends. Blocking here is the stream's backpressure: the
// websocket is not read faster than events are applied.
func (s *Stream) emit(ctx context.Context, env Envelope) bool {
	select {
	case s.events <- env:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Stream) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(s.cfg.ReconnectInterval) * math.Pow(2, float64(attempt)))
	if delay > s.cfg.MaxReconnectInterval {
		delay = s.cfg.MaxReconnectInterval
	}
	return delay
}
