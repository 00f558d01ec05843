package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// StreamOptions parameterise the derivative-channel websocket client.
type StreamOptions struct {
	URL              string
	HandshakeTimeout time.Duration
	ReconnectDelay   time.Duration
}

// PerpStream consumes the futures combined mini-ticker stream and hands
// validated samples to a TickHandler. It reconnects with a fixed delay and
// only stops when its context is cancelled.
type PerpStream struct {
	opts   StreamOptions
	logger zerolog.Logger
	dialer *websocket.Dialer
}

// NewPerpStream constructs a stream client.
func NewPerpStream(opts StreamOptions, logger zerolog.Logger) *PerpStream {
	handshake := opts.HandshakeTimeout
	if handshake <= 0 {
		handshake = 10 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}

	return &PerpStream{
		opts:   opts,
		logger: logger.With().Str("component", "perp_stream").Logger(),
		dialer: &websocket.Dialer{HandshakeTimeout: handshake},
	}
}

// Run blocks, feeding ticks to the handler until ctx is cancelled.
func (p *PerpStream) Run(ctx context.Context, handler TickHandler) error {
	if p.opts.URL == "" {
		return errors.New("stream url not configured")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := p.readConnection(ctx, handler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn().Err(err).
				Dur("retry_in", p.opts.ReconnectDelay).
				Msg("stream connection lost; reconnecting")
		}

		timer := time.NewTimer(p.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (p *PerpStream) readConnection(ctx context.Context, handler TickHandler) error {
	conn, _, err := p.dialer.DialContext(ctx, p.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}

	// Unblock the blocking read when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	p.logger.Info().Str("url", p.opts.URL).Msg("stream connected")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}

		ticks, err := decodeMiniTickers(message)
		if err != nil {
			p.logger.Warn().Err(err).Msg("skipping undecodable stream message")
			continue
		}

		for _, tick := range ticks {
			price, err := decimal.NewFromString(tick.Close)
			if err != nil || tick.Symbol == "" {
				continue
			}
			handler(tick.Symbol, price, time.UnixMilli(tick.EventTime).UTC())
		}
	}
}

type miniTicker struct {
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	EventTime int64  `json:"E"`
}

// decodeMiniTickers accepts the combined-stream array form and the single
// event form.
func decodeMiniTickers(payload []byte) ([]miniTicker, error) {
	var ticks []miniTicker
	if err := json.Unmarshal(payload, &ticks); err == nil {
		return ticks, nil
	}

	var single miniTicker
	if err := json.Unmarshal(payload, &single); err != nil {
		return nil, fmt.Errorf("decode mini ticker: %w", err)
	}
	return []miniTicker{single}, nil
}
