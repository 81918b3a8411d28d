// Package stream implements the push-cadence inputs: a WebSocket metric
// stream and a Kafka candidate-signal source.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"AlertPulse/internal/domain/models"
	drepo "AlertPulse/internal/domain/repository"
	"AlertPulse/pkg/logger"
)

// WSClient implements a SampleStream over a provider WebSocket feed.
type WSClient struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	conn      *websocket.Conn
	connected bool
}

// NewWebSocket creates a WebSocket sample stream for the given symbols.
func NewWebSocket(apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, l *logger.Logger) *WSClient {
	return &WSClient{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            l,
	}
}

// Connect establishes the WebSocket connection and subscribes.
func (c *WSClient) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	c.log.Info("metric stream connected", logger.String("url", c.websocketURL))

	for _, s := range c.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": s}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	return nil
}

type wsMetric struct {
	S string  `json:"s"` // symbol
	M string  `json:"m"` // metric name
	V float64 `json:"v"` // value
	E string  `json:"e"` // exchange
	T int64   `json:"t"` // ms
}

type wsFrame struct {
	Type string     `json:"type"`
	Data []wsMetric `json:"data"`
}

// Read streams metric samples and errors. A read error terminates both
// channels; the caller decides whether to Reconnect.
func (c *WSClient) Read(ctx context.Context) (<-chan models.MetricSample, <-chan error) {
	samples := make(chan models.MetricSample, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(samples)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("stream conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("stream read: %w", err)
					return
				}
				var frame wsFrame
				if err := json.Unmarshal(b, &frame); err != nil {
					// ignore non-metric frames
					continue
				}
				if frame.Type != "metric" {
					continue
				}
				for _, d := range frame.Data {
					sample := models.MetricSample{
						Exchange:  d.E,
						Symbol:    d.S,
						Metric:    models.MetricName(d.M),
						RawValue:  d.V,
						Timestamp: time.UnixMilli(d.T).UTC(),
					}
					select {
					case samples <- sample:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return samples, errs
}

// Reconnect closes and reconnects.
func (c *WSClient) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.reconnectDelay):
	}
	return c.Connect(ctx)
}

// Close closes the connection.
func (c *WSClient) Close() error {
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *WSClient) IsConnected() bool { return c.connected }

var _ drepo.SampleStream = (*WSClient)(nil)
