package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Brokers    []string
	GroupID    string
	BufferSize int
	RetryMax   int
	BackoffMin time.Duration
	BackoffMax time.Duration
	MinBytes   int
	MaxBytes   int
}

// WithConsumerBrokers sets Kafka brokers.
func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Brokers = brokers
	}
}

// WithConsumerGroupID sets consumer group ID.
func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.GroupID = groupID
	}
}

// WithConsumerRetry configures retry attempts and backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerFetch sets fetch min/max bytes.
func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.MinBytes = minBytes
		c.MaxBytes = maxBytes
	}
}

// WithConsumerBufferSize sets the internal channel buffer size.
func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

// Consumer reads registered topics and runs each message through its
// handler. A handler error is retried with jittered backoff; the offset is
// committed either way so a poison message cannot wedge the partition.
type Consumer struct {
	cfg      *ConsumerConfig
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:    "default",
		BufferSize: 256,
		RetryMax:   3,
		BackoffMin: 50 * time.Millisecond,
		BackoffMax: 2 * time.Second,
		MinBytes:   1,
		MaxBytes:   10e6,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	initConsumerMetricsOnce()
	return &Consumer{
		cfg:      cfg,
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]MessageHandler),
		stopChan: make(chan struct{}),
	}, nil
}

// RegisterHandler registers a handler for its topic. Must be called before
// Start.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	c.handlers[handler.Topic()] = handler
}

// Start opens one reader per registered topic and begins consuming.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("no handlers registered")
	}

	for topic := range c.handlers {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        c.cfg.Brokers,
			GroupID:        c.cfg.GroupID,
			Topic:          topic,
			MinBytes:       c.cfg.MinBytes,
			MaxBytes:       c.cfg.MaxBytes,
			StartOffset:    kafka.LastOffset,
			CommitInterval: 0, // explicit commits
		})
		c.readers[topic] = reader

		c.wg.Add(1)
		go c.consume(topic, reader)
	}
	return nil
}

// Stop shuts down all readers and waits for in-flight handlers.
func (c *Consumer) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopChan) })

	for _, reader := range c.readers {
		_ = reader.Close()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) consume(topic string, reader *kafka.Reader) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		km, err := reader.FetchMessage(context.Background())
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			select {
			case <-c.stopChan:
				return
			case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, 0)):
			}
			continue
		}

		c.handleWithRetry(topic, km)

		if err := reader.CommitMessages(context.Background(), km); err != nil {
			consumerCommitErrs.WithLabelValues(topic).Inc()
		}
	}
}

func (c *Consumer) handleWithRetry(topic string, km kafka.Message) {
	handler := c.handlers[topic]
	start := time.Now()

	var err error
	for attempt := 0; attempt <= c.cfg.RetryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-c.stopChan:
				return
			case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
			}
		}
		if err = handler.Handle(context.Background(), km.Value); err == nil {
			break
		}
	}

	consumerHandleSeconds.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	if err != nil {
		consumerHandleErrs.WithLabelValues(topic).Inc()
	}
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := min << uint(attempt)
	if d > max || d <= 0 {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d/2 + jitter
}

var (
	consumerHandleSeconds *prometheus.HistogramVec
	consumerHandleErrs    *prometheus.CounterVec
	consumerCommitErrs    *prometheus.CounterVec
	consumerOnce          = make(chan struct{}, 1)
)

func initConsumerMetricsOnce() {
	select {
	case consumerOnce <- struct{}{}:
		consumerHandleSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alertpulse_kafka_consumer_handle_seconds",
				Help:    "Handling time per message",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic"},
		)
		consumerHandleErrs = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertpulse_kafka_consumer_handle_errors_total",
				Help: "Messages that failed after all retries",
			},
			[]string{"topic"},
		)
		consumerCommitErrs = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertpulse_kafka_consumer_commit_errors_total",
				Help: "Offset commit failures",
			},
			[]string{"topic"},
		)
	default:
		// already initialized
	}
}
