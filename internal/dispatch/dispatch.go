// Package dispatch implements the outbound bundle transports. The bundler
// owns retry policy; a dispatcher makes exactly one delivery attempt.
package dispatch

import (
	"context"
	"fmt"

	"AlertPulse/internal/domain/models"
	drepo "AlertPulse/internal/domain/repository"
	"AlertPulse/pkg/config"
	xhttp "AlertPulse/pkg/http"
	pkgkafka "AlertPulse/pkg/kafka"
	"AlertPulse/pkg/logger"
)

// New builds the dispatcher selected by cfg.Backend.
func New(cfg config.DispatchConfig, kcfg config.KafkaConfig, l *logger.Logger) (drepo.Dispatcher, error) {
	switch cfg.Backend {
	case "webhook":
		return NewWebhook(cfg), nil
	case "kafka":
		producer, err := pkgkafka.NewProducer(
			pkgkafka.WithBrokers(kcfg.Brokers),
			pkgkafka.WithMaxAttempts(1),
			pkgkafka.WithRequiredAcks(kcfg.RequiredAcks),
			pkgkafka.WithCompression(kcfg.Compression),
			pkgkafka.WithBatchTimeout(kcfg.Producer.Linger),
			pkgkafka.WithTimeouts(kcfg.Producer.WriteTimeout, kcfg.Producer.WriteTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka dispatcher: %w", err)
		}
		return NewKafka(producer, kcfg.BundleTopic), nil
	case "log":
		return NewLog(l), nil
	default:
		return nil, fmt.Errorf("unknown dispatch backend %q", cfg.Backend)
	}
}

// Webhook POSTs each bundle as JSON to a configured endpoint.
type Webhook struct {
	client *xhttp.Client
	url    string
}

func NewWebhook(cfg config.DispatchConfig) *Webhook {
	return &Webhook{
		client: xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout)),
		url:    cfg.WebhookURL,
	}
}

func (w *Webhook) Send(ctx context.Context, bundle models.AlertBundle) error {
	return w.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    w.url,
		Body:   bundle,
	}, nil)
}

// Kafka publishes bundles to a topic, keyed by bundle key so downstream
// consumers see per-key ordering.
type Kafka struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafka(producer *pkgkafka.Producer, topic string) *Kafka {
	return &Kafka{producer: producer, topic: topic}
}

func (k *Kafka) Send(ctx context.Context, bundle models.AlertBundle) error {
	return k.producer.Publish(ctx, k.topic, []byte(bundle.BundleKey), bundle)
}

func (k *Kafka) Close() error { return k.producer.Close() }

// Log writes bundles to the structured log. Used in development and as a
// last-resort backend when no transport is configured.
type Log struct {
	log *logger.Logger
}

func NewLog(l *logger.Logger) *Log { return &Log{log: l} }

func (d *Log) Send(_ context.Context, bundle models.AlertBundle) error {
	for _, m := range bundle.Members {
		d.log.Info("alert",
			logger.String("bundle_key", bundle.BundleKey),
			logger.String("strategy", m.Signal.StrategyID),
			logger.String("symbol", m.Signal.Symbol),
			logger.String("direction", string(m.Signal.Direction)),
			logger.Int("tier", int(m.Signal.PriorityTier)),
			logger.Float64("quality", m.Signal.QualityScore),
			logger.String("reason", m.Signal.Reason))
	}
	return nil
}

var (
	_ drepo.Dispatcher = (*Webhook)(nil)
	_ drepo.Dispatcher = (*Kafka)(nil)
	_ drepo.Dispatcher = (*Log)(nil)
)
