package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"AlertPulse/internal/domain/models"
	drepo "AlertPulse/internal/domain/repository"
	pkgkafka "AlertPulse/pkg/kafka"
	"AlertPulse/pkg/logger"
)

// KafkaSignalSource consumes candidate signals published by an external
// rule layer and feeds them into the push cadence.
type KafkaSignalSource struct {
	consumer *pkgkafka.Consumer
	topic    string
	log      *logger.Logger

	out  chan models.CandidateSignal
	errs chan error
}

// NewKafkaSignalSource builds a signal source over the candidate topic.
func NewKafkaSignalSource(consumer *pkgkafka.Consumer, topic string, l *logger.Logger) *KafkaSignalSource {
	return &KafkaSignalSource{
		consumer: consumer,
		topic:    topic,
		log:      l,
		out:      make(chan models.CandidateSignal, 256),
		errs:     make(chan error, 1),
	}
}

// Topic implements kafka.MessageHandler.
func (s *KafkaSignalSource) Topic() string { return s.topic }

// Handle implements kafka.MessageHandler. Malformed payloads are dropped;
// a bad message must not wedge the topic.
func (s *KafkaSignalSource) Handle(_ context.Context, data []byte) error {
	var sig models.CandidateSignal
	if err := json.Unmarshal(data, &sig); err != nil {
		s.log.Warn("dropping malformed candidate payload", logger.Error(err))
		return nil
	}
	if sig.StrategyID == "" || sig.Symbol == "" {
		s.log.Warn("dropping candidate without key fields")
		return nil
	}
	if sig.DetectedAt.IsZero() {
		sig.DetectedAt = time.Now().UTC()
	}

	select {
	case s.out <- sig:
	default:
		s.log.Warn("candidate buffer full, dropping signal",
			logger.String("strategy", sig.StrategyID),
			logger.String("symbol", sig.Symbol))
	}
	return nil
}

// Start registers the handler and begins consuming.
func (s *KafkaSignalSource) Start(_ context.Context) (<-chan models.CandidateSignal, <-chan error) {
	s.consumer.RegisterHandler(s)
	if err := s.consumer.Start(); err != nil {
		s.errs <- fmt.Errorf("start candidate consumer: %w", err)
	}
	return s.out, s.errs
}

// Close stops the consumer and closes the output channel.
func (s *KafkaSignalSource) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.consumer.Stop(ctx)
	close(s.out)
	return err
}

var _ drepo.SignalSource = (*KafkaSignalSource)(nil)
