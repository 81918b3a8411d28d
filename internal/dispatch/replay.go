package dispatch

import (
	"context"
	"fmt"

	"AlertPulse/internal/bundler"
	"AlertPulse/internal/domain/models"
	drepo "AlertPulse/internal/domain/repository"
	"AlertPulse/pkg/logger"
	"AlertPulse/pkg/queue"
)

// ReplayJob redelivers bundles that the bundler dropped after its in-band
// retry. It runs out of band on the redelivery queue, so a flaky transport
// gets more chances without stalling the dispatch path.
type ReplayJob struct {
	dispatcher drepo.Dispatcher
	log        *logger.Logger
}

func NewReplayJob(dispatcher drepo.Dispatcher, l *logger.Logger) *ReplayJob {
	return &ReplayJob{dispatcher: dispatcher, log: l}
}

func (j *ReplayJob) Name() string { return "bundle-replay" }

func (j *ReplayJob) Type() string { return bundler.DroppedBundleMsg }

func (j *ReplayJob) Handle(ctx context.Context, payload interface{}) error {
	b, err := queue.ParsePayload[models.AlertBundle](payload)
	if err != nil {
		return fmt.Errorf("replay payload: %w", err)
	}
	if err := j.dispatcher.Send(ctx, *b); err != nil {
		return fmt.Errorf("replay bundle %s: %w", b.BundleKey, err)
	}
	j.log.Info("dropped bundle redelivered",
		logger.String("bundle_key", b.BundleKey),
		logger.Int("members", len(b.Members)))
	return nil
}

var _ queue.Job = (*ReplayJob)(nil)
