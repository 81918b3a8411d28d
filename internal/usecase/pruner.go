package usecase

import (
	"context"
	"sync"
	"time"

	drepo "AlertPulse/internal/domain/repository"
	"AlertPulse/pkg/config"
	"AlertPulse/pkg/logger"
)

const pruneInterval = 24 * time.Hour

// Pruner removes alert records older than the retention horizon. With
// retention disabled it is a no-op.
type Pruner struct {
	store     drepo.StateStore
	retention time.Duration
	log       *logger.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewPruner(cfg config.StateConfig, store drepo.StateStore, l *logger.Logger) *Pruner {
	return &Pruner{
		store:     store,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		log:       l,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

func (p *Pruner) Start(ctx context.Context) {
	go func() {
		defer close(p.doneCh)
		if p.retention <= 0 {
			return
		}
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()

		p.runOnce(ctx)
		for {
			select {
			case <-ticker.C:
				p.runOnce(ctx)
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			}
		}
	}()
}

func (p *Pruner) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.doneCh
}

func (p *Pruner) runOnce(ctx context.Context) {
	cutoff := time.Now().Add(-p.retention)
	n, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		p.log.Error("state prune failed", logger.Error(err))
		return
	}
	if n > 0 {
		p.log.Info("pruned expired alert records", logger.Int("removed", n))
	}
}
