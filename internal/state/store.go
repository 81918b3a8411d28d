package state

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"

	"AlertPulse/internal/domain/models"
	drepo "AlertPulse/internal/domain/repository"
	"AlertPulse/pkg/config"
	"AlertPulse/pkg/logger"
)

const keyPrefix = "alert:"

// lockStripes bounds the per-key mutex table. Both cadences evaluating the
// same (strategy, symbol) serialize on the same stripe.
const lockStripes = 64

// Store is the durable dedup/cooldown gate backed by BadgerDB. Writes are
// synchronous; a record visible to the caller has been committed to disk.
// Fail-closed: any write that cannot be confirmed yields a rejection.
type Store struct {
	db      *badger.DB
	cfg     config.Config
	locks   [lockStripes]sync.Mutex
	metrics drepo.Metrics
	bus     drepo.EventBus
	log     *logger.Logger
}

// Open opens (or creates) the store at cfg.State.Path.
func Open(cfg *config.Config, l *logger.Logger, metrics drepo.Metrics, bus drepo.EventBus) (*Store, error) {
	opts := badger.DefaultOptions(cfg.State.Path)
	opts.SyncWrites = true // approval must not outrun persistence
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	return &Store{db: db, cfg: *cfg, metrics: metrics, bus: bus, log: l}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func recordKey(key models.AlertKey) []byte {
	return []byte(keyPrefix + key.StrategyID + "|" + key.Symbol)
}

func (s *Store) stripe(key models.AlertKey) *sync.Mutex {
	h := fnv.New32a()
	h.Write(recordKey(key))
	return &s.locks[h.Sum32()%lockStripes]
}

// Evaluate applies the transition rules for sig's key and persists the
// result before returning. The returned Decision is authoritative only when
// err is nil; on error the caller must treat the signal as rejected.
func (s *Store) Evaluate(ctx context.Context, sig models.ScoredSignal, now time.Time) (models.Decision, error) {
	mu := s.stripe(sig.Key())
	mu.Lock()
	defer mu.Unlock()

	var decision models.Decision
	var err error
	backoff := 50 * time.Millisecond
	retries := s.cfg.State.WriteRetries
	if retries < 1 {
		retries = 1
	}

	for attempt := 0; attempt < retries; attempt++ {
		decision, err = s.evaluateOnce(sig, now)
		if err == nil {
			s.metrics.RecordDecision(sig.StrategyID, string(decision.Outcome))
			return decision, nil
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			attempt = retries
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	// Retries exhausted: fail closed.
	s.metrics.RecordError("state_write")
	s.bus.Publish(models.PipelineEvent{
		Kind:     models.EventStoreError,
		Strategy: sig.StrategyID,
		Symbol:   sig.Symbol,
		Reason:   "write_failed",
		At:       now,
	})
	s.log.Error("state write failed, rejecting signal",
		logger.String("key", sig.Key().String()), logger.Error(err))
	return models.Decision{Outcome: models.OutcomeRejected, Reason: "store_error"}, err
}

func (s *Store) evaluateOnce(sig models.ScoredSignal, now time.Time) (models.Decision, error) {
	var decision models.Decision
	err := s.db.Update(func(txn *badger.Txn) error {
		key := recordKey(sig.Key())

		var rec *models.AlertRecord
		item, err := txn.Get(key)
		switch err {
		case nil:
			rec = &models.AlertRecord{}
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, rec)
			}); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
		case badger.ErrKeyNotFound:
			rec = nil
		default:
			return fmt.Errorf("get record: %w", err)
		}

		next := s.transition(rec, sig, now, &decision)
		buf, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		return txn.Set(key, buf)
	})
	if err != nil {
		return models.Decision{}, err
	}
	return decision, nil
}

// transition computes the next record and fills decision. Pure apart from
// the passed clock.
func (s *Store) transition(rec *models.AlertRecord, sig models.ScoredSignal, now time.Time, decision *models.Decision) models.AlertRecord {
	base := time.Duration(s.cfg.State.CooldownBaseSeconds) * time.Second
	maxCD := time.Duration(s.cfg.State.CooldownMaxSeconds) * time.Second
	window := time.Duration(s.cfg.State.EscalationWindowSeconds) * time.Second

	if rec == nil || !now.Before(rec.CooldownUntil) {
		next := models.AlertRecord{
			Key:              sig.Key(),
			Status:           models.StatusActive,
			FiredAt:          now,
			CooldownUntil:    now.Add(base),
			LastQualityScore: sig.QualityScore,
		}
		*decision = models.Decision{Outcome: models.OutcomeApproved, Reason: "cooldown_clear", Record: next}
		return next
	}

	next := *rec
	next.LastQualityScore = sig.QualityScore

	// Escalation override: enough suppressions inside the rolling window
	// force delivery without touching the normal cooldown.
	recent := countWithin(next.SuppressedAt, now, window)
	if recent >= s.cfg.State.BurstEscalationThreshold {
		next.SuppressedAt = nil // demand a fresh burst before the next override
		*decision = models.Decision{Outcome: models.OutcomeEscalated, Reason: "burst_escalation", Record: next}
		return next
	}

	next.Status = models.StatusCooldown
	next.ConsecutiveSuppressions++
	extended := now.Add(backoffCooldown(base, maxCD, s.cfg.State.BackoffMultiplier, next.ConsecutiveSuppressions))
	if extended.After(next.CooldownUntil) {
		next.CooldownUntil = extended
	}
	next.SuppressedAt = trimWindow(append(next.SuppressedAt, now), now, window)

	*decision = models.Decision{Outcome: models.OutcomeRejected, Reason: "cooldown_active", Record: next}
	return next
}

// backoffCooldown returns min(base·multiplier^n, max).
func backoffCooldown(base, max time.Duration, multiplier float64, n int) time.Duration {
	d := time.Duration(float64(base) * math.Pow(multiplier, float64(n)))
	if d > max || d < 0 { // overflow guard
		return max
	}
	return d
}

func countWithin(times []time.Time, now time.Time, window time.Duration) int {
	n := 0
	for _, t := range times {
		if now.Sub(t) <= window {
			n++
		}
	}
	return n
}

func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	out := times[:0]
	for _, t := range times {
		if now.Sub(t) <= window {
			out = append(out, t)
		}
	}
	return out
}

// Get returns the record for a key, or nil when none exists.
func (s *Store) Get(_ context.Context, key models.AlertKey) (*models.AlertRecord, error) {
	var rec *models.AlertRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		rec = &models.AlertRecord{}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, rec)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// Prune removes records whose last firing predates the cutoff and whose
// cooldown has long expired. Returns the number of deleted records.
func (s *Store) Prune(_ context.Context, olderThan time.Time) (int, error) {
	deleted := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		var stale [][]byte
		for it.Seek([]byte(keyPrefix)); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			item := it.Item()
			var rec models.AlertRecord
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			}); err != nil {
				continue // unreadable record, leave for manual cleanup
			}
			if rec.FiredAt.Before(olderThan) && rec.CooldownUntil.Before(olderThan) {
				stale = append(stale, item.KeyCopy(nil))
			}
		}
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return deleted, fmt.Errorf("prune: %w", err)
	}
	return deleted, nil
}

var _ drepo.StateStore = (*Store)(nil)
