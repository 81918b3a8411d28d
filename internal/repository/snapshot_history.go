package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"AlertPulse/internal/domain/models"
	drepo "AlertPulse/internal/domain/repository"
	pkgch "AlertPulse/pkg/clickhouse"
	applogger "AlertPulse/pkg/logger"
)

// SnapshotSchema creates the snapshot history table. Idempotent.
var SnapshotSchema = []string{
	`CREATE TABLE IF NOT EXISTS alert_snapshots (
		window_start DateTime64(3),
		window_end   DateTime64(3),
		generated    UInt32,
		suppressed   UInt32,
		escalated    UInt32,
		dispatched   UInt32,
		dispatch_failed UInt32,
		samples_dropped UInt32,
		degraded_scores UInt32,
		store_errors UInt32,
		fetch_errors UInt32,
		detail       String
	) ENGINE = MergeTree()
	ORDER BY window_end
	TTL toDateTime(window_end) + INTERVAL 90 DAY`,
}

// CHSnapshotHistory persists finished tracker snapshots to ClickHouse so
// the dashboard can render trends beyond the current process lifetime.
type CHSnapshotHistory struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHSnapshotHistory(ch *pkgch.Client, l *applogger.Logger) (*CHSnapshotHistory, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ch.InitSchema(ctx, SnapshotSchema); err != nil {
		return nil, err
	}
	return &CHSnapshotHistory{db: ch.DB(), l: l}, nil
}

func (s *CHSnapshotHistory) Store(ctx context.Context, snap models.MetricsSnapshot) error {
	detail, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	suppressed := 0
	for _, n := range snap.SuppressedByReason {
		suppressed += n
	}

	const q = `
        INSERT INTO alert_snapshots
        (window_start, window_end, generated, suppressed, escalated, dispatched,
         dispatch_failed, samples_dropped, degraded_scores, store_errors, fetch_errors, detail)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	if _, err := s.db.ExecContext(ctx, q,
		snap.WindowStart, snap.WindowEnd,
		uint32(snap.Generated), uint32(suppressed), uint32(snap.Escalated),
		uint32(snap.Dispatched), uint32(snap.DispatchFailed),
		uint32(snap.SamplesDropped), uint32(snap.DegradedScores),
		uint32(snap.StoreErrors), uint32(snap.FetchErrors),
		string(detail),
	); err != nil {
		s.l.Error("clickhouse snapshot insert error", applogger.Error(err))
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Recent returns up to limit snapshots ending after since, newest first.
func (s *CHSnapshotHistory) Recent(ctx context.Context, since time.Time, limit int) ([]models.MetricsSnapshot, error) {
	const q = `
        SELECT detail
        FROM alert_snapshots
        WHERE window_end >= ?
        ORDER BY window_end DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.MetricsSnapshot
	for rows.Next() {
		var detail string
		if err := rows.Scan(&detail); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		var snap models.MetricsSnapshot
		if err := json.Unmarshal([]byte(detail), &snap); err != nil {
			s.l.Warn("skipping malformed snapshot row", applogger.Error(err))
			continue
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

var _ drepo.SnapshotSink = (*CHSnapshotHistory)(nil)
