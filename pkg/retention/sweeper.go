// Package retention pkg/retention/sweeper.go ages out raw history beyond the
// configured horizons with bounded delete batches.
package retention

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cgplatform/dbwriter/pkg/config"
	"github.com/cgplatform/dbwriter/pkg/db"
)

// target is one table/column/horizon triple.
type target struct {
	table   string
	column  string
	horizon time.Duration
}

// Sweeper periodically deletes rows older than each table's horizon. It
// never touches latest_state or gps_latest_filtered.
type Sweeper struct {
	store db.Store
	log   *logrus.Entry
	clock func() time.Time

	targets    []target
	batchSize  int
	maxBatches int
	interval   time.Duration
}

// New builds a sweeper from the retention config.
func New(cfg config.RetentionConfig, store db.Store, log *logrus.Entry) *Sweeper {
	return &Sweeper{
		store: store,
		log:   log,
		clock: time.Now,
		targets: []target{
			{table: "gps_raw_history", column: "received_at", horizon: time.Duration(cfg.GPSRawHours) * time.Hour},
			{table: "history", column: "received_at", horizon: time.Duration(cfg.HistoryDays) * 24 * time.Hour},
			{table: "events", column: "created_at", horizon: time.Duration(cfg.EventsDays) * 24 * time.Hour},
		},
		batchSize:  cfg.BatchSize,
		maxBatches: cfg.MaxBatchesPerCycle,
		interval:   time.Duration(cfg.CleanupIntervalSec) * time.Second,
	}
}

// SetClock overrides the time source, for tests.
func (s *Sweeper) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Run sweeps immediately and then on every interval tick until the context
// is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.log.WithError(err).Error("Retention sweep failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.WithError(err).Error("Retention sweep failed")
			}
		}
	}
}

// RunOnce executes one full sweep cycle over all targets. A target with a
// non-positive horizon is skipped. Each target loops bounded batches until
// the store reports zero deletions or the per-cycle cap is hit.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	now := s.clock()

	for _, t := range s.targets {
		if t.horizon <= 0 {
			continue
		}

		deleted, batches, err := s.sweepTarget(ctx, t, now.Add(-t.horizon))
		if err != nil {
			return err
		}

		if deleted > 0 {
			s.log.WithFields(logrus.Fields{
				"table":   t.table,
				"deleted": deleted,
				"batches": batches,
			}).Info("Aged out rows")
		}
	}

	return nil
}

func (s *Sweeper) sweepTarget(ctx context.Context, t target, cutoff time.Time) (int64, int, error) {
	var total int64

	for batches := 1; batches <= s.maxBatches; batches++ {
		deleted, err := s.store.DeleteOlderThan(ctx, t.table, t.column, cutoff, s.batchSize)
		if err != nil {
			return total, batches, err
		}

		total += deleted

		if deleted == 0 {
			return total, batches, nil
		}

		select {
		case <-ctx.Done():
			return total, batches, ctx.Err()
		default:
		}
	}

	s.log.WithField("table", t.table).
		Warn("Batch cap reached, remaining rows age out next cycle")

	return total, s.maxBatches, nil
}
