package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/cgplatform/dbwriter/pkg/config"
	"github.com/cgplatform/dbwriter/pkg/db"
)

func testRetention() config.RetentionConfig {
	return config.RetentionConfig{
		GPSRawHours:        72,
		HistoryDays:        30,
		EventsDays:         90,
		BatchSize:          40,
		MaxBatchesPerCycle: 100,
		CleanupIntervalSec: 3600,
	}
}

func TestRunOnceLoopsUntilEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := db.NewMockStore(ctrl)
	sweeper := New(testRetention(), store, logrus.NewEntry(logrus.New()))

	now := time.Now()
	sweeper.SetClock(func() time.Time { return now })

	store.EXPECT().DeleteOlderThan(gomock.Any(), "gps_raw_history", "received_at",
		now.Add(-72*time.Hour), 40).Return(int64(0), nil)
	store.EXPECT().DeleteOlderThan(gomock.Any(), "history", "received_at",
		now.Add(-30*24*time.Hour), 40).Return(int64(0), nil)

	// 150 aged event rows drain in four batches: 40, 40, 40, 30, 0.
	eventsCutoff := now.Add(-90 * 24 * time.Hour)
	gomock.InOrder(
		store.EXPECT().DeleteOlderThan(gomock.Any(), "events", "created_at", eventsCutoff, 40).Return(int64(40), nil),
		store.EXPECT().DeleteOlderThan(gomock.Any(), "events", "created_at", eventsCutoff, 40).Return(int64(40), nil),
		store.EXPECT().DeleteOlderThan(gomock.Any(), "events", "created_at", eventsCutoff, 40).Return(int64(40), nil),
		store.EXPECT().DeleteOlderThan(gomock.Any(), "events", "created_at", eventsCutoff, 40).Return(int64(30), nil),
		store.EXPECT().DeleteOlderThan(gomock.Any(), "events", "created_at", eventsCutoff, 40).Return(int64(0), nil),
	)

	require.NoError(t, sweeper.RunOnce(context.Background()))
}

func TestRunOnceHonorsBatchCap(t *testing.T) {
	cfg := testRetention()
	cfg.MaxBatchesPerCycle = 3

	ctrl := gomock.NewController(t)
	store := db.NewMockStore(ctrl)
	sweeper := New(cfg, store, logrus.NewEntry(logrus.New()))

	store.EXPECT().DeleteOlderThan(gomock.Any(), "gps_raw_history", gomock.Any(), gomock.Any(), 40).
		Return(int64(40), nil).Times(3)
	store.EXPECT().DeleteOlderThan(gomock.Any(), "history", gomock.Any(), gomock.Any(), 40).
		Return(int64(0), nil)
	store.EXPECT().DeleteOlderThan(gomock.Any(), "events", gomock.Any(), gomock.Any(), 40).
		Return(int64(0), nil)

	require.NoError(t, sweeper.RunOnce(context.Background()))
}

func TestRunOnceStopsOnError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := db.NewMockStore(ctrl)
	sweeper := New(testRetention(), store, logrus.NewEntry(logrus.New()))

	wantErr := errors.New("disk on fire")

	store.EXPECT().DeleteOlderThan(gomock.Any(), "gps_raw_history", gomock.Any(), gomock.Any(), 40).
		Return(int64(0), wantErr)

	err := sweeper.RunOnce(context.Background())
	assert.ErrorIs(t, err, wantErr)
}

func TestZeroHorizonSkipsTarget(t *testing.T) {
	cfg := testRetention()
	cfg.GPSRawHours = 0

	ctrl := gomock.NewController(t)
	store := db.NewMockStore(ctrl)
	sweeper := New(cfg, store, logrus.NewEntry(logrus.New()))

	store.EXPECT().DeleteOlderThan(gomock.Any(), "history", gomock.Any(), gomock.Any(), 40).
		Return(int64(0), nil)
	store.EXPECT().DeleteOlderThan(gomock.Any(), "events", gomock.Any(), gomock.Any(), 40).
		Return(int64(0), nil)

	require.NoError(t, sweeper.RunOnce(context.Background()))
}
