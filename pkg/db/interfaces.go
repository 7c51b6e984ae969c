// Package db pkg/db/interfaces.go
package db

//go:generate mockgen -destination=mock_db.go -package=db github.com/cgplatform/dbwriter/pkg/db Store

import (
	"context"
	"time"

	"github.com/cgplatform/dbwriter/pkg/models"
)

// HistoryRow pairs a sample with the reason it is being persisted.
type HistoryRow struct {
	Sample      models.RegisterSample `json:"sample"`
	WriteReason string                `json:"write_reason"`
}

// DecodedBatch carries everything one decoded message produced. The store
// applies it in a single transaction so a crash never leaves a history row
// without its latest_state update.
type DecodedBatch struct {
	RouterSN  string                  `json:"router_sn"`
	EquipType string                  `json:"equip_type"`
	PanelID   int                     `json:"panel_id"`
	Now       time.Time               `json:"now"`
	Latest    []models.RegisterSample `json:"latest"`
	History   []HistoryRow            `json:"history"`
	Events    []models.Event          `json:"events"`
}

// Store is the persistence port. All operations return errors wrapped with
// ErrTransient or ErrFatal.
type Store interface {
	// Object / equipment lifecycle.

	UpsertObject(ctx context.Context, routerSN string) error
	UpsertEquipment(ctx context.Context, routerSN, equipType string, panelID int, now time.Time) error

	// Register catalog.

	LoadCatalog(ctx context.Context) (map[models.CatalogKey]models.CatalogEntry, error)

	// GPS. ApplyGPS atomically upserts the object, appends the raw record,
	// and — depending on the verdict — overwrites the latest filtered fix or
	// appends a reject event. It returns the raw row id.

	ApplyGPS(ctx context.Context, rec *models.GPSRawRecord, latest *models.GPSFix, ev *models.Event) (int64, error)
	LoadGPSLatestAll(ctx context.Context) (map[string]models.GPSFix, error)

	// Decoded registers.

	ApplyDecoded(ctx context.Context, batch *DecodedBatch) error
	LoadLatestStateAll(ctx context.Context) ([]models.RegisterSample, error)

	// Events.

	InsertEvent(ctx context.Context, ev *models.Event) error

	// Maintenance.

	DeleteOlderThan(ctx context.Context, table, column string, cutoff time.Time, batchSize int) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}
