// Package db pkg/db/db.go provides the SQLite implementation of the
// persistence port.
package db

import (
	"database/sql"
	"encoding/json"

	"context"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/sirupsen/logrus"

	"github.com/cgplatform/dbwriter/pkg/models"
)

const createTablesSQL = `
	-- Mobile objects, implicitly created on first message
	CREATE TABLE IF NOT EXISTS objects (
		router_sn TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Panels attached to objects
	CREATE TABLE IF NOT EXISTS equipment (
		router_sn TEXT NOT NULL,
		equip_type TEXT NOT NULL,
		panel_id INTEGER NOT NULL,
		first_seen_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_seen_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (router_sn, equip_type, panel_id)
	);

	-- Per-register storage policy
	CREATE TABLE IF NOT EXISTS register_catalog (
		equip_type TEXT NOT NULL,
		addr INTEGER NOT NULL,
		name_default TEXT,
		unit_default TEXT,
		value_kind TEXT NOT NULL DEFAULT 'analog',
		tolerance REAL,
		min_interval_sec INTEGER,
		heartbeat_sec INTEGER,
		store_history BOOLEAN NOT NULL DEFAULT 1,
		PRIMARY KEY (equip_type, addr)
	);

	-- Every inbound fix, accepted or not
	CREATE TABLE IF NOT EXISTS gps_raw_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		router_sn TEXT NOT NULL,
		gps_time TIMESTAMP,
		received_at TIMESTAMP NOT NULL,
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		satellites INTEGER,
		fix_status INTEGER,
		accepted BOOLEAN NOT NULL,
		reject_reason TEXT
	);

	-- One row per object, overwritten on every accepted fix
	CREATE TABLE IF NOT EXISTS gps_latest_filtered (
		router_sn TEXT PRIMARY KEY,
		gps_time TIMESTAMP,
		received_at TIMESTAMP NOT NULL,
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		satellites INTEGER,
		fix_status INTEGER
	);

	-- One row per register, overwritten on every observation
	CREATE TABLE IF NOT EXISTS latest_state (
		router_sn TEXT NOT NULL,
		equip_type TEXT NOT NULL,
		panel_id INTEGER NOT NULL,
		addr INTEGER NOT NULL,
		ts TIMESTAMP,
		value REAL,
		raw INTEGER,
		text TEXT,
		unit TEXT,
		name TEXT,
		reason TEXT,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (router_sn, equip_type, panel_id, addr)
	);

	-- Append-only register time series
	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		router_sn TEXT NOT NULL,
		equip_type TEXT NOT NULL,
		panel_id INTEGER NOT NULL,
		addr INTEGER NOT NULL,
		ts TIMESTAMP,
		value REAL,
		raw INTEGER,
		text TEXT,
		reason TEXT,
		write_reason TEXT NOT NULL,
		received_at TIMESTAMP NOT NULL
	);

	-- Derived events
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		router_sn TEXT NOT NULL,
		equip_type TEXT,
		panel_id INTEGER,
		type TEXT NOT NULL,
		description TEXT,
		payload TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_gps_raw_router_time
		ON gps_raw_history(router_sn, received_at);
	CREATE INDEX IF NOT EXISTS idx_gps_raw_received
		ON gps_raw_history(received_at);
	CREATE INDEX IF NOT EXISTS idx_history_key_time
		ON history(router_sn, equip_type, panel_id, addr, ts);
	CREATE INDEX IF NOT EXISTS idx_history_received
		ON history(received_at);
	CREATE INDEX IF NOT EXISTS idx_events_router_time
		ON events(router_sn, created_at);
	CREATE INDEX IF NOT EXISTS idx_events_created
		ON events(created_at);

	PRAGMA foreign_keys=ON;
`

// DB implements Store on SQLite.
type DB struct {
	*sql.DB
	log *logrus.Entry
}

// New opens the database, enables WAL mode, bounds the connection pool and
// initializes the schema.
func New(path string, poolMax int, log *logrus.Entry) (Store, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedOpenDB, err)
	}

	if poolMax > 0 {
		sqlDB.SetMaxOpenConns(poolMax)
	}

	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToInit, classify(err))
	}

	db := &DB{DB: sqlDB, log: log}
	if err := db.initSchema(); err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToInit, classify(err))
	}

	return db, nil
}

func (db *DB) initSchema() error {
	_, err := db.Exec(createTablesSQL)

	return err
}

func rollbackOnError(tx *sql.Tx, err *error, log *logrus.Entry) {
	if *err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.WithError(rbErr).Error("Failed to rollback transaction")
		}
	}
}

// UpsertObject creates the object row on first sighting and refreshes
// updated_at afterwards.
func (db *DB) UpsertObject(ctx context.Context, routerSN string) error {
	const upsertSQL = `
		INSERT INTO objects (router_sn, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(router_sn) DO UPDATE SET updated_at = excluded.updated_at
	`

	now := time.Now().UTC()

	if _, err := db.ExecContext(ctx, upsertSQL, routerSN, now, now); err != nil {
		return fmt.Errorf("%w object: %w", errFailedToUpsert, classify(err))
	}

	return nil
}

// UpsertEquipment creates the equipment row on first sighting and refreshes
// last_seen_at afterwards.
func (db *DB) UpsertEquipment(ctx context.Context, routerSN, equipType string, panelID int, now time.Time) error {
	const upsertSQL = `
		INSERT INTO equipment (router_sn, equip_type, panel_id, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(router_sn, equip_type, panel_id)
		DO UPDATE SET last_seen_at = excluded.last_seen_at
	`

	if _, err := db.ExecContext(ctx, upsertSQL, routerSN, equipType, panelID, now.UTC(), now.UTC()); err != nil {
		return fmt.Errorf("%w equipment: %w", errFailedToUpsert, classify(err))
	}

	return nil
}

// LoadCatalog reads the full register catalog.
func (db *DB) LoadCatalog(ctx context.Context) (map[models.CatalogKey]models.CatalogEntry, error) {
	const querySQL = `
		SELECT equip_type, addr, name_default, unit_default, value_kind,
		       tolerance, min_interval_sec, heartbeat_sec, store_history
		FROM register_catalog
	`

	rows, err := db.QueryContext(ctx, querySQL)
	if err != nil {
		return nil, fmt.Errorf("%w register catalog: %w", errFailedToQuery, classify(err))
	}
	defer db.closeRows(rows)

	catalog := make(map[models.CatalogKey]models.CatalogEntry)

	for rows.Next() {
		var (
			entry       models.CatalogEntry
			name, unit  sql.NullString
			tolerance   sql.NullFloat64
			minInterval sql.NullInt64
			heartbeat   sql.NullInt64
		)

		err := rows.Scan(&entry.EquipType, &entry.Addr, &name, &unit, &entry.ValueKind,
			&tolerance, &minInterval, &heartbeat, &entry.StoreHistory)
		if err != nil {
			return nil, fmt.Errorf("%w catalog row: %w", errFailedToScan, classify(err))
		}

		entry.NameDefault = name.String
		entry.UnitDefault = unit.String

		if tolerance.Valid {
			entry.Tolerance = &tolerance.Float64
		}

		if minInterval.Valid {
			v := int(minInterval.Int64)
			entry.MinIntervalSec = &v
		}

		if heartbeat.Valid {
			v := int(heartbeat.Int64)
			entry.HeartbeatSec = &v
		}

		catalog[models.CatalogKey{EquipType: entry.EquipType, Addr: entry.Addr}] = entry
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w register catalog: %w", errFailedToQuery, classify(err))
	}

	return catalog, nil
}

// ApplyGPS writes one inbound fix atomically: object upsert, raw append, and
// either the latest-filtered overwrite or a reject event.
func (db *DB) ApplyGPS(ctx context.Context, rec *models.GPSRawRecord, latest *models.GPSFix, ev *models.Event) (rawID int64, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errFailedToBeginTx, classify(err))
	}
	defer rollbackOnError(tx, &err, db.log)

	const upsertObjectSQL = `
		INSERT INTO objects (router_sn, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(router_sn) DO UPDATE SET updated_at = excluded.updated_at
	`

	now := rec.Fix.ReceivedAt.UTC()

	if _, err = tx.ExecContext(ctx, upsertObjectSQL, rec.Fix.RouterSN, now, now); err != nil {
		return 0, fmt.Errorf("%w object: %w", errFailedToUpsert, classify(err))
	}

	const insertRawSQL = `
		INSERT INTO gps_raw_history
			(router_sn, gps_time, received_at, lat, lon, satellites, fix_status, accepted, reject_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := tx.ExecContext(ctx, insertRawSQL,
		rec.Fix.RouterSN, nullTime(rec.Fix.GPSTime), now,
		rec.Fix.Lat, rec.Fix.Lon,
		nullNonNegative(rec.Fix.Satellites), nullNonNegative(rec.Fix.FixStatus),
		rec.Accepted, rec.RejectReason)
	if err != nil {
		return 0, fmt.Errorf("%w gps raw: %w", errFailedToInsert, classify(err))
	}

	rawID, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w gps raw id: %w", errFailedToInsert, classify(err))
	}

	if latest != nil {
		if err = upsertGPSLatestTx(ctx, tx, latest); err != nil {
			return 0, err
		}
	}

	if ev != nil {
		if err = insertEventTx(ctx, tx, ev); err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w gps: %w", errFailedToInsert, classify(err))
	}

	return rawID, nil
}

func upsertGPSLatestTx(ctx context.Context, tx *sql.Tx, fix *models.GPSFix) error {
	const upsertSQL = `
		INSERT INTO gps_latest_filtered
			(router_sn, gps_time, received_at, lat, lon, satellites, fix_status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(router_sn) DO UPDATE SET
			gps_time = excluded.gps_time,
			received_at = excluded.received_at,
			lat = excluded.lat,
			lon = excluded.lon,
			satellites = excluded.satellites,
			fix_status = excluded.fix_status
	`

	_, err := tx.ExecContext(ctx, upsertSQL,
		fix.RouterSN, nullTime(fix.GPSTime), fix.ReceivedAt.UTC(),
		fix.Lat, fix.Lon,
		nullNonNegative(fix.Satellites), nullNonNegative(fix.FixStatus))
	if err != nil {
		return fmt.Errorf("%w gps latest: %w", errFailedToUpsert, classify(err))
	}

	return nil
}

// LoadGPSLatestAll restores the filter seed state at startup.
func (db *DB) LoadGPSLatestAll(ctx context.Context) (map[string]models.GPSFix, error) {
	const querySQL = `
		SELECT router_sn, gps_time, received_at, lat, lon, satellites, fix_status
		FROM gps_latest_filtered
	`

	rows, err := db.QueryContext(ctx, querySQL)
	if err != nil {
		return nil, fmt.Errorf("%w gps latest: %w", errFailedToQuery, classify(err))
	}
	defer db.closeRows(rows)

	fixes := make(map[string]models.GPSFix)

	for rows.Next() {
		var (
			fix        models.GPSFix
			gpsTime    sql.NullTime
			sats, stat sql.NullInt64
		)

		err := rows.Scan(&fix.RouterSN, &gpsTime, &fix.ReceivedAt, &fix.Lat, &fix.Lon, &sats, &stat)
		if err != nil {
			return nil, fmt.Errorf("%w gps latest row: %w", errFailedToScan, classify(err))
		}

		fix.GPSTime = gpsTime.Time
		fix.Satellites = intOrNegative(sats)
		fix.FixStatus = intOrNegative(stat)

		fixes[fix.RouterSN] = fix
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w gps latest: %w", errFailedToQuery, classify(err))
	}

	return fixes, nil
}

// ApplyDecoded persists everything one decoded message produced in a single
// transaction.
func (db *DB) ApplyDecoded(ctx context.Context, batch *DecodedBatch) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToBeginTx, classify(err))
	}
	defer rollbackOnError(tx, &err, db.log)

	now := batch.Now.UTC()

	const upsertObjectSQL = `
		INSERT INTO objects (router_sn, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(router_sn) DO UPDATE SET updated_at = excluded.updated_at
	`

	if _, err = tx.ExecContext(ctx, upsertObjectSQL, batch.RouterSN, now, now); err != nil {
		return fmt.Errorf("%w object: %w", errFailedToUpsert, classify(err))
	}

	const upsertEquipmentSQL = `
		INSERT INTO equipment (router_sn, equip_type, panel_id, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(router_sn, equip_type, panel_id)
		DO UPDATE SET last_seen_at = excluded.last_seen_at
	`

	if _, err = tx.ExecContext(ctx, upsertEquipmentSQL, batch.RouterSN, batch.EquipType, batch.PanelID, now, now); err != nil {
		return fmt.Errorf("%w equipment: %w", errFailedToUpsert, classify(err))
	}

	const upsertLatestSQL = `
		INSERT INTO latest_state
			(router_sn, equip_type, panel_id, addr, ts, value, raw, text, unit, name, reason, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(router_sn, equip_type, panel_id, addr) DO UPDATE SET
			ts = excluded.ts,
			value = excluded.value,
			raw = excluded.raw,
			text = excluded.text,
			unit = excluded.unit,
			name = excluded.name,
			reason = excluded.reason,
			updated_at = excluded.updated_at
	`

	for i := range batch.Latest {
		s := &batch.Latest[i]

		_, err = tx.ExecContext(ctx, upsertLatestSQL,
			s.Key.RouterSN, s.Key.EquipType, s.Key.PanelID, s.Key.Addr,
			nullTime(s.TS), s.Value, s.Raw, s.Text, s.Unit, s.Name, s.Reason, now)
		if err != nil {
			return fmt.Errorf("%w latest_state: %w", errFailedToUpsert, classify(err))
		}
	}

	const insertHistorySQL = `
		INSERT INTO history
			(router_sn, equip_type, panel_id, addr, ts, value, raw, text, reason, write_reason, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for i := range batch.History {
		h := &batch.History[i]
		s := &h.Sample

		_, err = tx.ExecContext(ctx, insertHistorySQL,
			s.Key.RouterSN, s.Key.EquipType, s.Key.PanelID, s.Key.Addr,
			nullTime(s.TS), s.Value, s.Raw, s.Text, s.Reason, h.WriteReason, now)
		if err != nil {
			return fmt.Errorf("%w history: %w", errFailedToInsert, classify(err))
		}
	}

	for i := range batch.Events {
		if err = insertEventTx(ctx, tx, &batch.Events[i]); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w decoded batch: %w", errFailedToInsert, classify(err))
	}

	return nil
}

// LoadLatestStateAll restores the history policy seed state at startup.
func (db *DB) LoadLatestStateAll(ctx context.Context) ([]models.RegisterSample, error) {
	const querySQL = `
		SELECT router_sn, equip_type, panel_id, addr, ts, value, raw, text, unit, name, reason, updated_at
		FROM latest_state
	`

	rows, err := db.QueryContext(ctx, querySQL)
	if err != nil {
		return nil, fmt.Errorf("%w latest_state: %w", errFailedToQuery, classify(err))
	}
	defer db.closeRows(rows)

	var samples []models.RegisterSample

	for rows.Next() {
		var (
			s         models.RegisterSample
			ts        sql.NullTime
			value     sql.NullFloat64
			raw       sql.NullInt64
			text      sql.NullString
			unit      sql.NullString
			name      sql.NullString
			reason    sql.NullString
			updatedAt time.Time
		)

		err := rows.Scan(&s.Key.RouterSN, &s.Key.EquipType, &s.Key.PanelID, &s.Key.Addr,
			&ts, &value, &raw, &text, &unit, &name, &reason, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w latest_state row: %w", errFailedToScan, classify(err))
		}

		if ts.Valid {
			s.TS = ts.Time
		} else {
			s.TS = updatedAt
		}

		if value.Valid {
			s.Value = &value.Float64
		}

		if raw.Valid {
			s.Raw = &raw.Int64
		}

		s.Text = nullableString(text)
		s.Unit = nullableString(unit)
		s.Name = nullableString(name)
		s.Reason = nullableString(reason)

		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w latest_state: %w", errFailedToQuery, classify(err))
	}

	return samples, nil
}

// InsertEvent appends one event outside any message transaction (watchdog,
// health probes).
func (db *DB) InsertEvent(ctx context.Context, ev *models.Event) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToBeginTx, classify(err))
	}
	defer rollbackOnError(tx, &err, db.log)

	if err = insertEventTx(ctx, tx, ev); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w event: %w", errFailedToInsert, classify(err))
	}

	return nil
}

func insertEventTx(ctx context.Context, tx *sql.Tx, ev *models.Event) error {
	const insertSQL = `
		INSERT INTO events (router_sn, equip_type, panel_id, type, description, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var payload any

	if len(ev.Payload) > 0 {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("%w event payload: %w", ErrFatal, err)
		}

		payload = string(data)
	}

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := tx.ExecContext(ctx, insertSQL,
		ev.RouterSN, ev.EquipType, ev.PanelID, ev.Type, ev.Description, payload, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("%w event: %w", errFailedToInsert, classify(err))
	}

	return nil
}

// Ping checks store liveness for the health probe.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", errFailedToQuery, classify(err))
	}

	return nil
}

func (db *DB) closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		db.log.WithError(err).Error("Failed to close rows")
	}
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t.UTC()
}

func nullNonNegative(v int) any {
	if v < 0 {
		return nil
	}

	return v
}

func intOrNegative(v sql.NullInt64) int {
	if !v.Valid {
		return -1
	}

	return int(v.Int64)
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}

	return &v.String
}
