// Package models pkg/models/telemetry.go holds the value types shared by the
// ingest pipeline: GPS fixes, register samples, catalog entries and events.
package models

import "time"

// Value kinds carried by the register catalog.
const (
	KindAnalog   = "analog"
	KindDiscrete = "discrete"
	KindCounter  = "counter"
	KindEnum     = "enum"
	KindText     = "text"
)

// History write reasons.
const (
	WriteReasonFirst        = "first"
	WriteReasonChange       = "change"
	WriteReasonHeartbeat    = "heartbeat"
	WriteReasonReasonChange = "reason_change"
)

// GPS reject reasons.
const (
	RejectLowSats      = "low_sats"
	RejectBadFix       = "bad_fix"
	RejectJumpDistance = "jump_distance"
	RejectJumpSpeed    = "jump_speed"
)

// Event types.
const (
	EventRouterOffline   = "router_offline"
	EventRouterOnline    = "router_online"
	EventGPSJumpRejected = "gps_jump_rejected"
	EventGPSLowSats      = "gps_low_sats"
	EventGPSBadFix       = "gps_bad_fix"
	EventUnknownRegister = "unknown_register"
	EventStaleRegister   = "stale_register"
)

// GPSFix is a single parsed GPS observation. Satellites and FixStatus are
// negative when the device did not report them.
type GPSFix struct {
	RouterSN   string    `json:"router_sn"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Satellites int       `json:"satellites"`
	FixStatus  int       `json:"fix_status"`
	GPSTime    time.Time `json:"gps_time"`
	ReceivedAt time.Time `json:"received_at"`
}

// GPSRawRecord is the append-only row written for every inbound fix,
// accepted or not.
type GPSRawRecord struct {
	ID           int64   `json:"id"`
	Fix          GPSFix  `json:"fix"`
	Accepted     bool    `json:"accepted"`
	RejectReason *string `json:"reject_reason,omitempty"`
}

// StateKey identifies one register on one panel of one object.
type StateKey struct {
	RouterSN  string `json:"router_sn"`
	EquipType string `json:"equip_type"`
	PanelID   int    `json:"panel_id"`
	Addr      int    `json:"addr"`
}

// RegisterSample is one decoded register observation. Nil pointers map to
// NULL columns.
type RegisterSample struct {
	Key    StateKey  `json:"key"`
	TS     time.Time `json:"ts"`
	Value  *float64  `json:"value,omitempty"`
	Raw    *int64    `json:"raw,omitempty"`
	Text   *string   `json:"text,omitempty"`
	Unit   *string   `json:"unit,omitempty"`
	Name   *string   `json:"name,omitempty"`
	Reason *string   `json:"reason,omitempty"`
}

// CatalogKey addresses one register catalog entry.
type CatalogKey struct {
	EquipType string `json:"equip_type"`
	Addr      int    `json:"addr"`
}

// CatalogEntry is the per-register storage policy. Nil policy fields fall
// back to the configured history defaults.
type CatalogEntry struct {
	EquipType      string   `json:"equip_type"`
	Addr           int      `json:"addr"`
	NameDefault    string   `json:"name_default"`
	UnitDefault    string   `json:"unit_default"`
	ValueKind      string   `json:"value_kind"`
	Tolerance      *float64 `json:"tolerance,omitempty"`
	MinIntervalSec *int     `json:"min_interval_sec,omitempty"`
	HeartbeatSec   *int     `json:"heartbeat_sec,omitempty"`
	StoreHistory   bool     `json:"store_history"`
}

// Event is an append-only derived event. EquipType and PanelID are set only
// for panel-scoped events.
type Event struct {
	RouterSN    string         `json:"router_sn"`
	EquipType   *string        `json:"equip_type,omitempty"`
	PanelID     *int           `json:"panel_id,omitempty"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Numeric reports whether the catalog value kind uses deadband tolerance.
func Numeric(valueKind string) bool {
	switch valueKind {
	case KindAnalog, KindDiscrete, KindCounter:
		return true
	default:
		return false
	}
}
