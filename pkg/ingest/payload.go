// Package ingest pkg/ingest/payload.go converts wire JSON into the typed
// models once, at the boundary.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cgplatform/dbwriter/pkg/models"
)

var (
	errMalformedPayload = errors.New("malformed payload")
	errMissingGPSBlock  = errors.New("payload has no GPS block")
	errMissingCoords    = errors.New("GPS block has no coordinates")
)

type gpsWire struct {
	GPS *gpsBody `json:"GPS"`
}

type gpsBody struct {
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Satellites  *int     `json:"satellites"`
	FixStatus   *int     `json:"fix_status"`
	Timestamp   *int64   `json:"timestamp"`
	DateISO8601 *string  `json:"date_iso_8601"`
}

type decodedWire struct {
	Timestamp string         `json:"timestamp"`
	RouterSN  string         `json:"router_sn"`
	BServerID *int           `json:"bserver_id"`
	Registers []registerWire `json:"registers"`
}

type registerWire struct {
	Addr   *int    `json:"addr"`
	Name   *string `json:"name"`
	Value  any     `json:"value"`
	Text   *string `json:"text"`
	Unit   *string `json:"unit"`
	Raw    *int64  `json:"raw"`
	Reason *string `json:"reason"`
}

// parseGPS decodes a telemetry payload into a fix. Missing quality fields
// come out negative; date_iso_8601 wins over the epoch timestamp.
func parseGPS(data []byte, routerSN string, receivedAt time.Time) (models.GPSFix, error) {
	var wire gpsWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return models.GPSFix{}, fmt.Errorf("%w: %w", errMalformedPayload, err)
	}

	if wire.GPS == nil {
		return models.GPSFix{}, errMissingGPSBlock
	}

	body := wire.GPS
	if body.Latitude == nil || body.Longitude == nil {
		return models.GPSFix{}, errMissingCoords
	}

	fix := models.GPSFix{
		RouterSN:   routerSN,
		Lat:        *body.Latitude,
		Lon:        *body.Longitude,
		Satellites: -1,
		FixStatus:  -1,
		ReceivedAt: receivedAt,
	}

	if body.Satellites != nil {
		fix.Satellites = *body.Satellites
	}

	if body.FixStatus != nil {
		fix.FixStatus = *body.FixStatus
	}

	switch {
	case body.DateISO8601 != nil:
		if t, err := time.Parse(time.RFC3339, *body.DateISO8601); err == nil {
			fix.GPSTime = t
		}
	case body.Timestamp != nil:
		fix.GPSTime = time.Unix(*body.Timestamp, 0).UTC()
	}

	return fix, nil
}

// parseDecoded decodes a register payload. The message timestamp falls back
// to the arrival time when absent or unparsable.
func parseDecoded(data []byte, receivedAt time.Time) (decodedWire, time.Time, error) {
	var wire decodedWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return decodedWire{}, time.Time{}, fmt.Errorf("%w: %w", errMalformedPayload, err)
	}

	ts := receivedAt

	if wire.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, wire.Timestamp); err == nil {
			ts = t
		}
	}

	return wire, ts, nil
}

// toSample converts one wire register into a typed sample. A non-numeric
// value shifts into the text column so latest_state keeps one value slot per
// kind.
func toSample(key models.StateKey, ts time.Time, reg *registerWire) models.RegisterSample {
	sample := models.RegisterSample{
		Key:    key,
		TS:     ts,
		Raw:    reg.Raw,
		Text:   reg.Text,
		Unit:   reg.Unit,
		Name:   reg.Name,
		Reason: reg.Reason,
	}

	switch v := reg.Value.(type) {
	case nil:
	case float64:
		sample.Value = &v
	case string:
		if sample.Text == nil {
			sample.Text = &v
		}
	case bool:
		if sample.Text == nil {
			text := strconv.FormatBool(v)
			sample.Text = &text
		}
	case json.Number:
		if f, err := v.Float64(); err == nil {
			sample.Value = &f
		}
	}

	return sample
}
