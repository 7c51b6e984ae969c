package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgplatform/dbwriter/pkg/models"
)

func TestParseGPS(t *testing.T) {
	now := time.Now()

	fix, err := parseGPS([]byte(`{
		"GPS": {
			"latitude": 59.851624, "longitude": 30.479838,
			"satellites": 8, "fix_status": 1,
			"timestamp": 1700000000
		}
	}`), "SN-1", now)
	require.NoError(t, err)
	assert.Equal(t, "SN-1", fix.RouterSN)
	assert.InDelta(t, 59.851624, fix.Lat, 1e-9)
	assert.Equal(t, 8, fix.Satellites)
	assert.Equal(t, 1, fix.FixStatus)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), fix.GPSTime)
	assert.Equal(t, now, fix.ReceivedAt)
}

func TestParseGPSISODateWins(t *testing.T) {
	fix, err := parseGPS([]byte(`{
		"GPS": {
			"latitude": 1, "longitude": 2,
			"timestamp": 1700000000,
			"date_iso_8601": "2024-05-01T12:00:00Z"
		}
	}`), "SN-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), fix.GPSTime)
}

func TestParseGPSMissingQualityFields(t *testing.T) {
	fix, err := parseGPS([]byte(`{"GPS": {"latitude": 1, "longitude": 2}}`), "SN-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, -1, fix.Satellites)
	assert.Equal(t, -1, fix.FixStatus)
	assert.True(t, fix.GPSTime.IsZero())
}

func TestParseGPSErrors(t *testing.T) {
	now := time.Now()

	_, err := parseGPS([]byte(`{not json`), "SN-1", now)
	assert.ErrorIs(t, err, errMalformedPayload)

	_, err = parseGPS([]byte(`{"other": 1}`), "SN-1", now)
	assert.ErrorIs(t, err, errMissingGPSBlock)

	_, err = parseGPS([]byte(`{"GPS": {"latitude": 1}}`), "SN-1", now)
	assert.ErrorIs(t, err, errMissingCoords)
}

func TestParseDecoded(t *testing.T) {
	now := time.Now()

	wire, ts, err := parseDecoded([]byte(`{
		"timestamp": "2024-05-01T12:00:00Z",
		"router_sn": "SN-1",
		"registers": [
			{"addr": 40034, "value": 150.0, "unit": "V"},
			{"addr": 40100, "value": "MANUAL"}
		]
	}`), now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), ts)
	require.Len(t, wire.Registers, 2)
}

func TestParseDecodedFallsBackToArrivalTime(t *testing.T) {
	now := time.Now()

	_, ts, err := parseDecoded([]byte(`{"registers": []}`), now)
	require.NoError(t, err)
	assert.Equal(t, now, ts)

	_, ts, err = parseDecoded([]byte(`{"timestamp": "yesterday", "registers": []}`), now)
	require.NoError(t, err)
	assert.Equal(t, now, ts)
}

func TestToSampleShiftsNonNumericValue(t *testing.T) {
	key := models.StateKey{RouterSN: "SN-1", EquipType: "pcc", PanelID: 1, Addr: 40100}
	ts := time.Now()

	s := toSample(key, ts, &registerWire{Value: "MANUAL"})
	assert.Nil(t, s.Value)
	require.NotNil(t, s.Text)
	assert.Equal(t, "MANUAL", *s.Text)

	// Explicit text is not overwritten by a string value.
	existing := "AUTO"
	s = toSample(key, ts, &registerWire{Value: "MANUAL", Text: &existing})
	assert.Equal(t, "AUTO", *s.Text)

	s = toSample(key, ts, &registerWire{Value: 150.5})
	require.NotNil(t, s.Value)
	assert.InDelta(t, 150.5, *s.Value, 1e-9)
	assert.Nil(t, s.Text)

	s = toSample(key, ts, &registerWire{Value: true})
	require.NotNil(t, s.Text)
	assert.Equal(t, "true", *s.Text)

	s = toSample(key, ts, &registerWire{})
	assert.Nil(t, s.Value)
	assert.Nil(t, s.Text)
}
