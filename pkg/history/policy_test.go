package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgplatform/dbwriter/pkg/config"
	"github.com/cgplatform/dbwriter/pkg/models"
)

func defaultPolicy() *Policy {
	return New(config.HistoryPolicyConfig{
		Defaults: config.HistoryDefaults{
			Tolerance:      0.5,
			MinIntervalSec: 10,
			HeartbeatSec:   900,
			StoreHistory:   true,
			ValueKind:      models.KindAnalog,
		},
	})
}

func analogEntry(tolerance float64, minInterval, heartbeat int) *models.CatalogEntry {
	return &models.CatalogEntry{
		EquipType:      "pcc",
		Addr:           40034,
		ValueKind:      models.KindAnalog,
		Tolerance:      &tolerance,
		MinIntervalSec: &minInterval,
		HeartbeatSec:   &heartbeat,
		StoreHistory:   true,
	}
}

func numericSample(addr int, ts time.Time, value float64) models.RegisterSample {
	return models.RegisterSample{
		Key:   models.StateKey{RouterSN: "SN-1", EquipType: "pcc", PanelID: 1, Addr: addr},
		TS:    ts,
		Value: &value,
	}
}

func TestSuppressionSequence(t *testing.T) {
	p := defaultPolicy()
	entry := analogEntry(0.5, 10, 60)
	state := &KeyState{}
	t0 := time.Now()

	d := p.Evaluate(state, numericSample(40034, t0, 150.0), entry)
	require.True(t, d.Write)
	assert.Equal(t, models.WriteReasonFirst, d.Reason)

	// Inside the deadband: suppressed.
	d = p.Evaluate(state, numericSample(40034, t0.Add(5*time.Second), 150.2), entry)
	assert.False(t, d.Write)

	// Over the deadband after min_interval: change.
	d = p.Evaluate(state, numericSample(40034, t0.Add(15*time.Second), 151.0), entry)
	require.True(t, d.Write)
	assert.Equal(t, models.WriteReasonChange, d.Reason)

	// Unchanged, but the heartbeat interval has elapsed since the last write.
	d = p.Evaluate(state, numericSample(40034, t0.Add(80*time.Second), 151.0), entry)
	require.True(t, d.Write)
	assert.Equal(t, models.WriteReasonHeartbeat, d.Reason)

	// Heartbeat clock restarted by the heartbeat write itself.
	d = p.Evaluate(state, numericSample(40034, t0.Add(90*time.Second), 151.0), entry)
	assert.False(t, d.Write)
}

func TestChangeGatedByMinInterval(t *testing.T) {
	p := defaultPolicy()
	entry := analogEntry(0.5, 10, 900)
	state := &KeyState{}
	t0 := time.Now()

	require.True(t, p.Evaluate(state, numericSample(40034, t0, 150.0), entry).Write)

	// Over tolerance but too soon: suppressed.
	d := p.Evaluate(state, numericSample(40034, t0.Add(3*time.Second), 152.0), entry)
	assert.False(t, d.Write)

	// Same delta once the interval has passed: change.
	d = p.Evaluate(state, numericSample(40034, t0.Add(12*time.Second), 152.0), entry)
	require.True(t, d.Write)
	assert.Equal(t, models.WriteReasonChange, d.Reason)
}

func TestUnknownRegister(t *testing.T) {
	p := defaultPolicy()
	state := &KeyState{}

	d := p.Evaluate(state, numericSample(49999, time.Now(), 1.0), nil)
	assert.False(t, d.Write)
	assert.True(t, d.Unknown)
	assert.False(t, state.HasStored)
}

func TestStoreHistoryDisabled(t *testing.T) {
	p := defaultPolicy()
	entry := analogEntry(0.5, 10, 60)
	entry.StoreHistory = false
	state := &KeyState{}

	d := p.Evaluate(state, numericSample(40034, time.Now(), 1.0), entry)
	assert.False(t, d.Write)
	assert.False(t, d.Unknown)
}

func TestReasonChange(t *testing.T) {
	p := defaultPolicy()
	entry := analogEntry(0.5, 10, 900)
	state := &KeyState{}
	t0 := time.Now()

	require.True(t, p.Evaluate(state, numericSample(40034, t0, 150.0), entry).Write)

	na := "N/A"
	sample := models.RegisterSample{
		Key:    models.StateKey{RouterSN: "SN-1", EquipType: "pcc", PanelID: 1, Addr: 40034},
		TS:     t0.Add(2 * time.Second),
		Reason: &na,
	}

	d := p.Evaluate(state, sample, entry)
	require.True(t, d.Write)
	assert.Equal(t, models.WriteReasonReasonChange, d.Reason)

	// Reason cleared again: another reason_change, min_interval irrelevant.
	d = p.Evaluate(state, numericSample(40034, t0.Add(4*time.Second), 150.0), entry)
	require.True(t, d.Write)
	assert.Equal(t, models.WriteReasonReasonChange, d.Reason)
}

func TestDiscreteStepAlwaysChanges(t *testing.T) {
	p := defaultPolicy()
	minInterval, heartbeat := 0, 900
	entry := &models.CatalogEntry{
		EquipType:      "pcc",
		Addr:           40100,
		ValueKind:      models.KindDiscrete,
		MinIntervalSec: &minInterval,
		HeartbeatSec:   &heartbeat,
		StoreHistory:   true,
	}
	state := &KeyState{}
	t0 := time.Now()

	require.True(t, p.Evaluate(state, numericSample(40100, t0, 0), entry).Write)

	// One step on a discrete register beats the zero tolerance.
	d := p.Evaluate(state, numericSample(40100, t0.Add(time.Second), 1), entry)
	require.True(t, d.Write)
	assert.Equal(t, models.WriteReasonChange, d.Reason)

	d = p.Evaluate(state, numericSample(40100, t0.Add(2*time.Second), 1), entry)
	assert.False(t, d.Write)
}

func TestTextKindIgnoresTolerance(t *testing.T) {
	p := defaultPolicy()
	heartbeat := 900
	entry := &models.CatalogEntry{
		EquipType:    "pcc",
		Addr:         40200,
		ValueKind:    models.KindText,
		HeartbeatSec: &heartbeat,
		StoreHistory: true,
	}
	state := &KeyState{}
	t0 := time.Now()

	textSample := func(ts time.Time, text string) models.RegisterSample {
		return models.RegisterSample{
			Key:  models.StateKey{RouterSN: "SN-1", EquipType: "pcc", PanelID: 1, Addr: 40200},
			TS:   ts,
			Text: &text,
		}
	}

	require.True(t, p.Evaluate(state, textSample(t0, "AUTO"), entry).Write)

	d := p.Evaluate(state, textSample(t0.Add(time.Second), "MANUAL"), entry)
	require.True(t, d.Write)
	assert.Equal(t, models.WriteReasonChange, d.Reason)

	d = p.Evaluate(state, textSample(t0.Add(2*time.Second), "MANUAL"), entry)
	assert.False(t, d.Write)
}

func TestRawOnlyDeltaIsChange(t *testing.T) {
	p := defaultPolicy()
	heartbeat := 900
	entry := &models.CatalogEntry{
		EquipType:    "pcc",
		Addr:         40300,
		ValueKind:    models.KindEnum,
		HeartbeatSec: &heartbeat,
		StoreHistory: true,
	}
	state := &KeyState{}
	t0 := time.Now()

	rawSample := func(ts time.Time, raw int64) models.RegisterSample {
		return models.RegisterSample{
			Key: models.StateKey{RouterSN: "SN-1", EquipType: "pcc", PanelID: 1, Addr: 40300},
			TS:  ts,
			Raw: &raw,
		}
	}

	require.True(t, p.Evaluate(state, rawSample(t0, 2), entry).Write)

	d := p.Evaluate(state, rawSample(t0.Add(time.Second), 3), entry)
	require.True(t, d.Write)
	assert.Equal(t, models.WriteReasonChange, d.Reason)
}

func TestKPIOverrideTightensPolicy(t *testing.T) {
	p := New(config.HistoryPolicyConfig{
		Defaults: config.HistoryDefaults{
			Tolerance:      0.5,
			MinIntervalSec: 10,
			HeartbeatSec:   900,
			StoreHistory:   true,
			ValueKind:      models.KindAnalog,
		},
		KPIRegisters: []config.KPIRegister{
			{Addr: 40034, HeartbeatSec: 30, Tolerance: 0.1},
		},
	})
	entry := analogEntry(0.5, 10, 900)
	state := &KeyState{}
	t0 := time.Now()

	require.True(t, p.Evaluate(state, numericSample(40034, t0, 150.0), entry).Write)

	// 0.2 beats the KPI tolerance of 0.1 even though the catalog says 0.5.
	d := p.Evaluate(state, numericSample(40034, t0.Add(12*time.Second), 150.2), entry)
	require.True(t, d.Write)
	assert.Equal(t, models.WriteReasonChange, d.Reason)

	// KPI heartbeat of 30 s instead of the catalog's 900 s.
	d = p.Evaluate(state, numericSample(40034, t0.Add(50*time.Second), 150.2), entry)
	require.True(t, d.Write)
	assert.Equal(t, models.WriteReasonHeartbeat, d.Reason)
}

func TestZeroHeartbeatDisablesHeartbeat(t *testing.T) {
	p := defaultPolicy()
	entry := analogEntry(0.5, 10, 0)
	state := &KeyState{}
	t0 := time.Now()

	require.True(t, p.Evaluate(state, numericSample(40034, t0, 150.0), entry).Write)

	d := p.Evaluate(state, numericSample(40034, t0.Add(24*time.Hour), 150.0), entry)
	assert.False(t, d.Write)
}
