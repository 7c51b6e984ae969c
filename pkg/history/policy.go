// Package history pkg/history/policy.go decides, per register observation,
// whether a history row is written and why. latest_state is always updated
// by the caller regardless of this decision.
package history

import (
	"math"
	"time"

	"github.com/cgplatform/dbwriter/pkg/config"
	"github.com/cgplatform/dbwriter/pkg/models"
)

// KeyState is the in-memory last-stored snapshot for one register key.
// HasStored is false until the first history write.
type KeyState struct {
	Value       *float64
	Raw         *int64
	Text        *string
	Reason      *string
	StoredAt    time.Time
	HeartbeatAt time.Time
	HasStored   bool
}

// Decision is the outcome for one observation. Unknown marks a register
// absent from the catalog; the caller dedupes the resulting event.
type Decision struct {
	Write   bool
	Reason  string
	Unknown bool
}

// params are the resolved policy knobs for one register after layering
// configured defaults, the catalog entry, and any KPI override.
type params struct {
	tolerance   float64
	minInterval time.Duration
	heartbeat   time.Duration
	valueKind   string
}

// Policy evaluates the history write rules. It is stateless apart from its
// configuration; per-key state is passed in by the caller.
type Policy struct {
	defaults config.HistoryDefaults
	kpi      map[int]config.KPIRegister
}

func New(cfg config.HistoryPolicyConfig) *Policy {
	return &Policy{
		defaults: cfg.Defaults,
		kpi:      cfg.KPIMap(),
	}
}

// Evaluate applies the decision rules in order and, when the verdict is a
// write, folds the sample into state.
func (p *Policy) Evaluate(state *KeyState, sample models.RegisterSample, entry *models.CatalogEntry) Decision {
	if entry == nil {
		return Decision{Unknown: true}
	}

	if !entry.StoreHistory {
		return Decision{}
	}

	prm := p.resolve(sample.Key.Addr, entry)

	switch {
	case !state.HasStored:
		return p.commit(state, sample, models.WriteReasonFirst)

	case reasonChanged(state.Reason, sample.Reason):
		return p.commit(state, sample, models.WriteReasonReasonChange)

	case p.changed(state, sample, prm):
		return p.commit(state, sample, models.WriteReasonChange)

	case prm.heartbeat > 0 && sample.TS.Sub(state.HeartbeatAt) >= prm.heartbeat:
		return p.commit(state, sample, models.WriteReasonHeartbeat)

	default:
		return Decision{}
	}
}

func (p *Policy) commit(state *KeyState, sample models.RegisterSample, reason string) Decision {
	state.Value = sample.Value
	state.Raw = sample.Raw
	state.Text = sample.Text
	state.Reason = sample.Reason
	state.StoredAt = sample.TS
	state.HeartbeatAt = sample.TS
	state.HasStored = true

	return Decision{Write: true, Reason: reason}
}

// Heartbeat returns the resolved heartbeat interval for a register, zero
// when heartbeats are disabled. The watchdog uses it to decide which
// registers to track for staleness.
func (p *Policy) Heartbeat(addr int, entry *models.CatalogEntry) time.Duration {
	if entry == nil {
		return 0
	}

	return p.resolve(addr, entry).heartbeat
}

// changed implements the change rule. Numeric kinds compare against the
// deadband tolerance and are gated by the minimum interval; text and enum
// kinds ignore both and fire on any raw or text transition.
func (p *Policy) changed(state *KeyState, sample models.RegisterSample, prm params) bool {
	if models.Numeric(prm.valueKind) {
		if sample.Value == nil || state.Value == nil {
			return false
		}

		if math.Abs(*sample.Value-*state.Value) <= prm.tolerance {
			return false
		}

		return sample.TS.Sub(state.StoredAt) >= prm.minInterval
	}

	return textChanged(state.Text, sample.Text) || rawChanged(state.Raw, sample.Raw)
}

// resolve layers the policy parameters: configured defaults, then the
// catalog entry, then the KPI override for this address.
func (p *Policy) resolve(addr int, entry *models.CatalogEntry) params {
	prm := params{
		tolerance:   p.defaults.Tolerance,
		minInterval: time.Duration(p.defaults.MinIntervalSec) * time.Second,
		heartbeat:   time.Duration(p.defaults.HeartbeatSec) * time.Second,
		valueKind:   p.defaults.ValueKind,
	}

	if entry.ValueKind != "" {
		prm.valueKind = entry.ValueKind
	}

	// Discrete and counter registers record every step unless the catalog
	// widens the deadband explicitly.
	if prm.valueKind == models.KindDiscrete || prm.valueKind == models.KindCounter {
		prm.tolerance = 0
	}

	if entry.Tolerance != nil {
		prm.tolerance = *entry.Tolerance
	}

	if entry.MinIntervalSec != nil {
		prm.minInterval = time.Duration(*entry.MinIntervalSec) * time.Second
	}

	if entry.HeartbeatSec != nil {
		prm.heartbeat = time.Duration(*entry.HeartbeatSec) * time.Second
	}

	if kpi, ok := p.kpi[addr]; ok {
		prm.tolerance = kpi.Tolerance
		prm.heartbeat = time.Duration(kpi.HeartbeatSec) * time.Second
	}

	return prm
}

func reasonChanged(prev, next *string) bool {
	switch {
	case prev == nil && next == nil:
		return false
	case prev == nil || next == nil:
		return true
	default:
		return *prev != *next
	}
}

func textChanged(prev, next *string) bool {
	switch {
	case prev == nil && next == nil:
		return false
	case prev == nil || next == nil:
		return true
	default:
		return *prev != *next
	}
}

func rawChanged(prev, next *int64) bool {
	switch {
	case prev == nil && next == nil:
		return false
	case prev == nil || next == nil:
		return true
	default:
		return *prev != *next
	}
}
