// Package watchdog pkg/watchdog/watchdog.go synthesizes liveness events from
// message arrival patterns: router online/offline transitions and stale
// heartbeat registers.
package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cgplatform/dbwriter/pkg/config"
	"github.com/cgplatform/dbwriter/pkg/db"
	"github.com/cgplatform/dbwriter/pkg/models"
)

// EntityKey identifies one tracked message source. GPS traffic is tracked at
// router scope with an empty EquipType; decoded traffic per panel.
type EntityKey struct {
	RouterSN  string
	EquipType string
	PanelID   int
}

type entityState struct {
	lastSeen time.Time
	online   bool
}

type registerState struct {
	lastSample time.Time
	lastStale  time.Time
}

// Tracker maintains last-seen timestamps and emits liveness events. Touch is
// called by ingest workers; Run scans periodically. All state is guarded by
// one mutex since both sides only take short critical sections.
type Tracker struct {
	store db.Store
	log   *logrus.Entry
	clock func() time.Time

	offlineAfter time.Duration
	staleAfter   time.Duration
	interval     time.Duration

	mu        sync.Mutex
	entities  map[EntityKey]*entityState
	registers map[models.StateKey]*registerState
}

// New builds a tracker from the events policy.
func New(cfg config.EventsPolicyConfig, store db.Store, log *logrus.Entry) *Tracker {
	return &Tracker{
		store:        store,
		log:          log,
		clock:        time.Now,
		offlineAfter: time.Duration(cfg.RouterOfflineSec) * time.Second,
		staleAfter:   time.Duration(cfg.StaleRegisterSec) * time.Second,
		interval:     time.Duration(cfg.CheckIntervalSec) * time.Second,
		entities:     make(map[EntityKey]*entityState),
		registers:    make(map[models.StateKey]*registerState),
	}
}

// SetClock overrides the time source, for tests.
func (t *Tracker) SetClock(clock func() time.Time) {
	t.clock = clock
}

// Touch records a message arrival. A first sighting starts online silently;
// a sighting while offline returns the router_online event for the caller to
// persist alongside the message.
func (t *Tracker) Touch(key EntityKey, now time.Time) *models.Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.entities[key]
	if !ok {
		t.entities[key] = &entityState{lastSeen: now, online: true}
		return nil
	}

	state.lastSeen = now

	if state.online {
		return nil
	}

	state.online = true

	t.log.WithFields(logrus.Fields{
		"router_sn":  key.RouterSN,
		"equip_type": key.EquipType,
		"panel_id":   key.PanelID,
	}).Info("Router back online")

	return livenessEvent(key, models.EventRouterOnline, "traffic resumed", now)
}

// TouchRegister records a sample for a heartbeat-bearing register so the
// stale scan can watch it.
func (t *Tracker) TouchRegister(key models.StateKey, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.registers[key]
	if !ok {
		t.registers[key] = &registerState{lastSample: ts}
		return
	}

	state.lastSample = ts
	state.lastStale = time.Time{}
}

// Run scans for offline and stale transitions until the context is
// cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.scan(ctx)
		}
	}
}

func (t *Tracker) scan(ctx context.Context) {
	now := t.clock()
	events := t.collect(now)

	for i := range events {
		if err := t.store.InsertEvent(ctx, &events[i]); err != nil {
			t.log.WithError(err).WithField("type", events[i].Type).
				Error("Failed to insert liveness event")
		}
	}
}

// collect flips state and builds events under the lock; persistence happens
// outside it.
func (t *Tracker) collect(now time.Time) []models.Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	var events []models.Event

	for key, state := range t.entities {
		if state.online && now.Sub(state.lastSeen) >= t.offlineAfter {
			state.online = false

			t.log.WithFields(logrus.Fields{
				"router_sn":  key.RouterSN,
				"equip_type": key.EquipType,
				"panel_id":   key.PanelID,
				"last_seen":  state.lastSeen,
			}).Warn("Router went offline")

			events = append(events, *livenessEvent(key, models.EventRouterOffline, "no traffic", now))
		}
	}

	if t.staleAfter <= 0 {
		return events
	}

	for key, state := range t.registers {
		if now.Sub(state.lastSample) < t.staleAfter {
			continue
		}

		// One event per stale interval, not per scan.
		if !state.lastStale.IsZero() && now.Sub(state.lastStale) < t.staleAfter {
			continue
		}

		state.lastStale = now

		equipType := key.EquipType
		panelID := key.PanelID
		events = append(events, models.Event{
			RouterSN:    key.RouterSN,
			EquipType:   &equipType,
			PanelID:     &panelID,
			Type:        models.EventStaleRegister,
			Description: "heartbeat register went silent",
			Payload: map[string]any{
				"addr":           key.Addr,
				"last_sample_at": state.lastSample.UTC().Format(time.RFC3339),
			},
			CreatedAt: now,
		})
	}

	return events
}

func livenessEvent(key EntityKey, eventType, description string, now time.Time) *models.Event {
	ev := &models.Event{
		RouterSN:    key.RouterSN,
		Type:        eventType,
		Description: description,
		CreatedAt:   now,
	}

	if key.EquipType != "" {
		equipType := key.EquipType
		panelID := key.PanelID
		ev.EquipType = &equipType
		ev.PanelID = &panelID
	}

	return ev
}
