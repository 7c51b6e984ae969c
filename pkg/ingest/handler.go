// Package ingest pkg/ingest/handler.go routes broker messages through the
// decision subsystems and into the store. Each worker owns one Handler, so
// the per-object maps need no locking.
package ingest

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/cgplatform/dbwriter/pkg/catalog"
	"github.com/cgplatform/dbwriter/pkg/config"
	"github.com/cgplatform/dbwriter/pkg/db"
	"github.com/cgplatform/dbwriter/pkg/gpsfilter"
	"github.com/cgplatform/dbwriter/pkg/history"
	"github.com/cgplatform/dbwriter/pkg/models"
	"github.com/cgplatform/dbwriter/pkg/watchdog"
)

// Message is one broker delivery queued for ingest.
type Message struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

type qualityKey struct {
	routerSN string
	reason   string
}

// Handler processes messages for one queue partition. It holds the GPS
// filter and history state for every router hashed to it.
type Handler struct {
	store   db.Store
	catalog *catalog.Cache
	policy  *history.Policy
	tracker *watchdog.Tracker
	stats   *Stats
	log     *logrus.Entry
	clock   func() time.Time

	gpsCfg    config.GPSFilterConfig
	eventsCfg config.EventsPolicyConfig
	opTimeout time.Duration
	opRetries int

	filters         map[string]*gpsfilter.Filter
	keyStates       map[models.StateKey]*history.KeyState
	unknownReported map[models.StateKey]struct{}
	qualityLimits   map[qualityKey]*rate.Limiter
}

// NewHandler wires one partition worker.
func NewHandler(
	store db.Store,
	cache *catalog.Cache,
	policy *history.Policy,
	tracker *watchdog.Tracker,
	stats *Stats,
	cfg *config.Config,
	log *logrus.Entry,
) *Handler {
	return &Handler{
		store:           store,
		catalog:         cache,
		policy:          policy,
		tracker:         tracker,
		stats:           stats,
		log:             log,
		clock:           time.Now,
		gpsCfg:          cfg.GPSFilter,
		eventsCfg:       cfg.EventsPolicy,
		opTimeout:       time.Duration(cfg.Ingest.OpTimeoutSec) * time.Second,
		opRetries:       cfg.Ingest.OpRetries,
		filters:         make(map[string]*gpsfilter.Filter),
		keyStates:       make(map[models.StateKey]*history.KeyState),
		unknownReported: make(map[models.StateKey]struct{}),
		qualityLimits:   make(map[qualityKey]*rate.Limiter),
	}
}

// SetClock overrides the time source, for tests.
func (h *Handler) SetClock(clock func() time.Time) {
	h.clock = clock
}

// SeedGPS installs restored last-accepted fixes for routers owned by this
// partition.
func (h *Handler) SeedGPS(fixes map[string]models.GPSFix) {
	for routerSN, fix := range fixes {
		f := gpsfilter.New(h.gpsCfg)
		f.Seed(fix)
		h.filters[routerSN] = f
	}
}

// SeedLatest installs restored latest_state rows as history policy state.
// The heartbeat clock restarts at now: a restart never triggers retroactive
// heartbeats.
func (h *Handler) SeedLatest(samples []models.RegisterSample) {
	now := h.clock()

	for _, s := range samples {
		h.keyStates[s.Key] = &history.KeyState{
			Value:       s.Value,
			Raw:         s.Raw,
			Text:        s.Text,
			Reason:      s.Reason,
			StoredAt:    s.TS,
			HeartbeatAt: now,
			HasStored:   true,
		}
	}
}

// Handle processes one message. Malformed input is dropped and counted;
// only fatal store errors propagate so the supervisor can shut down.
func (h *Handler) Handle(ctx context.Context, msg Message) error {
	route, err := ParseTopic(msg.Topic)
	if err != nil {
		h.stats.TopicMismatches.Add(1)
		h.log.WithField("topic", msg.Topic).Debug("Dropping message with unroutable topic")

		return nil
	}

	switch route.Kind {
	case RouteGPS:
		return h.handleGPS(ctx, route, msg)
	default:
		return h.handleDecoded(ctx, route, msg)
	}
}

func (h *Handler) handleGPS(ctx context.Context, route Route, msg Message) error {
	fix, err := parseGPS(msg.Payload, route.RouterSN, msg.ReceivedAt)
	if err != nil {
		h.stats.MalformedDropped.Add(1)
		h.log.WithError(err).WithField("topic", msg.Topic).Debug("Dropping malformed GPS payload")

		return nil
	}

	verdict := h.filter(route.RouterSN).Apply(fix)

	rec := &models.GPSRawRecord{Fix: fix, Accepted: verdict.Accepted}

	var (
		latest *models.GPSFix
		ev     *models.Event
	)

	if verdict.Accepted {
		h.stats.GPSAccepted.Add(1)

		latest = &fix
	} else {
		h.stats.GPSRejected.Add(1)

		reason := verdict.RejectReason
		rec.RejectReason = &reason
		ev = h.gpsRejectEvent(route.RouterSN, fix, verdict)
	}

	if ev != nil {
		h.stats.EventsEmitted.Add(1)
	}

	err = h.withRetry(ctx, func(ctx context.Context) error {
		_, applyErr := h.store.ApplyGPS(ctx, rec, latest, ev)
		return applyErr
	})
	if err != nil {
		return h.storeFailure(err, msg.Topic)
	}

	if online := h.tracker.Touch(watchdog.EntityKey{RouterSN: route.RouterSN}, h.clock()); online != nil {
		h.insertEvent(ctx, online)
	}

	return nil
}

// gpsRejectEvent maps a reject verdict to its event, honoring the enable
// flag for jump rejects and the per-object per-minute cap for quality
// rejects.
func (h *Handler) gpsRejectEvent(routerSN string, fix models.GPSFix, verdict gpsfilter.Verdict) *models.Event {
	switch verdict.RejectReason {
	case models.RejectJumpDistance, models.RejectJumpSpeed:
		if !h.eventsCfg.EnableGPSRejectEvents {
			return nil
		}

		return &models.Event{
			RouterSN:    routerSN,
			Type:        models.EventGPSJumpRejected,
			Description: "GPS fix rejected by anti-teleport filter",
			Payload: map[string]any{
				"reject_reason": verdict.RejectReason,
				"lat":           fix.Lat,
				"lon":           fix.Lon,
				"distance_m":    verdict.DistanceM,
				"speed_kmh":     verdict.SpeedKmh,
			},
			CreatedAt: h.clock(),
		}

	case models.RejectLowSats, models.RejectBadFix:
		if !h.qualityLimiter(routerSN, verdict.RejectReason).Allow() {
			return nil
		}

		eventType := models.EventGPSLowSats
		if verdict.RejectReason == models.RejectBadFix {
			eventType = models.EventGPSBadFix
		}

		return &models.Event{
			RouterSN:    routerSN,
			Type:        eventType,
			Description: "GPS fix below quality gate",
			Payload: map[string]any{
				"satellites": fix.Satellites,
				"fix_status": fix.FixStatus,
			},
			CreatedAt: h.clock(),
		}

	default:
		return nil
	}
}

func (h *Handler) handleDecoded(ctx context.Context, route Route, msg Message) error {
	wire, ts, err := parseDecoded(msg.Payload, msg.ReceivedAt)
	if err != nil {
		h.stats.MalformedDropped.Add(1)
		h.log.WithError(err).WithField("topic", msg.Topic).Debug("Dropping malformed decoded payload")

		return nil
	}

	now := h.clock()
	batch := &db.DecodedBatch{
		RouterSN:  route.RouterSN,
		EquipType: route.EquipType,
		PanelID:   route.PanelID,
		Now:       now,
	}

	for i := range wire.Registers {
		reg := &wire.Registers[i]
		if reg.Addr == nil {
			h.stats.MalformedDropped.Add(1)
			continue
		}

		key := models.StateKey{
			RouterSN:  route.RouterSN,
			EquipType: route.EquipType,
			PanelID:   route.PanelID,
			Addr:      *reg.Addr,
		}

		sample := toSample(key, ts, reg)

		var entry *models.CatalogEntry

		if e, ok := h.catalog.Lookup(route.EquipType, *reg.Addr); ok {
			entry = &e
			h.applyCatalogDefaults(&sample, entry)
		}

		decision := h.policy.Evaluate(h.keyState(key), sample, entry)

		batch.Latest = append(batch.Latest, sample)

		if decision.Write {
			h.stats.HistoryWrites.Add(1)

			batch.History = append(batch.History, db.HistoryRow{Sample: sample, WriteReason: decision.Reason})
		}

		if decision.Unknown {
			if ev := h.unknownEvent(key); ev != nil {
				batch.Events = append(batch.Events, *ev)
			}
		}

		if h.policy.Heartbeat(*reg.Addr, entry) > 0 {
			h.tracker.TouchRegister(key, ts)
		}
	}

	h.stats.DecodedRegisters.Add(int64(len(batch.Latest)))

	if online := h.tracker.Touch(watchdog.EntityKey{
		RouterSN:  route.RouterSN,
		EquipType: route.EquipType,
		PanelID:   route.PanelID,
	}, now); online != nil {
		batch.Events = append(batch.Events, *online)
	}

	h.stats.EventsEmitted.Add(int64(len(batch.Events)))

	err = h.withRetry(ctx, func(ctx context.Context) error {
		return h.store.ApplyDecoded(ctx, batch)
	})
	if err != nil {
		return h.storeFailure(err, msg.Topic)
	}

	return nil
}

// applyCatalogDefaults fills name and unit from the catalog when the wire
// register did not carry them.
func (h *Handler) applyCatalogDefaults(sample *models.RegisterSample, entry *models.CatalogEntry) {
	if sample.Name == nil && entry.NameDefault != "" {
		name := entry.NameDefault
		sample.Name = &name
	}

	if sample.Unit == nil && entry.UnitDefault != "" {
		unit := entry.UnitDefault
		sample.Unit = &unit
	}
}

// unknownEvent builds the one-shot unknown_register event for a key, or nil
// if disabled or already reported.
func (h *Handler) unknownEvent(key models.StateKey) *models.Event {
	if !h.eventsCfg.EnableUnknownRegisterEvents {
		return nil
	}

	if _, reported := h.unknownReported[key]; reported {
		return nil
	}

	h.unknownReported[key] = struct{}{}

	equipType := key.EquipType
	panelID := key.PanelID

	return &models.Event{
		RouterSN:    key.RouterSN,
		EquipType:   &equipType,
		PanelID:     &panelID,
		Type:        models.EventUnknownRegister,
		Description: "register not present in catalog",
		Payload:     map[string]any{"addr": key.Addr},
		CreatedAt:   h.clock(),
	}
}

func (h *Handler) filter(routerSN string) *gpsfilter.Filter {
	f, ok := h.filters[routerSN]
	if !ok {
		f = gpsfilter.New(h.gpsCfg)
		h.filters[routerSN] = f
	}

	return f
}

func (h *Handler) keyState(key models.StateKey) *history.KeyState {
	state, ok := h.keyStates[key]
	if !ok {
		state = &history.KeyState{}
		h.keyStates[key] = state
	}

	return state
}

func (h *Handler) qualityLimiter(routerSN, reason string) *rate.Limiter {
	key := qualityKey{routerSN: routerSN, reason: reason}

	limiter, ok := h.qualityLimits[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute), 1)
		h.qualityLimits[key] = limiter
	}

	return limiter
}

// insertEvent persists a standalone event with retry; failures are logged,
// never fatal to the message.
func (h *Handler) insertEvent(ctx context.Context, ev *models.Event) {
	h.stats.EventsEmitted.Add(1)

	err := h.withRetry(ctx, func(ctx context.Context) error {
		return h.store.InsertEvent(ctx, ev)
	})
	if err != nil {
		h.log.WithError(err).WithField("type", ev.Type).Error("Failed to insert event")
	}
}

// storeFailure converts a final persistence error into either a counted
// drop or a fatal error for the supervisor.
func (h *Handler) storeFailure(err error, topic string) error {
	if db.IsFatal(err) {
		return err
	}

	h.stats.StoreDropped.Add(1)
	h.log.WithError(err).WithField("topic", topic).Error("Dropping message after retries")

	return nil
}
