// Package supervisor pkg/supervisor/supervisor.go owns the broker
// connection, the partitioned ingest queues, and the periodic tasks. It is
// the only component that sees the whole wiring.
package supervisor

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/cgplatform/dbwriter/pkg/api"
	"github.com/cgplatform/dbwriter/pkg/catalog"
	"github.com/cgplatform/dbwriter/pkg/config"
	"github.com/cgplatform/dbwriter/pkg/db"
	"github.com/cgplatform/dbwriter/pkg/history"
	"github.com/cgplatform/dbwriter/pkg/ingest"
	"github.com/cgplatform/dbwriter/pkg/logger"
	"github.com/cgplatform/dbwriter/pkg/models"
	"github.com/cgplatform/dbwriter/pkg/retention"
	"github.com/cgplatform/dbwriter/pkg/watchdog"
)

const (
	drainTimeout   = 5 * time.Second
	connectTimeout = 10 * time.Second
	subscribeQoS   = 1
)

// reconnectLadder is the backoff sequence after a lost broker connection;
// the last step repeats.
var reconnectLadder = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// Supervisor wires the store, the decision subsystems, the worker pool and
// the broker client, and runs them until a signal or a fatal store error.
type Supervisor struct {
	cfg   *config.Config
	log   *logrus.Logger
	store db.Store

	cache    *catalog.Cache
	tracker  *watchdog.Tracker
	sweeper  *retention.Sweeper
	stats    *ingest.Stats
	handlers []*ingest.Handler
	queues   []chan ingest.Message

	client  mqtt.Client
	errChan chan error
	wg      sync.WaitGroup
}

// New opens the store and builds the full pipeline. The broker is not
// contacted until Run.
func New(cfg *config.Config, log *logrus.Logger) (*Supervisor, error) {
	store, err := db.New(cfg.Database.Path, cfg.Database.PoolMax, logger.Component(log, "db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s := &Supervisor{
		cfg:     cfg,
		log:     log,
		store:   store,
		stats:   &ingest.Stats{},
		errChan: make(chan error, 1),
	}

	s.cache = catalog.New(store, logger.Component(log, "catalog"))
	s.tracker = watchdog.New(cfg.EventsPolicy, store, logger.Component(log, "watchdog"))
	s.sweeper = retention.New(cfg.Retention, store, logger.Component(log, "retention"))

	policy := history.New(cfg.HistoryPolicy)

	workers := cfg.Ingest.WorkerCount
	s.handlers = make([]*ingest.Handler, workers)
	s.queues = make([]chan ingest.Message, workers)

	perQueue := cfg.Ingest.QueueMax / workers
	if perQueue < 1 {
		perQueue = 1
	}

	for i := 0; i < workers; i++ {
		s.handlers[i] = ingest.NewHandler(store, s.cache, policy, s.tracker, s.stats, cfg,
			logger.Component(log, fmt.Sprintf("ingest-%d", i)))
		s.queues[i] = make(chan ingest.Message, perQueue)
	}

	return s, nil
}

// Run blocks until a shutdown signal, context cancellation, or a fatal
// error. It returns nil on clean shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.cache.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load register catalog: %w", err)
	}

	if err := s.restoreState(ctx); err != nil {
		return fmt.Errorf("failed to restore state: %w", err)
	}

	for i := range s.handlers {
		s.wg.Add(1)

		go s.worker(ctx, i)
	}

	s.wg.Add(2)

	go func() {
		defer s.wg.Done()
		s.tracker.Run(ctx)
	}()

	go func() {
		defer s.wg.Done()
		s.sweeper.Run(ctx)
	}()

	if s.cfg.API.Enabled {
		srv := api.New(s.cfg.API, s.store, s.stats, logger.Component(s.log, "api"))

		s.wg.Add(1)

		go func() {
			defer s.wg.Done()
			srv.Run(ctx)
		}()
	}

	if err := s.connect(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	defer signal.Stop(hupCh)

	for {
		select {
		case sig := <-sigCh:
			s.log.WithField("signal", sig.String()).Info("Shutting down")
			s.shutdown(cancel)

			return nil

		case <-hupCh:
			if err := s.cache.Refresh(ctx); err != nil {
				s.log.WithError(err).Error("Catalog refresh failed")
			}

		case err := <-s.errChan:
			s.log.WithError(err).Error("Fatal error, shutting down")
			s.shutdown(cancel)

			return err

		case <-ctx.Done():
			s.shutdown(cancel)

			return nil
		}
	}
}

// restoreState seeds each partition's GPS filters and history state from
// gps_latest_filtered and latest_state.
func (s *Supervisor) restoreState(ctx context.Context) error {
	fixes, err := s.store.LoadGPSLatestAll(ctx)
	if err != nil {
		return err
	}

	fixesByPartition := make([]map[string]models.GPSFix, len(s.handlers))
	for routerSN, fix := range fixes {
		p := s.partition(routerSN)
		if fixesByPartition[p] == nil {
			fixesByPartition[p] = make(map[string]models.GPSFix)
		}

		fixesByPartition[p][routerSN] = fix
	}

	samples, err := s.store.LoadLatestStateAll(ctx)
	if err != nil {
		return err
	}

	samplesByPartition := make([][]models.RegisterSample, len(s.handlers))
	for _, sample := range samples {
		p := s.partition(sample.Key.RouterSN)
		samplesByPartition[p] = append(samplesByPartition[p], sample)
	}

	for i, h := range s.handlers {
		if fixesByPartition[i] != nil {
			h.SeedGPS(fixesByPartition[i])
		}

		h.SeedLatest(samplesByPartition[i])
	}

	s.log.WithFields(logrus.Fields{
		"gps_fixes":    len(fixes),
		"latest_state": len(samples),
	}).Info("Warm state restored")

	return nil
}

func (s *Supervisor) worker(ctx context.Context, idx int) {
	defer s.wg.Done()

	handler := s.handlers[idx]

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.queues[idx]:
			if !ok {
				return
			}

			if err := handler.Handle(ctx, msg); err != nil {
				select {
				case s.errChan <- err:
				default:
				}

				return
			}
		}
	}
}

// partition maps a router to its queue so per-router ordering is preserved
// across workers.
func (s *Supervisor) partition(routerSN string) int {
	if len(s.queues) == 1 {
		return 0
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(routerSN))

	return int(h.Sum32() % uint32(len(s.queues)))
}

// enqueue pushes a message onto its partition. The default is to block the
// broker callback for at-least-once behavior; drop-oldest is opt-in and
// always counted.
func (s *Supervisor) enqueue(ctx context.Context, msg ingest.Message) {
	route, err := ingest.ParseTopic(msg.Topic)
	if err != nil {
		s.stats.TopicMismatches.Add(1)
		return
	}

	queue := s.queues[s.partition(route.RouterSN)]

	if s.cfg.Ingest.DropOldest {
		for {
			select {
			case queue <- msg:
				return
			default:
			}

			select {
			case <-queue:
				s.stats.QueueDropped.Add(1)
				s.log.Warn("Ingest queue full, dropping oldest message")
			default:
			}
		}
	}

	select {
	case queue <- msg:
	case <-ctx.Done():
	}
}

// connect dials the broker and installs the subscription and reconnect
// hooks. Auto-reconnect is disabled; the supervisor owns the backoff ladder
// so reconnects are observable and bounded.
func (s *Supervisor) connect(ctx context.Context) error {
	scheme := "tcp"
	if s.cfg.MQTT.TLS {
		scheme = "ssl"
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, s.cfg.MQTT.Host, s.cfg.MQTT.Port)).
		SetClientID(s.cfg.MQTT.ClientID).
		SetUsername(s.cfg.MQTT.Username).
		SetPassword(s.cfg.MQTT.Password).
		SetKeepAlive(time.Duration(s.cfg.MQTT.KeepaliveSec) * time.Second).
		SetAutoReconnect(false).
		SetOrderMatters(true)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		s.log.Info("Broker connected, subscribing")

		if err := s.subscribe(ctx, client); err != nil {
			s.log.WithError(err).Error("Subscribe failed")
		}
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.log.WithError(err).Warn("Broker connection lost")

		go s.reconnect(ctx)
	})

	s.client = mqtt.NewClient(opts)

	if err := s.dial(ctx); err != nil {
		return err
	}

	return nil
}

func (s *Supervisor) subscribe(ctx context.Context, client mqtt.Client) error {
	callback := func(_ mqtt.Client, m mqtt.Message) {
		s.enqueue(ctx, ingest.Message{
			Topic:      m.Topic(),
			Payload:    m.Payload(),
			ReceivedAt: time.Now().UTC(),
		})
	}

	for _, topic := range []string{s.cfg.MQTT.TopicGPS, s.cfg.MQTT.TopicDecoded} {
		token := client.Subscribe(topic, subscribeQoS, callback)
		if !token.WaitTimeout(connectTimeout) {
			return fmt.Errorf("subscribe to %s timed out", topic)
		}

		if err := token.Error(); err != nil {
			return fmt.Errorf("subscribe to %s: %w", topic, err)
		}
	}

	return nil
}

// dial attempts the initial connection, walking the backoff ladder until
// the context is cancelled.
func (s *Supervisor) dial(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		token := s.client.Connect()
		if token.WaitTimeout(connectTimeout) && token.Error() == nil {
			return nil
		}

		delay := ladderDelay(attempt)
		s.log.WithError(token.Error()).WithField("retry_in", delay.String()).
			Warn("Broker connect failed")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (s *Supervisor) reconnect(ctx context.Context) {
	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(ladderDelay(attempt)):
		}

		token := s.client.Connect()
		if token.WaitTimeout(connectTimeout) && token.Error() == nil {
			s.log.Info("Broker reconnected")
			return
		}

		s.log.WithError(token.Error()).Warn("Broker reconnect failed")
	}
}

func ladderDelay(attempt int) time.Duration {
	if attempt >= len(reconnectLadder) {
		return reconnectLadder[len(reconnectLadder)-1]
	}

	return reconnectLadder[attempt]
}

// shutdown stops intake, drains the queues within the deadline, cancels the
// periodic tasks and closes the store.
func (s *Supervisor) shutdown(cancel context.CancelFunc) {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(uint(drainTimeout.Milliseconds()))
	}

	// Let the workers finish what is already queued, bounded by the drain
	// deadline. Anything left after that is dropped by cancellation.
	deadline := time.Now().Add(drainTimeout)
	for time.Now().Before(deadline) && s.queuedMessages() > 0 {
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	s.wg.Wait()

	if err := s.store.Close(); err != nil {
		s.log.WithError(err).Error("Failed to close store")
	}

	s.log.WithFields(logrus.Fields{"stats": s.stats.Snapshot()}).Info("Shutdown complete")
}

func (s *Supervisor) queuedMessages() int {
	n := 0
	for _, queue := range s.queues {
		n += len(queue)
	}

	return n
}

// CleanupOnce runs a single retention pass, for the cleanup CLI mode.
func (s *Supervisor) CleanupOnce(ctx context.Context) error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.log.WithError(err).Error("Failed to close store")
		}
	}()

	return s.sweeper.RunOnce(ctx)
}

// Health probes the store and the broker, for the health CLI mode.
func (s *Supervisor) Health(ctx context.Context) error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.log.WithError(err).Error("Failed to close store")
		}
	}()

	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	scheme := "tcp"
	if s.cfg.MQTT.TLS {
		scheme = "ssl"
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, s.cfg.MQTT.Host, s.cfg.MQTT.Port)).
		SetClientID(s.cfg.MQTT.ClientID + "-health").
		SetUsername(s.cfg.MQTT.Username).
		SetPassword(s.cfg.MQTT.Password).
		SetAutoReconnect(false)

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("broker: connect timed out")
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("broker: %w", err)
	}

	client.Disconnect(250)

	return nil
}
