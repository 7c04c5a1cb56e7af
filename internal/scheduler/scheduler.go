package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"climacaribe/internal/engine"
	"climacaribe/internal/models"
	"climacaribe/internal/repository"
	"climacaribe/pkg/logging"
	"climacaribe/pkg/metrics"
)

// State is the scheduler's position in the refresh cycle.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateComputing
	StatePublished
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateComputing:
		return "computing"
	case StatePublished:
		return "published"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Config holds one scheduler instance's parameters. Concurrent schedulers
// with different windows or filters are independent and share nothing
// mutable.
type Config struct {
	Window           time.Duration
	ZoneFilter       *engine.ZoneFilter
	AnomalyThreshold float64
	RefreshInterval  time.Duration
	FailureBackoff   time.Duration
	FetchTimeout     time.Duration
	AlertLimit       int
}

// SnapshotSink receives each published snapshot. Sink failures are logged
// and counted but never fail the cycle.
type SnapshotSink interface {
	Name() string
	PublishSnapshot(ctx context.Context, snap *models.Snapshot) error
}

// Scheduler drives the periodic fetch-compute-publish loop. It is the sole
// writer of the published snapshot; readers get an immutable value through
// Snapshot(). At most one cycle is in flight: ticks and manual refresh
// requests arriving mid-cycle are coalesced, not queued.
type Scheduler struct {
	cfg        Config
	repo       repository.StreamRepository
	classifier *engine.ZoneClassifier
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector
	sinks      []SnapshotSink

	state     atomic.Int32
	current   atomic.Pointer[models.Snapshot]
	refreshCh chan struct{}
}

// New creates a scheduler. Run must be called to start the loop.
func New(
	cfg Config,
	repo repository.StreamRepository,
	classifier *engine.ZoneClassifier,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
	sinks ...SnapshotSink,
) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		repo:       repo,
		classifier: classifier,
		logger:     logger,
		metrics:    metricsCollector,
		sinks:      sinks,
		refreshCh:  make(chan struct{}, 1),
	}
}

// State returns the scheduler's current state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Snapshot returns the currently published snapshot, or nil before the
// first successful cycle. The returned value is never mutated.
func (s *Scheduler) Snapshot() *models.Snapshot {
	return s.current.Load()
}

// RefreshNow requests an on-demand cycle. It returns false when the request
// was coalesced because a cycle is already pending or in flight.
func (s *Scheduler) RefreshNow() bool {
	select {
	case s.refreshCh <- struct{}{}:
		return true
	default:
		s.metrics.CoalescedTicks.Inc()
		return false
	}
}

// Run executes an immediate first cycle and then loops on the cadence until
// the context is cancelled. Cancellation is cooperative: it is honored
// before each fetch and mid-wait, and an in-flight computation runs to
// completion without being published partially.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info(ctx, "[SCHEDULER_START] Refresh loop starting", logging.Fields{
		"window":           s.cfg.Window.String(),
		"refresh_interval": s.cfg.RefreshInterval.String(),
		"alert_limit":      s.cfg.AlertLimit,
	})

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	s.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.state.Store(int32(StateCancelled))
			s.logger.Info(context.Background(), "[SCHEDULER_STOP] Refresh loop cancelled", logging.Fields{})
			return ctx.Err()
		case <-ticker.C:
			s.cycle(ctx)
		case <-s.refreshCh:
			s.cycle(ctx)
		}

		// Ticks that piled up while the cycle ran are skipped, not queued.
		s.drainPending(ticker)
	}
}

func (s *Scheduler) drainPending(ticker *time.Ticker) {
	for {
		select {
		case <-ticker.C:
			s.metrics.CoalescedTicks.Inc()
		case <-s.refreshCh:
			s.metrics.CoalescedTicks.Inc()
		default:
			return
		}
	}
}

// cycle runs one Fetching -> Computing -> Published pass. On fetch failure
// the previous snapshot is kept published, marked stale, and the scheduler
// backs off before returning to idle.
func (s *Scheduler) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	cycleID := uuid.New().String()
	ctx = logging.WithCycleID(ctx, cycleID)
	started := time.Now()

	window, err := models.NewWindow(time.Now().UTC(), s.cfg.Window)
	if err != nil {
		s.logger.Error(ctx, "[CYCLE_CONFIG_ERROR] Invalid window configuration", logging.Fields{}, err)
		s.state.Store(int32(StateFailed))
		return
	}

	s.state.Store(int32(StateFetching))

	readings, alerts, err := s.fetch(ctx, window)
	if err != nil {
		s.failCycle(ctx, err)
		return
	}

	s.state.Store(int32(StateComputing))

	snap, err := s.compute(ctx, cycleID, window, readings, alerts)
	if err != nil {
		// Only a misconfigured threshold reaches here; malformed
		// records never abort the computation.
		s.logger.Error(ctx, "[CYCLE_COMPUTE_ERROR] Cycle computation rejected", logging.Fields{}, err)
		s.state.Store(int32(StateFailed))
		s.metrics.RecordCycle("failed")
		return
	}

	s.current.Store(snap)
	s.state.Store(int32(StatePublished))

	s.metrics.RecordCycle("published")
	s.metrics.CycleDuration.Observe(time.Since(started).Seconds())
	s.metrics.ReadingsPerCycle.Observe(float64(len(snap.Readings)))
	s.metrics.AnomaliesPerCycle.Observe(float64(snap.AnomalySummary.AnomalyCount))
	s.metrics.AlertsPerCycle.Observe(float64(len(snap.Alerts)))
	s.metrics.SnapshotStale.Set(0)
	s.metrics.LastCycleTimestamp.Set(float64(snap.ComputedAt.Unix()))

	s.publishToSinks(ctx, snap)

	s.logger.Info(ctx, "[CYCLE_PUBLISHED] Snapshot published", logging.Fields{
		"readings":    len(snap.Readings),
		"anomalies":   snap.AnomalySummary.AnomalyCount,
		"alerts":      len(snap.Alerts),
		"duration_ms": time.Since(started).Milliseconds(),
	})

	s.state.Store(int32(StateIdle))
}

// fetch retrieves the reading and alert sets concurrently. Both come from
// the same window so a cycle never mixes data from two different fetches.
func (s *Scheduler) fetch(ctx context.Context, window models.Window) ([]models.Reading, []models.Alert, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	var (
		wg        sync.WaitGroup
		readings  []models.Reading
		alerts    []models.Alert
		readErr   error
		alertsErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		readings, readErr = s.repo.FetchReadings(fetchCtx, window, s.cfg.ZoneFilter)
	}()
	go func() {
		defer wg.Done()
		alerts, alertsErr = s.repo.FetchAlerts(fetchCtx, window)
	}()
	wg.Wait()

	if readErr != nil {
		return nil, nil, readErr
	}
	if alertsErr != nil {
		return nil, nil, alertsErr
	}

	return readings, alerts, nil
}

// compute runs the aggregator, anomaly detector and ranker over a single
// fetch's data and assembles the snapshot.
func (s *Scheduler) compute(ctx context.Context, cycleID string, window models.Window, readings []models.Reading, alerts []models.Alert) (*models.Snapshot, error) {
	s.countMalformed(ctx, readings)

	anomalies, err := engine.Detect(readings, engine.TemperatureField, s.cfg.AnomalyThreshold)
	if err != nil {
		return nil, err
	}

	snap := &models.Snapshot{
		CycleID:        cycleID,
		Window:         window,
		ComputedAt:     time.Now().UTC(),
		KPIs:           engine.Aggregate(readings),
		Anomalies:      engine.RankAnomalies(anomalies),
		AnomalySummary: engine.Summarize(anomalies),
		Alerts:         engine.Rank(alerts, window, s.cfg.ZoneFilter, s.cfg.AlertLimit),
		Cities:         engine.AggregateByCity(readings),
		Zones:          engine.AggregateByZone(readings, s.classifier),
		Readings:       readings,
	}

	return snap, nil
}

// failCycle keeps the last-known-good snapshot published, flags it stale
// and backs off before the next attempt.
func (s *Scheduler) failCycle(ctx context.Context, err error) {
	s.state.Store(int32(StateFailed))
	s.metrics.RecordCycle("failed")
	s.metrics.SnapshotStale.Set(1)

	s.logger.Error(ctx, "[CYCLE_FETCH_ERROR] Fetch failed, keeping last snapshot", logging.Fields{}, err)

	if prev := s.current.Load(); prev != nil && !prev.Stale {
		stale := *prev
		stale.Stale = true
		stale.LastError = err.Error()
		s.current.Store(&stale)
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(s.cfg.FailureBackoff):
	}

	s.state.Store(int32(StateIdle))
}

func (s *Scheduler) publishToSinks(ctx context.Context, snap *models.Snapshot) {
	for _, sink := range s.sinks {
		if err := sink.PublishSnapshot(ctx, snap); err != nil {
			s.metrics.RecordPublishError(sink.Name())
			s.logger.Warn(ctx, "[SINK_PUBLISH_ERROR] Downstream publish failed", logging.Fields{
				"sink": sink.Name(),
			})
		}
	}
}

// countMalformed records readings whose scored field is missing. They stay
// in the cycle; only the affected aggregate skips them.
func (s *Scheduler) countMalformed(ctx context.Context, readings []models.Reading) {
	missing := 0
	for i := range readings {
		if _, ok := engine.TemperatureField(&readings[i]); !ok {
			missing++
		}
	}
	if missing == 0 {
		return
	}

	for i := 0; i < missing; i++ {
		s.metrics.RecordMalformedRecord("temperature")
	}
	s.logger.Debug(ctx, "[CYCLE_MALFORMED] Readings missing temperature excluded from aggregates", logging.Fields{
		"count": missing,
	})
}
