// Package tracker keeps a map display consistent with the live VATSIM feed.
//
// A Tracker owns the displayed pilot set, the coverage zones and the route
// overlays for one Display. Its poll loop fetches a snapshot every period
// and applies it; route projection runs on demand when a pilot is selected.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/unklstewy/vatscope/internal/metrics"
	"github.com/unklstewy/vatscope/pkg/config"
	"github.com/unklstewy/vatscope/pkg/geo"
	"github.com/unklstewy/vatscope/pkg/vatsim"
)

// ErrNotFound is returned when a callsign or airport is unknown.
var ErrNotFound = errors.New("not found")

// Zoom levels used when recentering the view.
const (
	SearchZoom  = 7
	AirportZoom = 11
)

// Config configures a Tracker.
type Config struct {
	// PollInterval is the fixed period between cycles (default 3s).
	PollInterval time.Duration

	// Retry is the per-cycle feed retry policy.
	Retry vatsim.RetryConfig

	// NoticeTTL is how long notices stay active (default 4.5s).
	NoticeTTL time.Duration

	// Weather supplies METAR text for AirportInfo. Optional.
	Weather WeatherSource

	// Logger defaults to a no-op logger.
	Logger *zerolog.Logger
}

// ConfigFromFeed maps the feed section onto a tracker Config. Retries are
// spaced by a fixed feed.retry_delay.
func ConfigFromFeed(feed config.FeedConfig, weather WeatherSource, log *zerolog.Logger) Config {
	return Config{
		PollInterval: feed.PollInterval,
		Retry: vatsim.RetryConfig{
			MaxRetries:   feed.MaxRetries,
			InitialDelay: feed.RetryDelay,
			MaxDelay:     feed.RetryDelay,
			Multiplier:   1.0,
		},
		NoticeTTL: feed.NoticeTTL,
		Weather:   weather,
		Logger:    log,
	}
}

// Stats summarizes the last applied snapshot.
type Stats struct {
	Pilots       int       `json:"pilots"`
	Controllers  int       `json:"controllers"`
	Zones        int       `json:"zones"`
	UpdatedAt    time.Time `json:"updated_at"`
	State        string    `json:"state"`
	DroppedTicks int64     `json:"dropped_ticks"` // ticks skipped while a cycle ran
}

// SearchResult is the outcome of a callsign search.
type SearchResult struct {
	Pilot vatsim.Pilot  `json:"pilot"`
	Route *RouteOverlay `json:"route,omitempty"`
}

// Tracker is the single owner of everything drawn on its Display.
type Tracker struct {
	display Display
	fetcher *vatsim.Fetcher
	routes  *RouteProjector
	notices *Notices
	weather WeatherSource
	loop    *PollLoop
	log     zerolog.Logger

	mu         sync.Mutex
	reconciler *Reconciler
	zones      *ZoneBuilder
	latest     vatsim.Snapshot
	hasLatest  bool
	stats      Stats
	closed     bool
	stop       context.CancelFunc
	listeners  map[int]func(Stats)
	nextID     int
}

// New creates a Tracker drawing onto display, polling source and resolving
// airports through locator.
func New(display Display, source vatsim.Source, locator AirportLocator, cfg Config) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.NoticeTTL <= 0 {
		cfg.NoticeTTL = 4500 * time.Millisecond
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	t := &Tracker{
		display:    display,
		notices:    NewNotices(cfg.NoticeTTL),
		weather:    cfg.Weather,
		log:        log.With().Str("component", "tracker").Logger(),
		reconciler: NewReconciler(display),
		zones:      NewZoneBuilder(display),
		listeners:  make(map[int]func(Stats)),
	}

	fetchLog := log.With().Str("component", "fetcher").Logger()
	t.fetcher = vatsim.NewFetcher(source, vatsim.FetcherConfig{
		Retry:     cfg.Retry,
		Notify:    func(msg string) { t.notices.Post(msg) },
		OnAttempt: metrics.RecordFeedRequest,
		Logger:    &fetchLog,
	})
	t.routes = NewRouteProjector(display, locator, log.With().Str("component", "route").Logger())
	t.loop = NewPollLoop(cfg.PollInterval, t.cycle, log.With().Str("component", "poll").Logger())

	if n, ok := display.(Notifier); ok {
		t.notices.Subscribe(n.ShowNotice)
	}
	return t
}

// Serve runs the poll loop until ctx is done or Shutdown is called, then
// releases everything drawn.
func (t *Tracker) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.stop = cancel
	t.mu.Unlock()

	t.log.Info().Dur("interval", t.loop.interval).Msg("Poll loop started")
	err := t.loop.Run(ctx)
	t.Shutdown()
	t.log.Info().Msg("Poll loop stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (t *Tracker) String() string { return "tracker" }

// Refresh starts a cycle now unless one is in flight or the tracker is
// shut down.
func (t *Tracker) Refresh(ctx context.Context) bool {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return false
	}
	return t.loop.Trigger(ctx)
}

// Wait blocks until no cycle is in flight.
func (t *Tracker) Wait() {
	t.loop.Wait()
}

func (t *Tracker) cycle(ctx context.Context) {
	start := time.Now()

	snap, err := t.fetcher.Fetch(ctx)
	if err != nil {
		metrics.RecordPollCycle(metrics.OutcomeFailed, time.Since(start))
		return
	}

	if !t.Apply(snap) {
		metrics.RecordPollCycle(metrics.OutcomeEmpty, time.Since(start))
		return
	}
	metrics.RecordPollCycle(metrics.OutcomeApplied, time.Since(start))
}

// Apply reconciles markers and rebuilds zones from snap. A snapshot with no
// pilots and no controllers is ignored so the last good state stays on screen.
// It reports whether the snapshot was applied.
func (t *Tracker) Apply(snap vatsim.Snapshot) bool {
	if snap.Empty() {
		t.log.Warn().Msg("Feed returned no pilots or controllers, keeping last state")
		return false
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}

	res := t.reconciler.Reconcile(snap.Pilots)
	zones := t.zones.Rebuild(snap.Controllers)

	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now().UTC()
	}
	t.latest = snap
	t.hasLatest = true
	t.stats = Stats{
		Pilots:      len(snap.Pilots),
		Controllers: len(snap.Controllers),
		Zones:       zones,
		UpdatedAt:   snap.FetchedAt,
	}
	for _, tier := range drawOrder {
		metrics.ZonesDrawn.WithLabelValues(tier.String()).Set(float64(t.zones.Count(tier)))
	}
	metrics.RecordReconcile(res.Created, res.Updated, res.Removed, t.reconciler.Len())

	stats := t.stats
	listeners := make([]func(Stats), 0, len(t.listeners))
	for _, fn := range t.listeners {
		listeners = append(listeners, fn)
	}
	t.mu.Unlock()
	t.flush()

	t.log.Debug().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("removed", res.Removed).
		Int("zones", zones).
		Msg("Snapshot applied")

	for _, fn := range listeners {
		fn(stats)
	}
	return true
}

// Subscribe registers fn to run after every applied snapshot. The returned
// func unregisters it. All listeners are dropped on Shutdown.
func (t *Tracker) Subscribe(fn func(Stats)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.listeners, id)
	}
}

// Shutdown stops the poll loop, aborts an in-flight cycle, releases every
// marker, zone and route overlay and detaches listeners. A cycle that
// completes afterwards is ignored. It is idempotent.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	if t.stop != nil {
		t.stop()
	}
	t.loop.Abort()
	t.reconciler.Clear()
	t.zones.Clear()
	t.routes.Clear()
	t.notices.Close()
	clear(t.listeners)
	t.flush()
}

// Stats returns counts from the last applied snapshot.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	s := t.stats
	t.mu.Unlock()
	s.State = t.loop.State()
	s.DroppedTicks = t.loop.Dropped()
	return s
}

// Notices exposes the notice board.
func (t *Tracker) Notices() *Notices {
	return t.notices
}

// Pilots returns every displayed pilot, sorted by callsign.
func (t *Tracker) Pilots() []vatsim.Pilot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reconciler.Pilots()
}

// Pilot returns one displayed pilot by callsign, case-insensitively.
func (t *Tracker) Pilot(callsign string) (vatsim.Pilot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.reconciler.Lookup(callsign)
	if !ok {
		return vatsim.Pilot{}, fmt.Errorf("pilot %q: %w", callsign, ErrNotFound)
	}
	return p, nil
}

// Controllers returns the controllers of the last applied snapshot.
func (t *Tracker) Controllers() []vatsim.Controller {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]vatsim.Controller, len(t.latest.Controllers))
	copy(out, t.latest.Controllers)
	return out
}

// Search finds a displayed pilot, recenters the view on it and projects its
// route. A route that cannot be drawn is logged; the search still succeeds.
func (t *Tracker) Search(ctx context.Context, callsign string) (SearchResult, error) {
	p, err := t.Pilot(callsign)
	if err != nil {
		return SearchResult{}, err
	}
	t.display.CenterOn(p.Position(), SearchZoom)
	res := t.project(ctx, p)
	t.flush()
	return res, nil
}

// Select projects the route of a displayed pilot without recentering,
// as when its marker is clicked.
func (t *Tracker) Select(ctx context.Context, callsign string) (SearchResult, error) {
	p, err := t.Pilot(callsign)
	if err != nil {
		return SearchResult{}, err
	}
	res := t.project(ctx, p)
	t.flush()
	return res, nil
}

func (t *Tracker) project(ctx context.Context, p vatsim.Pilot) SearchResult {
	res := SearchResult{Pilot: p}
	overlay, err := t.routes.Project(ctx, p)
	switch {
	case err == nil:
		res.Route = overlay
		metrics.RouteProjections.WithLabelValues("drawn").Inc()
	case errors.Is(err, ErrNoFlightPlan):
		metrics.RouteProjections.WithLabelValues("no_flight_plan").Inc()
	case errors.Is(err, errSuperseded):
		metrics.RouteProjections.WithLabelValues("superseded").Inc()
	default:
		metrics.RouteProjections.WithLabelValues("lookup_failed").Inc()
	}
	return res
}

// Route returns the active route overlay for callsign.
func (t *Tracker) Route(callsign string) (RouteOverlay, bool) {
	return t.routes.Overlay(callsign)
}

// snapshot returns the latest applied snapshot, fetching one if none exists.
func (t *Tracker) snapshot(ctx context.Context) (vatsim.Snapshot, error) {
	t.mu.Lock()
	if t.hasLatest {
		s := t.latest
		t.mu.Unlock()
		return s, nil
	}
	t.mu.Unlock()
	return t.fetcher.Fetch(ctx)
}

// normalizeICAO uppercases and trims an airport identifier.
func normalizeICAO(icao string) string {
	return strings.ToUpper(strings.TrimSpace(icao))
}

// centerOn is used by AirportInfo.
func (t *Tracker) centerOn(p geo.Point, zoom int) {
	t.display.CenterOn(p, zoom)
	t.flush()
}

func (t *Tracker) flush() {
	if f, ok := t.display.(Flusher); ok {
		f.Flush()
	}
}
