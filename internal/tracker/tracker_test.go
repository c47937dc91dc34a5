package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/unklstewy/vatscope/pkg/config"
	"github.com/unklstewy/vatscope/pkg/geo"
	"github.com/unklstewy/vatscope/pkg/vatsim"
)

// fakeDisplay records every operation and keeps the live object set.
type fakeDisplay struct {
	mu        sync.Mutex
	next      Handle
	markers   map[Handle]Marker
	polylines map[Handle]Polyline
	circles   map[Handle]Circle
	popups    map[Handle]Popup

	circleOrder []Tier
	creates     int
	updates     int
	badRemoves  int
	centers     []centerCall
	fits        [][]geo.Point
	notices     []string
	flushes     int
}

type centerCall struct {
	point geo.Point
	zoom  int
}

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{
		markers:   make(map[Handle]Marker),
		polylines: make(map[Handle]Polyline),
		circles:   make(map[Handle]Circle),
		popups:    make(map[Handle]Popup),
	}
}

func (d *fakeDisplay) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushes++
}

func (d *fakeDisplay) flushCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushes
}

func (d *fakeDisplay) issue() Handle {
	d.next++
	return d.next
}

func (d *fakeDisplay) CreateMarker(m Marker) Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.issue()
	d.markers[h] = m
	d.creates++
	return h
}

func (d *fakeDisplay) UpdateMarker(h Handle, m Marker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.markers[h]; !ok {
		d.badRemoves++
		return
	}
	d.markers[h] = m
	d.updates++
}

func (d *fakeDisplay) DrawPolyline(p Polyline) Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.issue()
	d.polylines[h] = p
	return h
}

func (d *fakeDisplay) DrawCircle(c Circle) Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.issue()
	d.circles[h] = c
	d.circleOrder = append(d.circleOrder, c.Tier)
	return h
}

func (d *fakeDisplay) OpenPopup(p Popup) Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.issue()
	d.popups[h] = p
	return h
}

func (d *fakeDisplay) Remove(h Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case hasHandle(d.markers, h):
		delete(d.markers, h)
	case hasHandle(d.polylines, h):
		delete(d.polylines, h)
	case hasHandle(d.circles, h):
		delete(d.circles, h)
	case hasHandle(d.popups, h):
		delete(d.popups, h)
	default:
		d.badRemoves++
	}
}

func hasHandle[V any](m map[Handle]V, h Handle) bool {
	_, ok := m[h]
	return ok
}

func (d *fakeDisplay) CenterOn(p geo.Point, zoom int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.centers = append(d.centers, centerCall{point: p, zoom: zoom})
}

func (d *fakeDisplay) FitBounds(points []geo.Point) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fits = append(d.fits, points)
}

func (d *fakeDisplay) ShowNotice(n Notice) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notices = append(d.notices, n.Message)
}

// live is the number of objects currently drawn.
func (d *fakeDisplay) live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.markers) + len(d.polylines) + len(d.circles) + len(d.popups)
}

func (d *fakeDisplay) markerIDs() map[string]bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make(map[string]bool, len(d.markers))
	for _, m := range d.markers {
		ids[m.ID] = true
	}
	return ids
}

// feedSource returns queued results in order, repeating the last one.
type feedSource struct {
	mu      sync.Mutex
	results []feedResult
	calls   int
}

type feedResult struct {
	snap vatsim.Snapshot
	err  error
}

func (s *feedSource) FetchSnapshot(ctx context.Context) (vatsim.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	return s.results[i].snap, s.results[i].err
}

// mapLocator resolves from a fixed table.
type mapLocator map[string]geo.Point

func (m mapLocator) Locate(ctx context.Context, icao string) (geo.Point, error) {
	p, ok := m[icao]
	if !ok {
		return geo.Point{}, fmt.Errorf("airport %s: unknown", icao)
	}
	return p, nil
}

var testAirports = mapLocator{
	"EGLL": {Latitude: 51.47, Longitude: -0.4543},
	"KJFK": {Latitude: 40.6413, Longitude: -73.7781},
	"EHAM": {Latitude: 52.3105, Longitude: 4.7683},
}

func testRetry() vatsim.RetryConfig {
	return vatsim.RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1.0,
	}
}

func pilot(callsign string, lat, lon float64) vatsim.Pilot {
	return vatsim.Pilot{Callsign: callsign, Latitude: lat, Longitude: lon, Altitude: 35000, GroundSpeed: 450, Heading: 270}
}

func filedPilot(callsign, dep, arr string, lat, lon float64) vatsim.Pilot {
	p := pilot(callsign, lat, lon)
	p.FlightPlan = &vatsim.FlightPlan{Aircraft: "B77W/H-SDE3FGHIJ2J3J4J5M1RWXY/LB1D1", Departure: dep, Arrival: arr, Route: "DCT"}
	return p
}

func snapshotOf(pilots ...vatsim.Pilot) vatsim.Snapshot {
	return vatsim.Snapshot{Pilots: pilots}
}

func newTestTracker(display Display, results ...feedResult) (*Tracker, *feedSource) {
	src := &feedSource{results: results}
	tr := New(display, src, testAirports, Config{
		PollInterval: time.Hour,
		Retry:        testRetry(),
		NoticeTTL:    time.Minute,
	})
	return tr, src
}

func refresh(t *testing.T, tr *Tracker) {
	t.Helper()
	if !tr.Refresh(context.Background()) {
		t.Fatal("Expected cycle to start")
	}
	tr.Wait()
}

func TestTrackerCycle(t *testing.T) {
	s1 := snapshotOf(pilot("A", 1, 1), pilot("B", 2, 2), pilot("C", 3, 3))
	s2 := snapshotOf(pilot("B", 2.5, 2.5), pilot("C", 3, 3), pilot("D", 4, 4))

	t.Run("Displayed set follows the latest snapshot", func(t *testing.T) {
		d := newFakeDisplay()
		tr, _ := newTestTracker(d, feedResult{snap: s1}, feedResult{snap: s2})

		refresh(t, tr)
		refresh(t, tr)

		ids := d.markerIDs()
		if len(ids) != 3 || !ids["B"] || !ids["C"] || !ids["D"] {
			t.Errorf("Expected markers B, C, D, got %v", ids)
		}
		if d.badRemoves != 0 {
			t.Errorf("Expected no invalid handle use, got %d", d.badRemoves)
		}
		if got := tr.Stats().Pilots; got != 3 {
			t.Errorf("Expected 3 pilots in stats, got %d", got)
		}
	})

	t.Run("Three failures post three retries then the failure notice", func(t *testing.T) {
		d := newFakeDisplay()
		tr, src := newTestTracker(d, feedResult{err: errors.New("connection refused")})

		refresh(t, tr)

		want := []string{
			"Connection error. Retry 1/3...",
			"Connection error. Retry 2/3...",
			"Connection error. Retry 3/3...",
			vatsim.FailureNotice,
		}
		if len(d.notices) != len(want) {
			t.Fatalf("Expected %d notices, got %v", len(want), d.notices)
		}
		for i := range want {
			if d.notices[i] != want[i] {
				t.Errorf("Notice %d: expected %q, got %q", i, want[i], d.notices[i])
			}
		}
		if src.calls != 4 {
			t.Errorf("Expected 4 requests, got %d", src.calls)
		}
		if d.live() != 0 {
			t.Errorf("Expected nothing drawn, got %d objects", d.live())
		}
		if n, ok := tr.Notices().Current(); !ok || n.Message != vatsim.FailureNotice {
			t.Errorf("Expected current notice %q, got %+v", vatsim.FailureNotice, n)
		}
	})

	t.Run("Failure after success keeps the last state", func(t *testing.T) {
		d := newFakeDisplay()
		tr, _ := newTestTracker(d, feedResult{snap: s1}, feedResult{err: errors.New("timeout")})

		refresh(t, tr)
		refresh(t, tr)

		if got := len(tr.Pilots()); got != 3 {
			t.Errorf("Expected 3 pilots kept, got %d", got)
		}
	})

	t.Run("Empty snapshot keeps the last state", func(t *testing.T) {
		d := newFakeDisplay()
		tr, _ := newTestTracker(d, feedResult{snap: s1}, feedResult{snap: vatsim.Snapshot{}})

		refresh(t, tr)
		before := tr.Stats().UpdatedAt
		refresh(t, tr)

		if got := len(d.markerIDs()); got != 3 {
			t.Errorf("Expected 3 markers kept, got %d", got)
		}
		if !tr.Stats().UpdatedAt.Equal(before) {
			t.Error("Expected stats to stay unchanged")
		}
	})

	t.Run("Zones are rebuilt each cycle", func(t *testing.T) {
		withZone := s1
		withZone.Controllers = []vatsim.Controller{
			{Callsign: "LON_CTR", Frequency: "127.825", VisualRange: 300, Latitude: 51, Longitude: 0},
		}
		d := newFakeDisplay()
		tr, _ := newTestTracker(d, feedResult{snap: withZone})

		refresh(t, tr)
		refresh(t, tr)

		if len(d.circles) != 1 {
			t.Errorf("Expected 1 circle, got %d", len(d.circles))
		}
		if tr.Stats().Zones != 1 {
			t.Errorf("Expected 1 zone in stats, got %d", tr.Stats().Zones)
		}
	})
}

func TestTrackerSearch(t *testing.T) {
	d := newFakeDisplay()
	tr, _ := newTestTracker(d)
	tr.Apply(snapshotOf(
		filedPilot("BAW123", "EGLL", "KJFK", 51.0, -20.0),
		pilot("N123AB", 40, -74),
	))

	t.Run("Case-insensitive hit recenters and draws the route", func(t *testing.T) {
		res, err := tr.Search(context.Background(), "baw123")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if res.Pilot.Callsign != "BAW123" {
			t.Errorf("Expected BAW123, got %s", res.Pilot.Callsign)
		}
		if res.Route == nil {
			t.Fatal("Expected a route overlay")
		}
		if len(d.centers) == 0 || d.centers[0].zoom != SearchZoom {
			t.Errorf("Expected recenter at zoom %d, got %+v", SearchZoom, d.centers)
		}
		if len(d.polylines) != 2 {
			t.Errorf("Expected 2 polylines, got %d", len(d.polylines))
		}
	})

	t.Run("Pilot without flight plan is found without a route", func(t *testing.T) {
		res, err := tr.Search(context.Background(), "n123ab")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if res.Route != nil {
			t.Error("Expected no route overlay")
		}
	})

	t.Run("Miss returns ErrNotFound", func(t *testing.T) {
		_, err := tr.Search(context.Background(), "XYZ999")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Select does not recenter", func(t *testing.T) {
		before := len(d.centers)
		if _, err := tr.Select(context.Background(), "BAW123"); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if len(d.centers) != before {
			t.Errorf("Expected no recenter, got %d calls", len(d.centers)-before)
		}
		if len(d.polylines) != 2 {
			t.Errorf("Expected the overlay to be replaced, got %d polylines", len(d.polylines))
		}
	})
}

func TestTrackerShutdown(t *testing.T) {
	d := newFakeDisplay()
	tr, _ := newTestTracker(d)
	snap := snapshotOf(filedPilot("BAW123", "EGLL", "KJFK", 51.0, -20.0), pilot("DLH4AB", 50, 8))
	snap.Controllers = []vatsim.Controller{
		{Callsign: "EGLL_TWR", Frequency: "118.500", VisualRange: 20, Latitude: 51.47, Longitude: -0.45},
	}
	tr.Apply(snap)

	calls := 0
	tr.Subscribe(func(Stats) { calls++ })

	if _, err := tr.Select(context.Background(), "BAW123"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if d.live() == 0 {
		t.Fatal("Expected objects drawn before shutdown")
	}

	tr.Shutdown()

	if d.live() != 0 {
		t.Errorf("Expected every handle released, got %d live", d.live())
	}
	if d.badRemoves != 0 {
		t.Errorf("Expected no invalid handle use, got %d", d.badRemoves)
	}
	if tr.Apply(snap) {
		t.Error("Expected Apply after shutdown to be ignored")
	}
	if calls != 0 {
		t.Errorf("Expected detached listeners, got %d calls", calls)
	}

	tr.Shutdown()
}

func TestTrackerShutdownStopsServe(t *testing.T) {
	d := newFakeDisplay()
	src := &feedSource{results: []feedResult{{snap: snapshotOf(pilot("A", 1, 1))}}}
	tr := New(d, src, testAirports, Config{PollInterval: 5 * time.Millisecond, Retry: testRetry()})

	done := make(chan error, 1)
	go func() { done <- tr.Serve(context.Background()) }()

	calls := func() int {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls
	}
	deadline := time.Now().Add(2 * time.Second)
	for calls() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	tr.Shutdown()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil error after Shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve kept running after Shutdown")
	}

	stopped := calls()
	time.Sleep(30 * time.Millisecond)
	if got := calls(); got != stopped {
		t.Errorf("Expected no fetches after Shutdown, got %d more", got-stopped)
	}
	if tr.Refresh(context.Background()) {
		t.Error("Expected Refresh after Shutdown to be refused")
	}
	if d.live() != 0 {
		t.Errorf("Expected display cleared, got %d live", d.live())
	}
	if err := tr.Serve(context.Background()); err != nil {
		t.Errorf("Expected Serve after Shutdown to return nil, got %v", err)
	}
}

func TestTrackerFlushesDisplay(t *testing.T) {
	d := newFakeDisplay()
	tr, _ := newTestTracker(d)

	tr.Apply(snapshotOf(filedPilot("BAW123", "EGLL", "KJFK", 51.0, -20.0)))
	if got := d.flushCount(); got != 1 {
		t.Errorf("Expected 1 flush after Apply, got %d", got)
	}

	tr.Apply(vatsim.Snapshot{})
	if got := d.flushCount(); got != 1 {
		t.Errorf("Expected ignored snapshot not to flush, got %d", got)
	}

	if _, err := tr.Search(context.Background(), "BAW123"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := d.flushCount(); got != 2 {
		t.Errorf("Expected 2 flushes after Search, got %d", got)
	}

	tr.Shutdown()
	if got := d.flushCount(); got != 3 {
		t.Errorf("Expected 3 flushes after Shutdown, got %d", got)
	}
}

func TestTrackerSubscribe(t *testing.T) {
	d := newFakeDisplay()
	tr, _ := newTestTracker(d)

	var got []Stats
	unsubscribe := tr.Subscribe(func(s Stats) { got = append(got, s) })

	tr.Apply(snapshotOf(pilot("A", 1, 1)))
	unsubscribe()
	tr.Apply(snapshotOf(pilot("A", 1, 1)))

	if len(got) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(got))
	}
	if got[0].Pilots != 1 {
		t.Errorf("Expected 1 pilot, got %d", got[0].Pilots)
	}
}

func TestTrackerServe(t *testing.T) {
	d := newFakeDisplay()
	src := &feedSource{results: []feedResult{{snap: snapshotOf(pilot("A", 1, 1))}}}
	tr := New(d, src, testAirports, Config{PollInterval: 5 * time.Millisecond, Retry: testRetry()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		src.mu.Lock()
		calls := src.calls
		src.mu.Unlock()
		if calls >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil error on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if d.live() != 0 {
		t.Errorf("Expected display cleared after Serve, got %d live", d.live())
	}
}

func TestConfigFromFeed(t *testing.T) {
	feed := config.DefaultConfig().Feed
	feed.MaxRetries = 2
	feed.RetryDelay = 250 * time.Millisecond

	cfg := ConfigFromFeed(feed, nil, nil)
	if cfg.PollInterval != 3*time.Second {
		t.Errorf("Expected 3s poll interval, got %v", cfg.PollInterval)
	}
	if cfg.Retry.MaxRetries != 2 {
		t.Errorf("Expected 2 retries, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.InitialDelay != feed.RetryDelay || cfg.Retry.MaxDelay != feed.RetryDelay || cfg.Retry.Multiplier != 1 {
		t.Errorf("Expected fixed %v delay, got %+v", feed.RetryDelay, cfg.Retry)
	}
	if cfg.NoticeTTL != 4500*time.Millisecond {
		t.Errorf("Expected 4.5s notice TTL, got %v", cfg.NoticeTTL)
	}
}
