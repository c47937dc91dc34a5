package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/unklstewy/vatscope/pkg/geo"
	"github.com/unklstewy/vatscope/pkg/vatsim"
)

// ErrNoFlightPlan means the pilot has no departure and arrival to project.
var ErrNoFlightPlan = errors.New("no flight plan with departure and arrival")

// errSuperseded means a newer projection for the same callsign started meanwhile.
var errSuperseded = errors.New("route projection superseded")

const (
	flownColor     = "#ff3366"
	remainingColor = "#66a0ff"
)

// AirportLocator resolves an airport identifier to coordinates.
type AirportLocator interface {
	Locate(ctx context.Context, icao string) (geo.Point, error)
}

// RouteOverlay is the active route drawing for one pilot.
type RouteOverlay struct {
	Callsign  string    `json:"callsign"`
	Departure geo.Point `json:"departure"`
	Current   geo.Point `json:"current"`
	Arrival   geo.Point `json:"arrival"`

	// Percent is round(100 * covered / total) and may exceed 100.
	Percent int `json:"percent"`

	flown     Handle
	remaining Handle
	popup     Handle
}

// RouteProjector draws the flown and remaining halves of a filed route.
// It reads pilot values only and owns its own overlay keyspace.
type RouteProjector struct {
	display Display
	locator AirportLocator
	log     zerolog.Logger

	mu       sync.Mutex
	overlays map[string]*RouteOverlay
	gen      map[string]uint64
}

// NewRouteProjector creates a projector resolving airports through locator.
func NewRouteProjector(display Display, locator AirportLocator, log zerolog.Logger) *RouteProjector {
	return &RouteProjector{
		display:  display,
		locator:  locator,
		log:      log,
		overlays: make(map[string]*RouteOverlay),
		gen:      make(map[string]uint64),
	}
}

// Project discards any overlay for the pilot and, if it filed a departure and
// arrival, looks both up concurrently and draws the new overlay. A lookup
// failure leaves no overlay drawn and is returned for logging.
func (rp *RouteProjector) Project(ctx context.Context, p vatsim.Pilot) (*RouteOverlay, error) {
	rp.mu.Lock()
	rp.discardLocked(p.Callsign)
	rp.gen[p.Callsign]++
	gen := rp.gen[p.Callsign]
	rp.mu.Unlock()

	if !p.HasRoute() {
		return nil, ErrNoFlightPlan
	}

	var dep, arr geo.Point
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pt, err := rp.locator.Locate(gctx, p.FlightPlan.Departure)
		if err != nil {
			return fmt.Errorf("departure %s: %w", p.FlightPlan.Departure, err)
		}
		dep = pt
		return nil
	})
	g.Go(func() error {
		pt, err := rp.locator.Locate(gctx, p.FlightPlan.Arrival)
		if err != nil {
			return fmt.Errorf("arrival %s: %w", p.FlightPlan.Arrival, err)
		}
		arr = pt
		return nil
	})
	if err := g.Wait(); err != nil {
		rp.log.Warn().Err(err).Str("callsign", p.Callsign).Msg("Airport lookup failed, route not drawn")
		return nil, err
	}

	cur := p.Position()
	overlay := &RouteOverlay{
		Callsign:  p.Callsign,
		Departure: dep,
		Current:   cur,
		Arrival:   arr,
		Percent:   PercentComplete(dep, cur, arr),
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()
	if rp.gen[p.Callsign] != gen {
		return nil, errSuperseded
	}

	overlay.flown = rp.display.DrawPolyline(Polyline{
		Owner:  p.Callsign,
		Kind:   PolylineFlown,
		Points: []geo.Point{dep, cur},
		Color:  flownColor,
	})
	overlay.remaining = rp.display.DrawPolyline(Polyline{
		Owner:  p.Callsign,
		Kind:   PolylineRemaining,
		Points: []geo.Point{cur, arr},
		Color:  remainingColor,
		Dashed: true,
	})
	overlay.popup = rp.display.OpenPopup(routePopup(p, overlay.Percent))
	rp.display.FitBounds([]geo.Point{dep, cur, arr})
	rp.overlays[p.Callsign] = overlay

	rp.log.Debug().
		Str("callsign", p.Callsign).
		Int("percent", overlay.Percent).
		Msg("Route projected")
	return overlay, nil
}

// PercentComplete is round(100 * dist(dep,cur) / dist(dep,arr)). It is not
// clamped, so a pilot past its arrival reports more than 100. A zero-length
// route reports 0.
func PercentComplete(dep, cur, arr geo.Point) int {
	total := geo.Distance(dep, arr)
	if total == 0 {
		return 0
	}
	covered := geo.Distance(dep, cur)
	return int(math.Round(covered / total * 100))
}

// Overlay returns the active overlay for callsign.
func (rp *RouteProjector) Overlay(callsign string) (RouteOverlay, bool) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	o, ok := rp.overlays[callsign]
	if !ok {
		return RouteOverlay{}, false
	}
	return *o, true
}

// Discard removes the overlay for callsign, if any.
func (rp *RouteProjector) Discard(callsign string) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.discardLocked(callsign)
}

// Len is the number of active overlays.
func (rp *RouteProjector) Len() int {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return len(rp.overlays)
}

// Clear removes every overlay and invalidates in-flight projections.
func (rp *RouteProjector) Clear() {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	for callsign := range rp.overlays {
		rp.discardLocked(callsign)
	}
	for callsign := range rp.gen {
		rp.gen[callsign]++
	}
}

func (rp *RouteProjector) discardLocked(callsign string) {
	o, ok := rp.overlays[callsign]
	if !ok {
		return
	}
	rp.display.Remove(o.flown)
	rp.display.Remove(o.remaining)
	rp.display.Remove(o.popup)
	delete(rp.overlays, callsign)
}
