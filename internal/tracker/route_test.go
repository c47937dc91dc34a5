package tracker

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/unklstewy/vatscope/pkg/geo"
	"github.com/unklstewy/vatscope/pkg/vatsim"
)

func TestPercentComplete(t *testing.T) {
	dep := geo.Point{Latitude: 0, Longitude: 0}
	arr := geo.Point{Latitude: 0, Longitude: 10}

	tests := []struct {
		name string
		cur  geo.Point
		dep  geo.Point
		arr  geo.Point
		want int
	}{
		{"At departure", dep, dep, arr, 0},
		{"Halfway", geo.Point{Latitude: 0, Longitude: 5}, dep, arr, 50},
		{"At arrival", arr, dep, arr, 100},
		{"Past arrival", geo.Point{Latitude: 0, Longitude: 12}, dep, arr, 120},
		{"Zero length route", geo.Point{Latitude: 1, Longitude: 1}, dep, dep, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PercentComplete(tt.dep, tt.cur, tt.arr); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

// gatedLocator blocks lookups of gated airports until the gate closes.
type gatedLocator struct {
	mapLocator
	gated   string
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedLocator) Locate(ctx context.Context, icao string) (geo.Point, error) {
	if icao == g.gated {
		g.entered <- struct{}{}
		<-g.gate
	}
	return g.mapLocator.Locate(ctx, icao)
}

func TestRouteProject(t *testing.T) {
	t.Run("Draws both halves, popup and bounds", func(t *testing.T) {
		d := newFakeDisplay()
		rp := NewRouteProjector(d, testAirports, zerolog.Nop())
		p := filedPilot("BAW123", "EGLL", "KJFK", 51.0, -20.0)

		overlay, err := rp.Project(context.Background(), p)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}

		var flown, remaining *Polyline
		for _, pl := range d.polylines {
			switch pl.Kind {
			case PolylineFlown:
				flown = &pl
			case PolylineRemaining:
				remaining = &pl
			}
		}
		if flown == nil || remaining == nil {
			t.Fatalf("Expected flown and remaining polylines, got %+v", d.polylines)
		}
		if flown.Points[0] != testAirports["EGLL"] || flown.Points[1] != p.Position() {
			t.Errorf("Expected flown EGLL->current, got %v", flown.Points)
		}
		if remaining.Points[1] != testAirports["KJFK"] || !remaining.Dashed {
			t.Errorf("Expected dashed current->KJFK, got %+v", remaining)
		}
		if flown.Color == remaining.Color {
			t.Error("Expected distinct colors")
		}

		if len(d.popups) != 1 {
			t.Fatalf("Expected 1 popup, got %d", len(d.popups))
		}
		for _, pop := range d.popups {
			if pop.Progress == nil || *pop.Progress != overlay.Percent {
				t.Errorf("Expected progress %d, got %v", overlay.Percent, pop.Progress)
			}
		}
		if len(d.fits) != 1 || len(d.fits[0]) != 3 {
			t.Errorf("Expected one fit over 3 points, got %v", d.fits)
		}
		if rp.Len() != 1 {
			t.Errorf("Expected 1 overlay, got %d", rp.Len())
		}
	})

	t.Run("No flight plan draws nothing", func(t *testing.T) {
		d := newFakeDisplay()
		rp := NewRouteProjector(d, testAirports, zerolog.Nop())

		_, err := rp.Project(context.Background(), pilot("N123AB", 40, -74))
		if !errors.Is(err, ErrNoFlightPlan) {
			t.Errorf("Expected ErrNoFlightPlan, got %v", err)
		}
		if d.live() != 0 {
			t.Errorf("Expected nothing drawn, got %d", d.live())
		}
	})

	t.Run("Missing arrival draws nothing", func(t *testing.T) {
		d := newFakeDisplay()
		rp := NewRouteProjector(d, testAirports, zerolog.Nop())

		_, err := rp.Project(context.Background(), filedPilot("BAW123", "EGLL", "", 51, -20))
		if !errors.Is(err, ErrNoFlightPlan) {
			t.Errorf("Expected ErrNoFlightPlan, got %v", err)
		}
	})

	t.Run("Lookup failure draws nothing", func(t *testing.T) {
		d := newFakeDisplay()
		rp := NewRouteProjector(d, testAirports, zerolog.Nop())

		_, err := rp.Project(context.Background(), filedPilot("BAW123", "EGLL", "ZZZZ", 51, -20))
		if err == nil {
			t.Fatal("Expected lookup error")
		}
		if d.live() != 0 {
			t.Errorf("Expected nothing drawn, got %d", d.live())
		}
		if _, ok := rp.Overlay("BAW123"); ok {
			t.Error("Expected no overlay")
		}
	})

	t.Run("Projecting again replaces the overlay", func(t *testing.T) {
		d := newFakeDisplay()
		rp := NewRouteProjector(d, testAirports, zerolog.Nop())
		p := filedPilot("BAW123", "EGLL", "KJFK", 51.0, -20.0)

		rp.Project(context.Background(), p)
		p.Longitude = -30
		rp.Project(context.Background(), p)

		if len(d.polylines) != 2 || len(d.popups) != 1 {
			t.Errorf("Expected one overlay drawn, got %d polylines %d popups", len(d.polylines), len(d.popups))
		}
	})

	t.Run("Slower superseded projection is dropped", func(t *testing.T) {
		d := newFakeDisplay()
		loc := &gatedLocator{
			mapLocator: testAirports,
			gated:      "EHAM",
			entered:    make(chan struct{}, 1),
			gate:       make(chan struct{}),
		}
		rp := NewRouteProjector(d, loc, zerolog.Nop())

		slow := make(chan error, 1)
		go func() {
			_, err := rp.Project(context.Background(), filedPilot("KLM601", "EHAM", "KJFK", 53, -10))
			slow <- err
		}()
		<-loc.entered

		fast, err := rp.Project(context.Background(), filedPilot("KLM601", "EGLL", "KJFK", 53, -12))
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		close(loc.gate)

		if err := <-slow; !errors.Is(err, errSuperseded) {
			t.Errorf("Expected superseded, got %v", err)
		}
		if len(d.polylines) != 2 {
			t.Errorf("Expected 2 polylines, got %d", len(d.polylines))
		}
		got, _ := rp.Overlay("KLM601")
		if got.Departure != fast.Departure {
			t.Errorf("Expected overlay from EGLL, got %v", got.Departure)
		}
	})

	t.Run("Clear removes overlays", func(t *testing.T) {
		d := newFakeDisplay()
		rp := NewRouteProjector(d, testAirports, zerolog.Nop())
		rp.Project(context.Background(), filedPilot("BAW123", "EGLL", "KJFK", 51.0, -20.0))
		rp.Project(context.Background(), filedPilot("AAL100", "KJFK", "EGLL", 45.0, -40.0))

		rp.Clear()

		if d.live() != 0 || rp.Len() != 0 {
			t.Errorf("Expected nothing drawn, got %d", d.live())
		}
	})
}

func TestRoutePopup(t *testing.T) {
	p := filedPilot("BAW123", "EGLL", "KJFK", 51.0, -20.0)
	p.FlightPlan.Route = ""

	pop := routePopup(p, 42)

	if pop.Footer != "EGLL ✈ KJFK" {
		t.Errorf("Expected route line, got %q", pop.Footer)
	}
	last := pop.Lines[len(pop.Lines)-1]
	if last.Label != "Filed Route" || last.Value != "No route filed" {
		t.Errorf("Expected No route filed, got %+v", last)
	}
	if pop.Progress == nil || *pop.Progress != 42 {
		t.Errorf("Expected progress 42, got %v", pop.Progress)
	}
	if pop.Anchor != p.Position() {
		t.Errorf("Expected anchor at pilot, got %v", pop.Anchor)
	}
}

func TestZonePopup(t *testing.T) {
	c := vatsim.Controller{Callsign: "EGLL_TWR", Name: "Jo Bloggs", Frequency: "118.500", Rating: 3, TextATIS: []string{"Heathrow Tower", "online"}}

	pop := zonePopup(c)

	if len(pop.Lines) != 4 {
		t.Fatalf("Expected 4 lines, got %d", len(pop.Lines))
	}
	if pop.Lines[3].Value != "Heathrow Tower online" {
		t.Errorf("Expected joined ATIS, got %q", pop.Lines[3].Value)
	}
}
