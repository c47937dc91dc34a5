package tracker

import (
	"context"
	"fmt"
	"strings"

	"github.com/unklstewy/vatscope/pkg/vatsim"
)

// WeatherSource returns the current METAR for an airport.
type WeatherSource interface {
	METAR(ctx context.Context, icao string) (string, error)
}

// airportPositions are the controller suffixes listed for an airport.
var airportPositions = []string{"TWR", "GND", "DEL", "APP", "DEP"}

// AirportInfo is what is known about one airport right now.
type AirportInfo struct {
	ICAO        string              `json:"icao"`
	METAR       string              `json:"metar,omitempty"`
	Controllers []vatsim.Controller `json:"controllers"`
	Inbound     []vatsim.Pilot      `json:"inbound"`
	Outbound    []vatsim.Pilot      `json:"outbound"`
}

// Empty reports whether nothing at all is known about the airport.
func (a AirportInfo) Empty() bool {
	return a.METAR == "" && len(a.Controllers) == 0 && len(a.Inbound) == 0 && len(a.Outbound) == 0
}

// AirportInfo gathers weather, staffed positions and traffic for icao from the
// latest snapshot and centers the view on the first listed controller.
// A METAR failure is logged and leaves the weather blank. ErrNotFound is
// returned only when nothing at all is known.
func (t *Tracker) AirportInfo(ctx context.Context, icao string) (AirportInfo, error) {
	icao = normalizeICAO(icao)
	info := AirportInfo{ICAO: icao}
	if icao == "" {
		return info, fmt.Errorf("airport: empty identifier: %w", ErrNotFound)
	}

	if t.weather != nil {
		metar, err := t.weather.METAR(ctx, icao)
		if err != nil {
			t.log.Warn().Err(err).Str("icao", icao).Msg("METAR unavailable")
		} else {
			info.METAR = strings.TrimSpace(metar)
		}
	}

	snap, err := t.snapshot(ctx)
	if err != nil {
		t.log.Warn().Err(err).Str("icao", icao).Msg("No snapshot for airport traffic")
	}

	info.Controllers = airportControllers(snap.Controllers, icao)
	info.Inbound, info.Outbound = airportTraffic(snap.Pilots, icao)

	if len(info.Controllers) > 0 {
		t.centerOn(info.Controllers[0].Position(), AirportZoom)
	}

	if info.Empty() {
		return info, fmt.Errorf("airport %s: %w", icao, ErrNotFound)
	}
	return info, nil
}

func airportControllers(controllers []vatsim.Controller, icao string) []vatsim.Controller {
	out := []vatsim.Controller{}
	for _, c := range controllers {
		cs := strings.ToUpper(c.Callsign)
		if !strings.HasPrefix(cs, icao) {
			continue
		}
		for _, suffix := range airportPositions {
			if strings.HasSuffix(cs, suffix) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// airportTraffic splits filed traffic into inbound and outbound. A pilot
// filed to and from the same airport counts as inbound only.
func airportTraffic(pilots []vatsim.Pilot, icao string) (inbound, outbound []vatsim.Pilot) {
	inbound, outbound = []vatsim.Pilot{}, []vatsim.Pilot{}
	for _, p := range pilots {
		if p.FlightPlan == nil {
			continue
		}
		switch {
		case strings.EqualFold(p.FlightPlan.Arrival, icao):
			inbound = append(inbound, p)
		case strings.EqualFold(p.FlightPlan.Departure, icao):
			outbound = append(outbound, p)
		}
	}
	return inbound, outbound
}
