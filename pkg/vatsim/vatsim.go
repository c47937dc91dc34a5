// Package vatsim provides the VATSIM network feed data model, an HTTP client for the
// public v3 data feed, and a bounded-retry snapshot fetcher.
package vatsim

import (
	"context"
	"time"

	"github.com/unklstewy/vatscope/pkg/geo"
)

// DefaultFeedURL is the public VATSIM v3 data feed.
const DefaultFeedURL = "https://data.vatsim.net/v3/vatsim-data.json"

// Source is the interface for anything able to return one feed snapshot.
// A single call performs a single request; retry policy lives in Fetcher.
type Source interface {
	// FetchSnapshot retrieves the current pilots and controllers.
	FetchSnapshot(ctx context.Context) (Snapshot, error)
}

// Snapshot is one point-in-time listing of pilots and controllers.
type Snapshot struct {
	Pilots      []Pilot      `json:"pilots"`
	Controllers []Controller `json:"controllers"`

	// FetchedAt is when the snapshot was received (UTC).
	FetchedAt time.Time `json:"-"`
}

// Empty reports whether the snapshot carries neither pilots nor controllers.
// An empty snapshot from a successful request is treated as suspect upstream data.
func (s Snapshot) Empty() bool {
	return len(s.Pilots) == 0 && len(s.Controllers) == 0
}

// Pilot is a connected aircraft. Callsign is the primary key.
type Pilot struct {
	CID         int         `json:"cid,omitempty"`
	Name        string      `json:"name,omitempty"`
	Callsign    string      `json:"callsign"`
	Latitude    float64     `json:"latitude"`
	Longitude   float64     `json:"longitude"`
	Altitude    float64     `json:"altitude"`
	GroundSpeed float64     `json:"groundspeed"`
	Heading     float64     `json:"heading"`
	FlightPlan  *FlightPlan `json:"flight_plan,omitempty"`
}

// Position returns the pilot's current position.
func (p Pilot) Position() geo.Point {
	return geo.Point{Latitude: p.Latitude, Longitude: p.Longitude}
}

// AircraftType returns the filed aircraft string or "" without a flight plan.
func (p Pilot) AircraftType() string {
	if p.FlightPlan == nil {
		return ""
	}
	return p.FlightPlan.Aircraft
}

// HasRoute reports whether the pilot filed both a departure and an arrival.
func (p Pilot) HasRoute() bool {
	return p.FlightPlan != nil && p.FlightPlan.Departure != "" && p.FlightPlan.Arrival != ""
}

// FlightPlan is the filed plan attached to a pilot.
type FlightPlan struct {
	FlightRules   string `json:"flight_rules,omitempty"`
	Aircraft      string `json:"aircraft"`
	AircraftShort string `json:"aircraft_short,omitempty"`
	Departure     string `json:"departure"`
	Arrival       string `json:"arrival"`
	Alternate     string `json:"alternate,omitempty"`
	Altitude      string `json:"altitude,omitempty"`
	Route         string `json:"route"`
}

// Controller is a connected ATC position advertising a circular coverage area.
type Controller struct {
	CID         int      `json:"cid,omitempty"`
	Name        string   `json:"name"`
	Callsign    string   `json:"callsign"`
	Frequency   string   `json:"frequency"`
	Facility    int      `json:"facility,omitempty"`
	Rating      int      `json:"rating"`
	VisualRange float64  `json:"visual_range"`
	TextATIS    []string `json:"text_atis,omitempty"`

	// Center of the coverage circle
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Position returns the controller's advertised position.
func (c Controller) Position() geo.Point {
	return geo.Point{Latitude: c.Latitude, Longitude: c.Longitude}
}

// RadiusMeters converts the advertised visual range (nautical miles) to meters.
func (c Controller) RadiusMeters() float64 {
	return geo.NauticalMilesToMeters(c.VisualRange)
}
