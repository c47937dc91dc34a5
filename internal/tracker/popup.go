package tracker

import (
	"strconv"
	"strings"

	"github.com/unklstewy/vatscope/pkg/vatsim"
)

// pilotPopup is the popup bound to every aircraft marker.
func pilotPopup(p vatsim.Pilot) Popup {
	popup := Popup{
		Title: p.Callsign,
		Lines: []PopupLine{
			{Label: "Aircraft", Value: vatsim.BasicAircraftType(p.AircraftType())},
			{Label: "Altitude", Value: vatsim.FormatAltitude(p.Altitude)},
			{Label: "Ground Speed", Value: vatsim.FormatGroundSpeed(p.GroundSpeed)},
			{Label: "Heading", Value: vatsim.FormatHeading(p.Heading)},
		},
	}
	if p.FlightPlan != nil {
		popup.Footer = vatsim.RouteLine(p.FlightPlan)
	}
	return popup
}

// routePopup extends the pilot popup with progress and the filed route.
func routePopup(p vatsim.Pilot, percent int) Popup {
	popup := pilotPopup(p)
	popup.Anchor = p.Position()
	popup.Progress = &percent

	route := "No route filed"
	if p.FlightPlan != nil && p.FlightPlan.Route != "" {
		route = p.FlightPlan.Route
	}
	popup.Lines = append(popup.Lines,
		PopupLine{Label: "Flight Progress", Value: strconv.Itoa(percent) + "%"},
		PopupLine{Label: "Filed Route", Value: route},
	)
	return popup
}

// zonePopup is bound to every coverage circle.
func zonePopup(c vatsim.Controller) Popup {
	popup := Popup{
		Title: c.Callsign,
		Lines: []PopupLine{
			{Label: "Frequency", Value: c.Frequency},
			{Label: "Controller", Value: c.Name},
			{Label: "Rating", Value: strconv.Itoa(c.Rating)},
		},
	}
	if len(c.TextATIS) > 0 {
		popup.Lines = append(popup.Lines, PopupLine{Label: "ATIS", Value: strings.Join(c.TextATIS, " ")})
	}
	return popup
}

// pilotMarker builds the marker for a pilot.
func pilotMarker(p vatsim.Pilot) Marker {
	size := vatsim.SizeClass("")
	if t := p.AircraftType(); t != "" {
		size = vatsim.SizeClass(vatsim.BasicAircraftType(t))
	}
	return Marker{
		ID:       p.Callsign,
		Position: p.Position(),
		Rotation: p.Heading,
		Size:     size,
		Popup:    pilotPopup(p),
	}
}
