package vatsim

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Icon size classes for aircraft markers.
const (
	SizeSmall  = "small"
	SizeMedium = "medium"
	SizeLarge  = "large"
)

var (
	basicTypePattern  = regexp.MustCompile(`^([A-Z]\d{3}|[A-Z]\d{2}|[A-Z]{2}\d{2})`)
	wideBodyPattern   = regexp.MustCompile(`^(B7[4-8]|A3[3-8]|B77|A35)`)
	narrowBodyPattern = regexp.MustCompile(`^(B73|A32|A31|A22|E1[7-9]|E29|CRJ)`)
)

// FormatAltitude renders an altitude in feet. At or above 10000 ft it is
// shown as a flight level (FL + hundreds of feet, rounded).
func FormatAltitude(altitude float64) string {
	if altitude >= 10000 {
		return fmt.Sprintf("FL%d", int(math.Round(altitude/100)))
	}
	return strconv.FormatFloat(altitude, 'f', -1, 64) + " ft"
}

// BasicAircraftType extracts the ICAO type designator from a filed aircraft
// string such as "H/B744/L" or "A320/M-SDE2E3FGHIJ1RWXY/LB1".
func BasicAircraftType(aircraft string) string {
	if aircraft == "" {
		return "N/A"
	}
	if m := basicTypePattern.FindString(aircraft); m != "" {
		return m
	}
	head, _, _ := strings.Cut(aircraft, "/")
	head, _, _ = strings.Cut(head, "-")
	return strings.TrimSpace(head)
}

// SizeClass maps an aircraft type to a marker icon size.
func SizeClass(aircraftType string) string {
	if aircraftType == "" {
		return SizeMedium
	}
	t := strings.ToUpper(aircraftType)
	switch {
	case wideBodyPattern.MatchString(t):
		return SizeLarge
	case narrowBodyPattern.MatchString(t):
		return SizeMedium
	default:
		return SizeSmall
	}
}

// FormatGroundSpeed renders a ground speed in knots.
func FormatGroundSpeed(gs float64) string {
	return strconv.FormatFloat(gs, 'f', -1, 64) + " kts"
}

// FormatHeading renders a heading in degrees.
func FormatHeading(hdg float64) string {
	return strconv.FormatFloat(hdg, 'f', -1, 64) + "°"
}

// RouteLine renders "DEP ✈ ARR", using N/A for a missing side.
func RouteLine(fp *FlightPlan) string {
	if fp == nil {
		return ""
	}
	return orNA(fp.Departure) + " ✈ " + orNA(fp.Arrival)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
