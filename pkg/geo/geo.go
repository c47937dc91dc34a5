// Package geo provides great-circle helpers for positions on the Earth's surface.
package geo

import "math"

// Constants for geographic calculations
const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi

	// EarthRadiusMeters is the mean Earth radius used for haversine distances.
	EarthRadiusMeters = 6371000.0

	// MetersPerNauticalMile is the fixed nautical mile conversion factor.
	MetersPerNauticalMile = 1852.0
)

// Point is a WGS84 position in decimal degrees.
type Point struct {
	// Latitude in decimal degrees (-90 to +90), positive north
	Latitude float64 `json:"lat"`

	// Longitude in decimal degrees (-180 to +180), positive east
	Longitude float64 `json:"lon"`
}

// Bounds is the smallest lat/lon box containing a set of points.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Distance calculates the great-circle distance between two points in meters.
// Uses the Haversine formula with a spherical Earth of radius EarthRadiusMeters.
func Distance(from, to Point) float64 {
	lat1Rad := from.Latitude * DegreesToRadians
	lon1Rad := from.Longitude * DegreesToRadians
	lat2Rad := to.Latitude * DegreesToRadians
	lon2Rad := to.Longitude * DegreesToRadians

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// DistanceNauticalMiles is Distance expressed in nautical miles.
func DistanceNauticalMiles(from, to Point) float64 {
	return MetersToNauticalMiles(Distance(from, to))
}

// Bearing calculates the initial bearing (forward azimuth) from one point to another.
// Returns bearing in degrees (0-360), where 0/360 = North, 90 = East.
func Bearing(from, to Point) float64 {
	lat1 := from.Latitude * DegreesToRadians
	lon1 := from.Longitude * DegreesToRadians
	lat2 := to.Latitude * DegreesToRadians
	lon2 := to.Longitude * DegreesToRadians

	dLon := lon2 - lon1
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	bearing := math.Atan2(y, x) * RadiansToDegrees

	if bearing < 0 {
		bearing += 360
	}

	return bearing
}

// NauticalMilesToMeters converts a distance in nautical miles to meters.
func NauticalMilesToMeters(nm float64) float64 {
	return nm * MetersPerNauticalMile
}

// MetersToNauticalMiles converts a distance in meters to nautical miles.
func MetersToNauticalMiles(m float64) float64 {
	return m / MetersPerNauticalMile
}

// Destination returns the point reached by travelling distanceNM along a
// great circle with the given initial bearing.
func Destination(from Point, bearingDeg, distanceNM float64) Point {
	lat1 := from.Latitude * DegreesToRadians
	lon1 := from.Longitude * DegreesToRadians
	brg := bearingDeg * DegreesToRadians
	d := NauticalMilesToMeters(distanceNM) / EarthRadiusMeters

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brg))
	lon2 := lon1 + math.Atan2(
		math.Sin(brg)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2),
	)

	lon := lon2 * RadiansToDegrees
	if lon > 180 {
		lon -= 360
	} else if lon < -180 {
		lon += 360
	}
	return Point{Latitude: lat2 * RadiansToDegrees, Longitude: lon}
}

// Interpolate returns the point at fraction (0..1) of the great circle from a to b.
func Interpolate(a, b Point, fraction float64) Point {
	lat1, lon1 := a.Latitude*DegreesToRadians, a.Longitude*DegreesToRadians
	lat2, lon2 := b.Latitude*DegreesToRadians, b.Longitude*DegreesToRadians

	d := Distance(a, b) / EarthRadiusMeters
	if d < 1e-10 {
		return a
	}

	ka := math.Sin((1-fraction)*d) / math.Sin(d)
	kb := math.Sin(fraction*d) / math.Sin(d)

	x := ka*math.Cos(lat1)*math.Cos(lon1) + kb*math.Cos(lat2)*math.Cos(lon2)
	y := ka*math.Cos(lat1)*math.Sin(lon1) + kb*math.Cos(lat2)*math.Sin(lon2)
	z := ka*math.Sin(lat1) + kb*math.Sin(lat2)

	return Point{
		Latitude:  math.Atan2(z, math.Sqrt(x*x+y*y)) * RadiansToDegrees,
		Longitude: math.Atan2(y, x) * RadiansToDegrees,
	}
}

// BoundsOf returns the bounding box of points. ok is false for an empty slice.
func BoundsOf(points []Point) (b Bounds, ok bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}

	b = Bounds{
		South: points[0].Latitude,
		North: points[0].Latitude,
		West:  points[0].Longitude,
		East:  points[0].Longitude,
	}
	for _, p := range points[1:] {
		b.South = math.Min(b.South, p.Latitude)
		b.North = math.Max(b.North, p.Latitude)
		b.West = math.Min(b.West, p.Longitude)
		b.East = math.Max(b.East, p.Longitude)
	}
	return b, true
}

// Contains reports whether p lies inside the box (edges inclusive).
func (b Bounds) Contains(p Point) bool {
	return p.Latitude >= b.South && p.Latitude <= b.North &&
		p.Longitude >= b.West && p.Longitude <= b.East
}
