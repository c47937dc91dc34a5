package geo

import (
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name      string
		from      Point
		to        Point
		expected  float64
		tolerance float64
	}{
		{
			name:      "Identical points",
			from:      Point{Latitude: 51.47, Longitude: -0.4543},
			to:        Point{Latitude: 51.47, Longitude: -0.4543},
			expected:  0,
			tolerance: 0,
		},
		{
			name:      "Quarter of the equator",
			from:      Point{Latitude: 0, Longitude: 0},
			to:        Point{Latitude: 0, Longitude: 90},
			expected:  10007543,
			tolerance: 1,
		},
		{
			name:      "Pole to pole",
			from:      Point{Latitude: 90, Longitude: 0},
			to:        Point{Latitude: -90, Longitude: 0},
			expected:  math.Pi * EarthRadiusMeters,
			tolerance: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.from, tt.to)
			if math.Abs(got-tt.expected) > tt.tolerance {
				t.Errorf("Expected %.1f m, got %.1f m", tt.expected, got)
			}
		})
	}

	t.Run("Symmetric", func(t *testing.T) {
		a := Point{Latitude: 40.6413, Longitude: -73.7781}
		b := Point{Latitude: 51.47, Longitude: -0.4543}
		if math.Abs(Distance(a, b)-Distance(b, a)) > 1e-6 {
			t.Error("Expected distance to be symmetric")
		}
	})
}

func TestDistanceNauticalMiles(t *testing.T) {
	// One degree of arc on this sphere is 60.04 NM
	got := DistanceNauticalMiles(Point{0, 0}, Point{1, 0})
	if math.Abs(got-60.04) > 0.01 {
		t.Errorf("Expected ~60.04 NM, got %.3f", got)
	}
}

func TestBearing(t *testing.T) {
	tests := []struct {
		name     string
		to       Point
		expected float64
	}{
		{"North", Point{Latitude: 1, Longitude: 0}, 0},
		{"East", Point{Latitude: 0, Longitude: 1}, 90},
		{"South", Point{Latitude: -1, Longitude: 0}, 180},
		{"West", Point{Latitude: 0, Longitude: -1}, 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bearing(Point{}, tt.to)
			if math.Abs(got-tt.expected) > 0.001 {
				t.Errorf("Expected bearing %.1f, got %.3f", tt.expected, got)
			}
		})
	}
}

func TestNauticalMileConversions(t *testing.T) {
	if got := NauticalMilesToMeters(50); got != 92600 {
		t.Errorf("Expected 92600 m, got %f", got)
	}
	if got := MetersToNauticalMiles(1852); got != 1 {
		t.Errorf("Expected 1 NM, got %f", got)
	}
}

func TestBoundsOf(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		if _, ok := BoundsOf(nil); ok {
			t.Error("Expected ok=false for no points")
		}
	})

	t.Run("Route", func(t *testing.T) {
		b, ok := BoundsOf([]Point{
			{Latitude: 40.6, Longitude: -73.7},
			{Latitude: 51.4, Longitude: -0.4},
			{Latitude: 45.0, Longitude: -30.0},
		})
		if !ok {
			t.Fatal("Expected ok=true")
		}
		want := Bounds{South: 40.6, West: -73.7, North: 51.4, East: -0.4}
		if b != want {
			t.Errorf("Expected %+v, got %+v", want, b)
		}
		if !b.Contains(Point{Latitude: 45, Longitude: -30}) {
			t.Error("Expected bounds to contain interior point")
		}
		if b.Contains(Point{Latitude: 60, Longitude: 0}) {
			t.Error("Expected bounds to exclude exterior point")
		}
	})
}

func TestDestination(t *testing.T) {
	t.Run("Round trip", func(t *testing.T) {
		from := Point{Latitude: 51.47, Longitude: -0.4543}
		to := Destination(from, 45, 120)
		if got := DistanceNauticalMiles(from, to); math.Abs(got-120) > 0.01 {
			t.Errorf("Expected 120 NM, got %.3f", got)
		}
		if got := Bearing(from, to); math.Abs(got-45) > 0.01 {
			t.Errorf("Expected bearing 45, got %.3f", got)
		}
	})

	t.Run("Equator east", func(t *testing.T) {
		got := Destination(Point{}, 90, 60)
		if math.Abs(got.Latitude) > 1e-9 || math.Abs(got.Longitude-1.0) > 0.001 {
			t.Errorf("Expected ~(0, 1), got %+v", got)
		}
	})

	t.Run("Wraps the antimeridian", func(t *testing.T) {
		got := Destination(Point{Longitude: 179.5}, 90, 60)
		if got.Longitude > -179 || got.Longitude < -180 {
			t.Errorf("Expected longitude near -179.5, got %f", got.Longitude)
		}
	})
}

func TestInterpolate(t *testing.T) {
	a := Point{Latitude: 51.47, Longitude: -0.4543}
	b := Point{Latitude: 40.64, Longitude: -73.78}

	if got := Interpolate(a, b, 0); Distance(got, a) > 1 {
		t.Errorf("Expected start point, got %+v", got)
	}
	if got := Interpolate(a, b, 1); Distance(got, b) > 1 {
		t.Errorf("Expected end point, got %+v", got)
	}

	mid := Interpolate(a, b, 0.5)
	da, db := Distance(a, mid), Distance(mid, b)
	if math.Abs(da-db) > 10 {
		t.Errorf("Expected midpoint equidistant, got %.0f and %.0f", da, db)
	}
	// The great circle from London to New York bends north of both ends.
	if mid.Latitude <= a.Latitude {
		t.Errorf("Expected midpoint north of %.2f, got %.2f", a.Latitude, mid.Latitude)
	}

	if got := Interpolate(a, a, 0.5); got != a {
		t.Errorf("Expected identical points to return a, got %+v", got)
	}
}
