package tracker

import (
	"time"

	"github.com/unklstewy/vatscope/pkg/geo"
)

// Handle identifies one drawn object inside a Display. The zero Handle is never issued.
type Handle uint64

// Display is the map collaborator. It is the sole consumer of the geometry
// produced by the reconciler, the zone builder and the route projector.
// Implementations must be safe for use from multiple goroutines.
type Display interface {
	CreateMarker(m Marker) Handle
	UpdateMarker(h Handle, m Marker)
	DrawPolyline(p Polyline) Handle
	DrawCircle(c Circle) Handle
	OpenPopup(p Popup) Handle
	Remove(h Handle)
	CenterOn(p geo.Point, zoom int)
	FitBounds(points []geo.Point)
}

// Flusher is implemented by displays that buffer operations. The tracker
// calls Flush after each applied snapshot, selection and shutdown.
type Flusher interface {
	Flush()
}

// Notifier is implemented by displays that can show transient notices.
type Notifier interface {
	ShowNotice(n Notice)
}

// Marker is an aircraft glyph.
type Marker struct {
	ID       string    `json:"id"`
	Position geo.Point `json:"position"`

	// Rotation is the heading in degrees, 0 when absent.
	Rotation float64 `json:"rotation"`

	// Size is one of vatsim.SizeSmall, SizeMedium, SizeLarge.
	Size string `json:"size"`

	// Popup is bound to the marker and shown on click.
	Popup Popup `json:"popup"`
}

// PolylineKind distinguishes the two halves of a projected route.
type PolylineKind string

const (
	PolylineFlown     PolylineKind = "flown"
	PolylineRemaining PolylineKind = "remaining"
)

// Polyline is an open path.
type Polyline struct {
	Owner  string       `json:"owner"`
	Kind   PolylineKind `json:"kind"`
	Points []geo.Point  `json:"points"`
	Color  string       `json:"color"`
	Dashed bool         `json:"dashed"`
}

// Circle is a coverage zone.
type Circle struct {
	ID           string    `json:"id"`
	Center       geo.Point `json:"center"`
	RadiusMeters float64   `json:"radius_m"`
	Tier         Tier      `json:"tier"`
	Color        string    `json:"color"`
	FillColor    string    `json:"fill_color"`
	FillOpacity  float64   `json:"fill_opacity"`
	Popup        Popup     `json:"popup"`
}

// Popup is structured so both HTML and terminal renderers can draw it.
type Popup struct {
	Title  string      `json:"title"`
	Lines  []PopupLine `json:"lines,omitempty"`
	Footer string      `json:"footer,omitempty"`

	// Progress is a percentage bar, nil when absent.
	Progress *int `json:"progress,omitempty"`

	// Anchor is only used for free-standing popups opened with OpenPopup.
	Anchor geo.Point `json:"anchor"`
}

// PopupLine is one label/value row.
type PopupLine struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Notice is a transient user-visible message.
type Notice struct {
	ID      uint64    `json:"id"`
	Message string    `json:"message"`
	Posted  time.Time `json:"posted"`
	Expires time.Time `json:"expires"`
}
