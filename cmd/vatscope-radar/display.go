package main

import (
	"math"
	"slices"
	"sync"

	"github.com/unklstewy/vatscope/internal/tracker"
	"github.com/unklstewy/vatscope/pkg/geo"
)

// viewRequest is a CenterOn or FitBounds issued by the tracker.
type viewRequest struct {
	seq     uint64
	center  geo.Point
	rangeNM float64
}

// scene is an immutable copy of the display for one frame.
type scene struct {
	markers   []tracker.Marker
	polylines []tracker.Polyline
	circles   []tracker.Circle
	popup     *tracker.Popup
	notice    *tracker.Notice
	view      viewRequest
}

// termDisplay stores what the tracker draws; the bubbletea model renders it.
type termDisplay struct {
	mu        sync.Mutex
	next      tracker.Handle
	markers   map[tracker.Handle]tracker.Marker
	polylines map[tracker.Handle]tracker.Polyline
	circles   map[tracker.Handle]tracker.Circle
	popups    map[tracker.Handle]tracker.Popup
	notice    *tracker.Notice
	view      viewRequest
}

var (
	_ tracker.Display  = (*termDisplay)(nil)
	_ tracker.Notifier = (*termDisplay)(nil)
)

func newTermDisplay() *termDisplay {
	return &termDisplay{
		markers:   make(map[tracker.Handle]tracker.Marker),
		polylines: make(map[tracker.Handle]tracker.Polyline),
		circles:   make(map[tracker.Handle]tracker.Circle),
		popups:    make(map[tracker.Handle]tracker.Popup),
	}
}

func (d *termDisplay) CreateMarker(m tracker.Marker) tracker.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.markers[d.next] = m
	return d.next
}

func (d *termDisplay) UpdateMarker(h tracker.Handle, m tracker.Marker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.markers[h]; ok {
		d.markers[h] = m
	}
}

func (d *termDisplay) DrawPolyline(p tracker.Polyline) tracker.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.polylines[d.next] = p
	return d.next
}

func (d *termDisplay) DrawCircle(c tracker.Circle) tracker.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.circles[d.next] = c
	return d.next
}

func (d *termDisplay) OpenPopup(p tracker.Popup) tracker.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.popups[d.next] = p
	return d.next
}

func (d *termDisplay) Remove(h tracker.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.markers, h)
	delete(d.polylines, h)
	delete(d.circles, h)
	delete(d.popups, h)
}

func (d *termDisplay) CenterOn(p geo.Point, zoom int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.view = viewRequest{seq: d.view.seq + 1, center: p, rangeNM: zoomRange(zoom)}
}

func (d *termDisplay) FitBounds(points []geo.Point) {
	b, ok := geo.BoundsOf(points)
	if !ok {
		return
	}
	center := geo.Point{
		Latitude:  (b.South + b.North) / 2,
		Longitude: (b.West + b.East) / 2,
	}
	corner := geo.Point{Latitude: b.North, Longitude: b.East}
	r := clampRange(geo.DistanceNauticalMiles(center, corner) * 1.1)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.view = viewRequest{seq: d.view.seq + 1, center: center, rangeNM: r}
}

func (d *termDisplay) ShowNotice(n tracker.Notice) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notice = &n
}

// snapshot copies the display. The popup is the most recently opened one.
func (d *termDisplay) snapshot() scene {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := scene{view: d.view}
	for _, h := range sortedKeys(d.markers) {
		s.markers = append(s.markers, d.markers[h])
	}
	for _, h := range sortedKeys(d.circles) {
		s.circles = append(s.circles, d.circles[h])
	}
	for _, h := range sortedKeys(d.polylines) {
		s.polylines = append(s.polylines, d.polylines[h])
	}
	if keys := sortedKeys(d.popups); len(keys) > 0 {
		p := d.popups[keys[len(keys)-1]]
		s.popup = &p
	}
	if d.notice != nil {
		n := *d.notice
		s.notice = &n
	}
	return s
}

func sortedKeys[V any](m map[tracker.Handle]V) []tracker.Handle {
	keys := make([]tracker.Handle, 0, len(m))
	for h := range m {
		keys = append(keys, h)
	}
	slices.Sort(keys)
	return keys
}

const (
	minRangeNM = 10
	maxRangeNM = 2500
)

// zoomRange maps a web map zoom level to a radar range. Zoom 4 shows most of
// a continent, zoom 11 a single airport.
func zoomRange(zoom int) float64 {
	return clampRange(3000 / math.Pow(2, float64(zoom-2)))
}

func clampRange(nm float64) float64 {
	return math.Max(minRangeNM, math.Min(maxRangeNM, nm))
}
