package hub

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/unklstewy/vatscope/internal/tracker"
	"github.com/unklstewy/vatscope/pkg/geo"
)

// Op is one scene change. Ops are keyed by handle, so applying one twice
// leaves the client in the same state.
type Op struct {
	Handle   tracker.Handle    `json:"handle,omitempty"`
	Marker   *tracker.Marker   `json:"marker,omitempty"`
	Polyline *tracker.Polyline `json:"polyline,omitempty"`
	Circle   *tracker.Circle   `json:"circle,omitempty"`
	Popup    *tracker.Popup    `json:"popup,omitempty"`
}

// View is the requested map viewport.
type View struct {
	Center geo.Point `json:"center"`
	Zoom   int       `json:"zoom"`
}

// State is the full scene sent to a new client.
type State struct {
	Markers   []Op            `json:"markers"`
	Polylines []Op            `json:"polylines"`
	Circles   []Op            `json:"circles"`
	Popups    []Op            `json:"popups"`
	View      *View           `json:"view,omitempty"`
	Notice    *tracker.Notice `json:"notice,omitempty"`
}

// DefaultFlushDelay is how long a queued op waits for an explicit Flush
// before the scene sends it anyway.
const DefaultFlushDelay = 100 * time.Millisecond

// Scene implements tracker.Display, tracker.Notifier and tracker.Flusher by
// keeping every drawn object and queueing each change for the next batch.
type Scene struct {
	hub *Hub
	now func() time.Time

	// flushDelay of zero disables the fallback timer; only Flush sends.
	flushDelay time.Duration

	mu        sync.Mutex
	pending   []Message
	timer     *time.Timer
	resync    bool
	next      tracker.Handle
	markers   map[tracker.Handle]tracker.Marker
	polylines map[tracker.Handle]tracker.Polyline
	circles   map[tracker.Handle]tracker.Circle
	popups    map[tracker.Handle]tracker.Popup
	view      *View
	notice    *tracker.Notice
}

var (
	_ tracker.Display  = (*Scene)(nil)
	_ tracker.Notifier = (*Scene)(nil)
	_ tracker.Flusher  = (*Scene)(nil)
)

// NewScene creates an empty scene and registers it as the hub's greeting.
func NewScene(h *Hub) *Scene {
	s := &Scene{
		hub:        h,
		now:        time.Now,
		flushDelay: DefaultFlushDelay,
		markers:    make(map[tracker.Handle]tracker.Marker),
		polylines:  make(map[tracker.Handle]tracker.Polyline),
		circles:    make(map[tracker.Handle]tracker.Circle),
		popups:     make(map[tracker.Handle]tracker.Popup),
	}
	h.OnConnect(func() Message {
		return Message{Type: TypeScene, Data: s.State()}
	})
	return s
}

// queueLocked adds msg to the next batch and arms the fallback timer.
func (s *Scene) queueLocked(msg Message) {
	s.pending = append(s.pending, msg)
	s.armLocked()
}

func (s *Scene) armLocked() {
	if s.timer == nil && s.flushDelay > 0 {
		s.timer = time.AfterFunc(s.flushDelay, s.Flush)
	}
}

// Flush sends the queued ops as one batch frame. If the hub cannot take a
// frame, the ops are folded into the scene and the next flush sends the
// whole scene instead, so no client is left with a partial picture.
func (s *Scene) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if len(s.pending) == 0 && !s.resync {
		return
	}

	msg := Message{Type: TypeBatch, Data: s.pending}
	if s.resync {
		msg = Message{Type: TypeScene, Data: s.stateLocked()}
	}
	s.pending = nil
	s.resync = !s.hub.Broadcast(msg)
	if s.resync {
		s.armLocked()
	}
}

func (s *Scene) issueLocked() tracker.Handle {
	s.next++
	return s.next
}

func (s *Scene) CreateMarker(m tracker.Marker) tracker.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.issueLocked()
	s.markers[h] = m
	s.queueLocked(Message{Type: TypeMarker, Data: Op{Handle: h, Marker: &m}})
	return h
}

// UpdateMarker ignores handles that were never issued or already removed.
func (s *Scene) UpdateMarker(h tracker.Handle, m tracker.Marker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markers[h]; !ok {
		return
	}
	s.markers[h] = m
	s.queueLocked(Message{Type: TypeMarker, Data: Op{Handle: h, Marker: &m}})
}

func (s *Scene) DrawPolyline(p tracker.Polyline) tracker.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.issueLocked()
	s.polylines[h] = p
	s.queueLocked(Message{Type: TypePolyline, Data: Op{Handle: h, Polyline: &p}})
	return h
}

func (s *Scene) DrawCircle(c tracker.Circle) tracker.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.issueLocked()
	s.circles[h] = c
	s.queueLocked(Message{Type: TypeCircle, Data: Op{Handle: h, Circle: &c}})
	return h
}

func (s *Scene) OpenPopup(p tracker.Popup) tracker.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.issueLocked()
	s.popups[h] = p
	s.queueLocked(Message{Type: TypePopup, Data: Op{Handle: h, Popup: &p}})
	return h
}

// Remove deletes whatever object h refers to. Unknown handles are ignored.
func (s *Scene) Remove(h tracker.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	if _, ok := s.markers[h]; ok {
		delete(s.markers, h)
		found = true
	} else if _, ok := s.polylines[h]; ok {
		delete(s.polylines, h)
		found = true
	} else if _, ok := s.circles[h]; ok {
		delete(s.circles, h)
		found = true
	} else if _, ok := s.popups[h]; ok {
		delete(s.popups, h)
		found = true
	}
	if found {
		s.queueLocked(Message{Type: TypeRemove, Data: Op{Handle: h}})
	}
}

func (s *Scene) CenterOn(p geo.Point, zoom int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{Center: p, Zoom: zoom}
	s.view = &v
	s.queueLocked(Message{Type: TypeView, Data: v})
}

// FitBounds is forwarded to clients; the resulting viewport depends on the
// client's screen, so it is not kept in the scene.
func (s *Scene) FitBounds(points []geo.Point) {
	if len(points) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queueLocked(Message{Type: TypeFit, Data: slices.Clone(points)})
}

func (s *Scene) ShowNotice(n tracker.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = &n
	s.queueLocked(Message{Type: TypeNotice, Data: n})
}

// State returns a copy of the scene ordered by handle. An expired notice is
// left out.
func (s *Scene) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Scene) stateLocked() State {
	st := State{
		Markers:   make([]Op, 0, len(s.markers)),
		Polylines: make([]Op, 0, len(s.polylines)),
		Circles:   make([]Op, 0, len(s.circles)),
		Popups:    make([]Op, 0, len(s.popups)),
	}
	for h, m := range s.markers {
		st.Markers = append(st.Markers, Op{Handle: h, Marker: &m})
	}
	for h, p := range s.polylines {
		st.Polylines = append(st.Polylines, Op{Handle: h, Polyline: &p})
	}
	for h, c := range s.circles {
		st.Circles = append(st.Circles, Op{Handle: h, Circle: &c})
	}
	for h, p := range s.popups {
		st.Popups = append(st.Popups, Op{Handle: h, Popup: &p})
	}
	for _, ops := range [][]Op{st.Markers, st.Polylines, st.Circles, st.Popups} {
		slices.SortFunc(ops, func(a, b Op) int { return cmp.Compare(a.Handle, b.Handle) })
	}

	if s.view != nil {
		v := *s.view
		st.View = &v
	}
	if s.notice != nil && s.now().Before(s.notice.Expires) {
		n := *s.notice
		st.Notice = &n
	}
	return st
}

// Len returns the number of objects in the scene.
func (s *Scene) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markers) + len(s.polylines) + len(s.circles) + len(s.popups)
}
