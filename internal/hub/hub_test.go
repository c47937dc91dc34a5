package hub

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/unklstewy/vatscope/internal/admin"
	"github.com/unklstewy/vatscope/internal/tracker"
	"github.com/unklstewy/vatscope/pkg/geo"
	"github.com/unklstewy/vatscope/pkg/vatsim"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// drain returns every queued broadcast without blocking.
func drain(h *Hub) []Message {
	var out []Message
	for {
		select {
		case m := <-h.broadcast:
			out = append(out, m)
		default:
			return out
		}
	}
}

func types(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

// batched returns the ops of a single queued batch.
func batched(t *testing.T, h *Hub) []Message {
	t.Helper()
	msgs := drain(h)
	if len(msgs) != 1 || msgs[0].Type != TypeBatch {
		t.Fatalf("Expected one batch, got %v", types(msgs))
	}
	ops, ok := msgs[0].Data.([]Message)
	if !ok {
		t.Fatalf("Expected batch of messages, got %T", msgs[0].Data)
	}
	return ops
}

type recordingSessions struct {
	mu     sync.Mutex
	closed []string
}

func (r *recordingSessions) Connect(visitorID string) (string, string) {
	return uuid.NewString(), visitorID
}

func (r *recordingSessions) Disconnect(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, sessionID)
}

func newTestHub(opts Options) *Hub {
	opts.Logger = zerolog.Nop()
	return New(opts)
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) (*websocket.Conn, *http.Response) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	return conn, resp
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("Failed to set deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("Failed to decode %s: %v", data, err)
	}
	return f
}

func TestSceneOperations(t *testing.T) {
	h := newTestHub(Options{})
	s := NewScene(h)
	s.flushDelay = 0

	m := s.CreateMarker(tracker.Marker{ID: "BAW1"})
	p := s.DrawPolyline(tracker.Polyline{Owner: "BAW1", Kind: tracker.PolylineFlown})
	c := s.DrawCircle(tracker.Circle{ID: "EGLL_TWR"})
	pp := s.OpenPopup(tracker.Popup{Title: "EGLL"})

	seen := map[tracker.Handle]bool{}
	for _, handle := range []tracker.Handle{m, p, c, pp} {
		if handle == 0 {
			t.Error("Expected non-zero handle")
		}
		if seen[handle] {
			t.Errorf("Expected unique handles, got %d twice", handle)
		}
		seen[handle] = true
	}

	s.UpdateMarker(m, tracker.Marker{ID: "BAW1", Rotation: 90})
	s.UpdateMarker(999, tracker.Marker{ID: "ghost"})
	s.Remove(p)
	s.Remove(p)
	s.CenterOn(geo.Point{Latitude: 51.47, Longitude: -0.45}, 7)
	s.FitBounds(nil)
	s.FitBounds([]geo.Point{{Latitude: 1}, {Latitude: 2}})

	if n := len(drain(h)); n != 0 {
		t.Errorf("Expected nothing sent before Flush, got %d messages", n)
	}
	s.Flush()
	got := strings.Join(types(batched(t, h)), ",")
	want := "marker,polyline,circle,popup,marker,remove,view,fit"
	if got != want {
		t.Errorf("Expected batch %s, got %s", want, got)
	}
	s.Flush()
	if n := len(drain(h)); n != 0 {
		t.Errorf("Expected empty flush to send nothing, got %d messages", n)
	}

	if s.Len() != 3 {
		t.Errorf("Expected 3 objects, got %d", s.Len())
	}
	st := s.State()
	if len(st.Markers) != 1 || st.Markers[0].Marker.Rotation != 90 {
		t.Errorf("Expected updated marker in state, got %+v", st.Markers)
	}
	if len(st.Polylines) != 0 {
		t.Errorf("Expected removed polyline, got %d", len(st.Polylines))
	}
	if st.View == nil || st.View.Zoom != 7 {
		t.Errorf("Expected view at zoom 7, got %+v", st.View)
	}
}

func TestSceneStateOrderAndNotice(t *testing.T) {
	h := newTestHub(Options{})
	s := NewScene(h)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for _, id := range []string{"A", "B", "C", "D"} {
		s.CreateMarker(tracker.Marker{ID: id})
	}
	s.ShowNotice(tracker.Notice{ID: 1, Message: "Failed", Expires: now.Add(time.Second)})

	st := s.State()
	for i := 1; i < len(st.Markers); i++ {
		if st.Markers[i-1].Handle >= st.Markers[i].Handle {
			t.Fatalf("Expected markers ordered by handle, got %+v", st.Markers)
		}
	}
	if st.Notice == nil || st.Notice.Message != "Failed" {
		t.Errorf("Expected active notice, got %+v", st.Notice)
	}

	now = now.Add(2 * time.Second)
	if st := s.State(); st.Notice != nil {
		t.Errorf("Expected expired notice to be left out, got %+v", st.Notice)
	}
}

func TestBroadcastDropsSlowClient(t *testing.T) {
	sessions := &recordingSessions{}
	h := newTestHub(Options{Sessions: sessions})

	slow := &Client{hub: h, session: "slow", send: make(chan Message)}
	fast := &Client{hub: h, session: "fast", send: make(chan Message, 1)}
	h.clients[slow] = true
	h.clients[fast] = true

	h.broadcastToClients(Message{Type: TypeStats})

	if h.ClientCount() != 1 {
		t.Errorf("Expected 1 client left, got %d", h.ClientCount())
	}
	if _, ok := <-slow.send; ok {
		t.Error("Expected slow client channel to be closed")
	}
	if msg := <-fast.send; msg.Type != TypeStats {
		t.Errorf("Expected stats message, got %s", msg.Type)
	}
	if len(sessions.closed) != 1 || sessions.closed[0] != "slow" {
		t.Errorf("Expected slow session ended, got %v", sessions.closed)
	}

	h.removeClient(fast)
	h.removeClient(fast)
	if len(sessions.closed) != 2 {
		t.Errorf("Expected fast session ended once, got %v", sessions.closed)
	}
}

func TestSceneResyncsAfterFullQueue(t *testing.T) {
	h := newTestHub(Options{})
	s := NewScene(h)
	s.flushDelay = 0

	for i := 0; i < cap(h.broadcast); i++ {
		if !h.Broadcast(Message{Type: TypeStats}) {
			t.Fatalf("Expected message %d to be queued", i)
		}
	}
	done := make(chan bool, 1)
	go func() { done <- h.Broadcast(Message{Type: TypeStats}) }()
	select {
	case ok := <-done:
		if ok {
			t.Error("Expected Broadcast to report a full queue")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a full queue")
	}

	kept := s.CreateMarker(tracker.Marker{ID: "BAW1"})
	gone := s.CreateMarker(tracker.Marker{ID: "DLH2"})
	s.Flush()
	drain(h)

	s.Remove(gone)
	s.Flush()

	msgs := drain(h)
	if len(msgs) != 1 || msgs[0].Type != TypeScene {
		t.Fatalf("Expected a full scene after the lost batch, got %v", types(msgs))
	}
	st, ok := msgs[0].Data.(State)
	if !ok {
		t.Fatalf("Expected scene state, got %T", msgs[0].Data)
	}
	if len(st.Markers) != 1 || st.Markers[0].Handle != kept {
		t.Errorf("Expected only BAW1 in the resent scene, got %+v", st.Markers)
	}

	s.CreateMarker(tracker.Marker{ID: "AFR3"})
	s.Flush()
	if ops := batched(t, h); len(ops) != 1 || ops[0].Type != TypeMarker {
		t.Errorf("Expected batches to resume, got %v", types(ops))
	}
}

func TestServeWS(t *testing.T) {
	visitors := admin.NewVisitors(time.Hour, time.Minute)
	h := newTestHub(Options{Sessions: visitors})
	s := NewScene(h)
	s.CreateMarker(tracker.Marker{ID: "BAW1"})
	s.Flush()
	drain(h)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		h.Serve(ctx)
		close(served)
	}()
	defer func() {
		cancel()
		<-served
	}()

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	visitor := uuid.NewString()
	header := http.Header{}
	header.Set("Cookie", VisitorCookie+"="+visitor)
	conn, resp := dial(t, srv, header)
	defer conn.Close()

	t.Run("Cookie echoed", func(t *testing.T) {
		if got := resp.Header.Get("Set-Cookie"); !strings.Contains(got, visitor) {
			t.Errorf("Expected visitor cookie %s, got %q", visitor, got)
		}
	})

	t.Run("Full scene first", func(t *testing.T) {
		f := readFrame(t, conn)
		if f.Type != TypeScene {
			t.Fatalf("Expected scene, got %s", f.Type)
		}
		var st State
		if err := json.Unmarshal(f.Data, &st); err != nil {
			t.Fatalf("Failed to decode scene: %v", err)
		}
		if len(st.Markers) != 1 || st.Markers[0].Marker.ID != "BAW1" {
			t.Errorf("Expected BAW1 in scene, got %+v", st.Markers)
		}
	})

	t.Run("Incremental ops", func(t *testing.T) {
		s.CreateMarker(tracker.Marker{ID: "DLH2"})
		f := readFrame(t, conn)
		if f.Type != TypeBatch {
			t.Fatalf("Expected batch, got %s", f.Type)
		}
		var ops []frame
		if err := json.Unmarshal(f.Data, &ops); err != nil {
			t.Fatalf("Failed to decode batch: %v", err)
		}
		if len(ops) != 1 || ops[0].Type != TypeMarker {
			t.Fatalf("Expected one marker op, got %+v", ops)
		}
		var op Op
		if err := json.Unmarshal(ops[0].Data, &op); err != nil {
			t.Fatalf("Failed to decode op: %v", err)
		}
		if op.Handle == 0 || op.Marker == nil || op.Marker.ID != "DLH2" {
			t.Errorf("Expected DLH2 op with handle, got %+v", op)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
			t.Fatalf("Failed to write ping: %v", err)
		}
		if f := readFrame(t, conn); f.Type != TypePong {
			t.Errorf("Expected pong, got %s", f.Type)
		}
	})

	t.Run("Visitor counted", func(t *testing.T) {
		st := visitors.Stats()
		if st.Current != 1 || st.UniqueVisitors != 1 {
			t.Errorf("Expected 1 current and unique visitor, got %+v", st)
		}
		if h.ClientCount() != 1 {
			t.Errorf("Expected 1 client, got %d", h.ClientCount())
		}
	})

	t.Run("Shutdown closes clients", func(t *testing.T) {
		cancel()
		<-served

		if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			t.Fatalf("Failed to set deadline: %v", err)
		}
		if _, _, err := conn.ReadMessage(); err == nil {
			t.Error("Expected connection to close")
		}
		if got := visitors.Stats().Current; got != 0 {
			t.Errorf("Expected 0 current visitors, got %d", got)
		}
	})
}

func pilots(prefix string, from, n int) []vatsim.Pilot {
	out := make([]vatsim.Pilot, n)
	for i := range out {
		out[i] = vatsim.Pilot{
			Callsign:  fmt.Sprintf("%s%04d", prefix, from+i),
			Latitude:  float64((from+i)%180) - 90,
			Longitude: float64((from+i)%360) - 180,
		}
	}
	return out
}

// applyFrame replays one frame onto a client-side marker map.
func applyFrame(t *testing.T, markers map[tracker.Handle]string, f frame) {
	t.Helper()
	switch f.Type {
	case TypeScene:
		var st State
		if err := json.Unmarshal(f.Data, &st); err != nil {
			t.Fatalf("Failed to decode scene: %v", err)
		}
		clear(markers)
		for _, op := range st.Markers {
			markers[op.Handle] = op.Marker.ID
		}
	case TypeBatch:
		var ops []frame
		if err := json.Unmarshal(f.Data, &ops); err != nil {
			t.Fatalf("Failed to decode batch: %v", err)
		}
		for _, inner := range ops {
			applyFrame(t, markers, inner)
		}
	case TypeMarker, TypeRemove:
		var op Op
		if err := json.Unmarshal(f.Data, &op); err != nil {
			t.Fatalf("Failed to decode op: %v", err)
		}
		if f.Type == TypeRemove {
			delete(markers, op.Handle)
			return
		}
		markers[op.Handle] = op.Marker.ID
	}
}

func TestSceneStreamKeepsClientInStep(t *testing.T) {
	h := newTestHub(Options{})
	s := NewScene(h)
	s.flushDelay = 0
	r := tracker.NewReconciler(s)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		h.Serve(ctx)
		close(served)
	}()
	defer func() {
		cancel()
		<-served
	}()

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()
	conn, _ := dial(t, srv, nil)
	defer conn.Close()

	if f := readFrame(t, conn); f.Type != TypeScene {
		t.Fatalf("Expected scene, got %s", f.Type)
	}

	first := pilots("S", 0, 1500)
	second := append(pilots("S", 1100, 400), pilots("N", 0, 400)...)

	r.Reconcile(first)
	s.Flush()
	res := r.Reconcile(second)
	s.Flush()
	if res.Created != 400 || res.Updated != 400 || res.Removed != 1100 {
		t.Fatalf("Expected 400/400/1100, got %+v", res)
	}

	want := make(map[string]bool, len(second))
	for _, p := range second {
		want[p.Callsign] = true
	}
	inStep := func(markers map[tracker.Handle]string) bool {
		if len(markers) != len(want) {
			return false
		}
		for _, id := range markers {
			if !want[id] {
				return false
			}
		}
		return true
	}

	markers := map[tracker.Handle]string{}
	deadline := time.Now().Add(5 * time.Second)
	frames := 0
	for !inStep(markers) {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("Failed to set deadline: %v", err)
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Expected %d markers before the stream ended, got %d after %d frames: %v",
				len(want), len(markers), frames, err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("Failed to decode %s: %v", data, err)
		}
		applyFrame(t, markers, f)
		frames++
	}

	if frames > 4 {
		t.Errorf("Expected at most 4 frames for two snapshots, got %d", frames)
	}
	if s.Len() != len(second) {
		t.Errorf("Expected %d objects in the scene, got %d", len(second), s.Len())
	}
}

func TestServeWSRejectsOrigin(t *testing.T) {
	h := newTestHub(Options{AllowedOrigins: []string{"https://map.example"}})
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("Expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403, got %v", resp)
	}
}

func TestVisitorID(t *testing.T) {
	id := uuid.NewString()
	tests := []struct {
		name   string
		target string
		cookie string
		want   string
	}{
		{"Query", "/ws?visitor=" + id, "", id},
		{"Cookie", "/ws", id, id},
		{"Malformed", "/ws?visitor=not-a-uuid", "", ""},
		{"None", "/ws", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: VisitorCookie, Value: tt.cookie})
			}
			if got := visitorID(r); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
