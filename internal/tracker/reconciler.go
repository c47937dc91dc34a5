package tracker

import (
	"sort"
	"strings"

	"github.com/unklstewy/vatscope/pkg/vatsim"
)

// ReconcileResult counts the marker operations of one pass.
type ReconcileResult struct {
	Created int
	Updated int
	Removed int
}

// Reconciler keeps the displayed marker set in step with the latest snapshot.
//
// It owns two maps keyed by callsign, exactly as given by the feed: marker
// handles and last-known pilot values. Their key sets are always identical.
// A Reconciler is not safe for concurrent use; Tracker serializes access.
type Reconciler struct {
	display Display
	markers map[string]Handle
	pilots  map[string]vatsim.Pilot
}

// NewReconciler creates an empty displayed set drawing onto display.
func NewReconciler(display Display) *Reconciler {
	return &Reconciler{
		display: display,
		markers: make(map[string]Handle),
		pilots:  make(map[string]vatsim.Pilot),
	}
}

// Reconcile applies a snapshot's pilots: create unseen callsigns, update
// displayed ones in place, and remove callsigns the snapshot no longer has.
// If a callsign appears twice the later entry wins.
func (r *Reconciler) Reconcile(pilots []vatsim.Pilot) ReconcileResult {
	var res ReconcileResult

	// Removal candidates come from the key set before any mutation.
	previous := make([]string, 0, len(r.markers))
	for callsign := range r.markers {
		previous = append(previous, callsign)
	}

	seen := make(map[string]struct{}, len(pilots))
	for _, p := range pilots {
		seen[p.Callsign] = struct{}{}

		if h, ok := r.markers[p.Callsign]; ok {
			r.display.UpdateMarker(h, pilotMarker(p))
			r.pilots[p.Callsign] = p
			res.Updated++
			continue
		}

		r.markers[p.Callsign] = r.display.CreateMarker(pilotMarker(p))
		r.pilots[p.Callsign] = p
		res.Created++
	}

	for _, callsign := range previous {
		if _, ok := seen[callsign]; ok {
			continue
		}
		r.display.Remove(r.markers[callsign])
		delete(r.markers, callsign)
		delete(r.pilots, callsign)
		res.Removed++
	}

	return res
}

// Lookup finds a displayed pilot. The query is uppercased first, then
// compared case-insensitively, so "baw123" finds "BAW123".
func (r *Reconciler) Lookup(callsign string) (vatsim.Pilot, bool) {
	q := strings.ToUpper(strings.TrimSpace(callsign))
	if q == "" {
		return vatsim.Pilot{}, false
	}
	if p, ok := r.pilots[q]; ok {
		return p, true
	}
	for key, p := range r.pilots {
		if strings.EqualFold(key, q) {
			return p, true
		}
	}
	return vatsim.Pilot{}, false
}

// Keys returns the displayed callsigns, sorted.
func (r *Reconciler) Keys() []string {
	keys := make([]string, 0, len(r.markers))
	for k := range r.markers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Pilots returns the last-known values of all displayed pilots, sorted by callsign.
func (r *Reconciler) Pilots() []vatsim.Pilot {
	out := make([]vatsim.Pilot, 0, len(r.pilots))
	for _, k := range r.Keys() {
		out = append(out, r.pilots[k])
	}
	return out
}

// Len is the number of displayed pilots.
func (r *Reconciler) Len() int {
	return len(r.markers)
}

// Clear removes every marker and empties the displayed set.
func (r *Reconciler) Clear() {
	for callsign, h := range r.markers {
		r.display.Remove(h)
		delete(r.markers, callsign)
		delete(r.pilots, callsign)
	}
}
