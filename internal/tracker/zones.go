package tracker

import (
	"strings"

	"github.com/unklstewy/vatscope/pkg/vatsim"
)

// Tier is the coverage priority class of a controller position.
type Tier int

const (
	TierNone     Tier = iota // not drawn
	TierCenter               // _CTR
	TierApproach             // _APP, _DEP
	TierTower                // _TWR, _GND
)

// drawOrder lists drawn tiers from largest to most specific.
var drawOrder = []Tier{TierCenter, TierApproach, TierTower}

const (
	zoneColor     = "#1a472a"
	zoneFillColor = "#2d5a3c"
)

// Classify maps a controller callsign to its tier by suffix.
func Classify(callsign string) Tier {
	cs := strings.ToUpper(callsign)
	switch {
	case strings.HasSuffix(cs, "_CTR"):
		return TierCenter
	case strings.HasSuffix(cs, "_APP"), strings.HasSuffix(cs, "_DEP"):
		return TierApproach
	case strings.HasSuffix(cs, "_TWR"), strings.HasSuffix(cs, "_GND"):
		return TierTower
	default:
		return TierNone
	}
}

func (t Tier) String() string {
	switch t {
	case TierCenter:
		return "ctr"
	case TierApproach:
		return "app"
	case TierTower:
		return "twr"
	default:
		return "none"
	}
}

// FillOpacity rises with specificity so smaller zones stay visible on top.
func (t Tier) FillOpacity() float64 {
	switch t {
	case TierCenter:
		return 0.35
	case TierApproach:
		return 0.40
	case TierTower:
		return 0.45
	default:
		return 0
	}
}

// ZoneBuilder redraws all coverage circles on every rebuild.
// Not safe for concurrent use; Tracker serializes access.
type ZoneBuilder struct {
	display Display
	handles []Handle
	counts  map[Tier]int
}

// NewZoneBuilder creates a builder drawing onto display.
func NewZoneBuilder(display Display) *ZoneBuilder {
	return &ZoneBuilder{display: display, counts: make(map[Tier]int)}
}

// Rebuild discards every previously drawn zone and draws the given controllers,
// tier by tier. Controllers without a visual range or frequency, or with a
// non-positive radius, are skipped. It returns the number of zones drawn.
func (z *ZoneBuilder) Rebuild(controllers []vatsim.Controller) int {
	z.Clear()

	for _, tier := range drawOrder {
		for _, c := range controllers {
			if Classify(c.Callsign) != tier {
				continue
			}
			if c.VisualRange == 0 || c.Frequency == "" {
				continue
			}
			radius := c.RadiusMeters()
			if radius <= 0 {
				continue
			}
			h := z.display.DrawCircle(Circle{
				ID:           c.Callsign,
				Center:       c.Position(),
				RadiusMeters: radius,
				Tier:         tier,
				Color:        zoneColor,
				FillColor:    zoneFillColor,
				FillOpacity:  tier.FillOpacity(),
				Popup:        zonePopup(c),
			})
			z.handles = append(z.handles, h)
			z.counts[tier]++
		}
	}
	return len(z.handles)
}

// Clear removes every drawn zone.
func (z *ZoneBuilder) Clear() {
	for _, h := range z.handles {
		z.display.Remove(h)
	}
	z.handles = z.handles[:0]
	clear(z.counts)
}

// Len is the number of zones currently drawn.
func (z *ZoneBuilder) Len() int {
	return len(z.handles)
}

// Count is the number of zones currently drawn for tier.
func (z *ZoneBuilder) Count(t Tier) int {
	return z.counts[t]
}
