package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/vatscope/internal/tracker"
	"github.com/unklstewy/vatscope/pkg/geo"
	"github.com/unklstewy/vatscope/pkg/vatsim"
)

// Terminal characters are roughly twice as tall as they are wide, so X
// distances are stretched by 1/aspectRatio to keep circles round.
const aspectRatio = 0.5

// Draw layers. A cell is only overwritten by an equal or higher layer.
const (
	layerRing = iota + 1
	layerZone
	layerRoute
	layerLabel
	layerMarker
	layerSelected
)

var (
	borderColor   = lipgloss.Color("240")
	ringColor     = lipgloss.Color("238")
	ringTextColor = lipgloss.Color("244")
	centerColor   = lipgloss.Color("208")
	labelColor    = lipgloss.Color("226")
	selectedColor = lipgloss.Color("226")
	vectorColor   = lipgloss.Color("39")

	markerColors = map[string]lipgloss.Color{
		vatsim.SizeSmall:  lipgloss.Color("117"),
		vatsim.SizeMedium: lipgloss.Color("75"),
		vatsim.SizeLarge:  lipgloss.Color("33"),
	}
	markerGlyphs = map[string]rune{
		vatsim.SizeSmall:  '·',
		vatsim.SizeMedium: '○',
		vatsim.SizeLarge:  '◎',
	}
	zoneColors = map[tracker.Tier]lipgloss.Color{
		tracker.TierCenter:   lipgloss.Color("22"),
		tracker.TierApproach: lipgloss.Color("28"),
		tracker.TierTower:    lipgloss.Color("34"),
	}
)

// scope maps geographic positions onto a character grid of width x height,
// centered on center with rangeNM from center to the nearest edge.
type scope struct {
	center  geo.Point
	rangeNM float64
	width   int
	height  int
}

// radius is the screen radius of rangeNM, in rows.
func (s scope) radius() float64 {
	ry := float64(s.height/2 - 1)
	rx := float64(s.width/2-1) * aspectRatio
	return math.Max(1, math.Min(rx, ry))
}

func (s scope) scale() float64 {
	return s.radius() / s.rangeNM
}

func (s scope) origin() (int, int) {
	return s.width / 2, s.height / 2
}

// projectF returns unclipped screen coordinates for p using an azimuthal
// projection around the center. Bearing 0 is up.
func (s scope) projectF(p geo.Point) (float64, float64) {
	dist := geo.DistanceNauticalMiles(s.center, p) * s.scale()
	rad := geo.Bearing(s.center, p) * math.Pi / 180
	cx, cy := s.origin()
	return float64(cx) + dist*math.Sin(rad)/aspectRatio, float64(cy) - dist*math.Cos(rad)
}

// project returns the cell for p, or ok=false when it is off screen.
func (s scope) project(p geo.Point) (x, y int, ok bool) {
	fx, fy := s.projectF(p)
	x, y = int(math.Round(fx)), int(math.Round(fy))
	return x, y, x >= 0 && x < s.width && y >= 0 && y < s.height
}

type cell struct {
	ch    rune
	color lipgloss.Color
	bold  bool
	layer int
}

type canvas struct {
	width  int
	height int
	cells  [][]cell
}

func newCanvas(width, height int) *canvas {
	c := &canvas{width: width, height: height, cells: make([][]cell, height)}
	for y := range c.cells {
		c.cells[y] = make([]cell, width)
		for x := range c.cells[y] {
			c.cells[y][x].ch = ' '
		}
	}
	return c
}

func (c *canvas) set(x, y int, ch rune, color lipgloss.Color, layer int) {
	if x < 0 || x >= c.width || y < 0 || y >= c.height {
		return
	}
	if c.cells[y][x].layer > layer {
		return
	}
	c.cells[y][x] = cell{ch: ch, color: color, layer: layer, bold: layer >= layerMarker}
}

func (c *canvas) text(x, y int, s string, color lipgloss.Color, layer int) {
	for i, ch := range []rune(s) {
		c.set(x+i, y, ch, color, layer)
	}
}

// render draws the canvas inside a border, styling runs of equal color once.
func (c *canvas) render() string {
	border := lipgloss.NewStyle().Foreground(borderColor)
	var b strings.Builder
	b.WriteString(border.Render("┌" + strings.Repeat("─", c.width) + "┐"))
	b.WriteString("\n")
	for _, row := range c.cells {
		b.WriteString(border.Render("│"))
		for x := 0; x < len(row); {
			start := x
			var run strings.Builder
			for x < len(row) && row[x].color == row[start].color && row[x].bold == row[start].bold {
				run.WriteRune(row[x].ch)
				x++
			}
			if row[start].color == "" {
				b.WriteString(run.String())
				continue
			}
			b.WriteString(lipgloss.NewStyle().Foreground(row[start].color).Bold(row[start].bold).Render(run.String()))
		}
		b.WriteString(border.Render("│"))
		b.WriteString("\n")
	}
	b.WriteString(border.Render("└" + strings.Repeat("─", c.width) + "┘"))
	return b.String()
}

// ringIntervals are tried in order until one gives two to five rings.
var ringIntervals = []float64{5, 10, 25, 50, 100, 250, 500, 1000}

func ringDistances(rangeNM float64) []float64 {
	for _, interval := range ringIntervals {
		if rangeNM/interval > 5 {
			continue
		}
		var out []float64
		for d := interval; d <= rangeNM; d += interval {
			out = append(out, d)
		}
		return out
	}
	return []float64{rangeNM}
}

func ringLabel(nm float64) string {
	if nm >= 1000 {
		return fmt.Sprintf("%gk", nm/1000)
	}
	return fmt.Sprintf("%.0f", nm)
}

// renderRadar draws one frame of sc. selected is the callsign whose label
// and heading vector are shown.
func renderRadar(sc scene, s scope, selected string) string {
	c := newCanvas(s.width, s.height)
	cx, cy := s.origin()
	scale := s.scale()

	for _, d := range ringDistances(s.rangeNM) {
		r := int(d * scale)
		drawCircle(c, cx, cy, r, '·', ringColor, layerRing)
		label := ringLabel(d)
		c.text(cx-len(label)/2, cy-r, label, ringTextColor, layerRing)
	}

	r := s.radius()
	c.set(cx, cy-int(r), 'N', ringTextColor, layerLabel)
	c.set(cx, cy+int(r), 'S', ringTextColor, layerLabel)
	c.set(cx+int(r/aspectRatio), cy, 'E', ringTextColor, layerLabel)
	c.set(cx-int(r/aspectRatio), cy, 'W', ringTextColor, layerLabel)

	for _, z := range sc.circles {
		x, y := s.projectF(z.Center)
		radius := int(geo.MetersToNauticalMiles(z.RadiusMeters) * scale)
		if radius > 4*(s.width+s.height) {
			continue
		}
		color, ok := zoneColors[z.Tier]
		if !ok {
			color = lipgloss.Color(z.Color)
		}
		zx, zy := int(math.Round(x)), int(math.Round(y))
		drawCircle(c, zx, zy, radius, '∘', color, layerZone)
		c.text(zx-len(z.ID)/2, zy-radius, z.ID, color, layerZone)
	}

	for _, pl := range sc.polylines {
		for i := 1; i < len(pl.Points); i++ {
			drawLine(c, s, pl.Points[i-1], pl.Points[i], lipgloss.Color(pl.Color), pl.Dashed)
		}
	}

	c.set(cx, cy, '+', centerColor, layerLabel)

	for _, m := range sc.markers {
		x, y, ok := s.project(m.Position)
		if !ok {
			continue
		}
		if m.ID == selected {
			drawVelocityVector(c, s, m.Position, m.Rotation)
			c.set(x, y, '●', selectedColor, layerSelected)
			c.text(x+2, y, m.ID, labelColor, layerLabel)
			continue
		}
		glyph, ok := markerGlyphs[m.Size]
		if !ok {
			glyph = '○'
		}
		c.set(x, y, glyph, markerColors[m.Size], layerMarker)
	}

	return c.render()
}

// drawCircle draws a circle using Bresenham's algorithm, with the aspect
// ratio correction applied to X.
func drawCircle(c *canvas, cx, cy, radius int, ch rune, color lipgloss.Color, layer int) {
	if radius <= 0 {
		return
	}
	x, y, e := radius, 0, 0
	for x >= y {
		xs := int(float64(x) / aspectRatio)
		ys := int(float64(y) / aspectRatio)

		c.set(cx+xs, cy+y, ch, color, layer)
		c.set(cx+ys, cy+x, ch, color, layer)
		c.set(cx-ys, cy+x, ch, color, layer)
		c.set(cx-xs, cy+y, ch, color, layer)
		c.set(cx-xs, cy-y, ch, color, layer)
		c.set(cx-ys, cy-x, ch, color, layer)
		c.set(cx+ys, cy-x, ch, color, layer)
		c.set(cx+xs, cy-y, ch, color, layer)

		y++
		e += 1 + 2*y
		if 2*(e-x)+1 > 0 {
			x--
			e += 1 - 2*x
		}
	}
}

// drawLine draws the great circle between two positions as short straight
// pieces. Dashed lines skip every other pair of cells.
func drawLine(c *canvas, s scope, from, to geo.Point, color lipgloss.Color, dashed bool) {
	pieces := int(geo.DistanceNauticalMiles(from, to) / (s.rangeNM / 8))
	pieces = max(1, min(pieces, 64))

	cells := 0
	prev := from
	for i := 1; i <= pieces; i++ {
		next := geo.Interpolate(from, to, float64(i)/float64(pieces))
		cells = drawSegment(c, s, prev, next, color, dashed, cells)
		prev = next
	}
}

// drawSegment draws a straight screen segment and returns the running cell
// count used for the dash pattern.
func drawSegment(c *canvas, s scope, from, to geo.Point, color lipgloss.Color, dashed bool, cells int) int {
	x0, y0 := s.projectF(from)
	x1, y1 := s.projectF(to)
	dx, dy := x1-x0, y1-y0

	steps := int(math.Ceil(math.Max(math.Abs(dx), math.Abs(dy))))
	if steps == 0 {
		return cells
	}
	if limit := 4 * (s.width + s.height); steps > limit {
		steps = limit
	}

	ch := lineGlyph(dx, dy)
	for i := 0; i < steps; i++ {
		cells++
		if dashed && (cells/2)%2 == 1 {
			continue
		}
		t := float64(i) / float64(steps)
		c.set(int(math.Round(x0+t*dx)), int(math.Round(y0+t*dy)), ch, color, layerRoute)
	}
	return cells
}

// lineGlyph picks a character matching the on-screen slope.
func lineGlyph(dx, dy float64) rune {
	angle := math.Atan2(-dy*2, dx) * 180 / math.Pi
	if angle < 0 {
		angle += 180
	}
	switch {
	case angle < 22.5 || angle >= 157.5:
		return '─'
	case angle < 67.5:
		return '╱'
	case angle < 112.5:
		return '│'
	default:
		return '╲'
	}
}

// drawVelocityVector points from the marker along heading for a twelfth of
// the range.
func drawVelocityVector(c *canvas, s scope, from geo.Point, heading float64) {
	x0, y0 := s.projectF(from)
	x1, y1 := s.projectF(geo.Destination(from, heading, s.rangeNM/12))
	steps := int(math.Ceil(math.Max(math.Abs(x1-x0), math.Abs(y1-y0))))
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		ch := '-'
		if i == steps {
			ch = '•'
		}
		c.set(int(math.Round(x0+t*(x1-x0))), int(math.Round(y0+t*(y1-y0))), ch, vectorColor, layerLabel)
	}
}

// progressBar renders pct as a bar of width cells. pct may fall outside 0..100.
func progressBar(pct, width int) string {
	filled := width * max(0, min(pct, 100)) / 100
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + fmt.Sprintf("] %d%%", pct)
}
