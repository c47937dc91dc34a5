package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/vatscope/internal/tracker"
	"github.com/unklstewy/vatscope/pkg/geo"
	"github.com/unklstewy/vatscope/pkg/vatsim"
)

const (
	refreshInterval = 500 * time.Millisecond
	lookupTimeout   = 15 * time.Second
	infoWidth       = 42
)

// radarTracker is the part of tracker.Tracker the model drives.
type radarTracker interface {
	Stats() tracker.Stats
	Search(ctx context.Context, callsign string) (tracker.SearchResult, error)
	AirportInfo(ctx context.Context, icao string) (tracker.AirportInfo, error)
}

type tickMsg time.Time

type searchMsg struct {
	query  string
	result tracker.SearchResult
	err    error
}

type airportMsg struct {
	query string
	info  tracker.AirportInfo
	err   error
}

type model struct {
	display *termDisplay
	tracker radarTracker

	home    geo.Point
	center  geo.Point
	rangeNM float64
	viewSeq uint64

	width  int
	height int

	frame    scene
	stats    tracker.Stats
	selected string
	airport  *tracker.AirportInfo

	inputMode   string // "", "search" or "airport"
	inputBuffer string
	err         error
}

func newModel(display *termDisplay, tr radarTracker, center geo.Point, rangeNM float64) model {
	return model{
		display: display,
		tracker: tr,
		home:    center,
		center:  center,
		rangeNM: clampRange(rangeNM),
		width:   120,
		height:  40,
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.inputMode != "" {
			return m.updateInput(msg)
		}

		if m.err != nil {
			m.err = nil
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "/", "s":
			m.inputMode = "search"
			m.inputBuffer = ""
		case "a":
			m.inputMode = "airport"
			m.inputBuffer = ""
		case "+", "=":
			m.rangeNM = clampRange(m.rangeNM * 1.5)
		case "-", "_":
			m.rangeNM = clampRange(m.rangeNM / 1.5)
		case "h":
			m.center = m.home
		case "esc":
			m.selected = ""
			m.airport = nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.refresh()
		return m, tick()

	case searchMsg:
		if msg.err != nil {
			m.err = lookupError("callsign", msg.query, msg.err)
			return m, nil
		}
		m.selected = msg.result.Pilot.Callsign
		m.airport = nil
		m.refresh()

	case airportMsg:
		if msg.err != nil {
			m.err = lookupError("airport", msg.query, msg.err)
			return m, nil
		}
		info := msg.info
		m.airport = &info
		m.refresh()
	}

	return m, nil
}

func (m model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		query := strings.ToUpper(strings.TrimSpace(m.inputBuffer))
		mode := m.inputMode
		m.inputMode = ""
		m.inputBuffer = ""
		if query == "" {
			return m, nil
		}
		if mode == "airport" {
			return m, m.lookupAirport(query)
		}
		return m, m.search(query)
	case "esc":
		m.inputMode = ""
		m.inputBuffer = ""
	case "backspace":
		if len(m.inputBuffer) > 0 {
			m.inputBuffer = m.inputBuffer[:len(m.inputBuffer)-1]
		}
	default:
		if msg.Type == tea.KeyRunes {
			m.inputBuffer += string(msg.Runes)
		}
	}
	return m, nil
}

// refresh copies the display and adopts a view change requested by the
// tracker since the last frame.
func (m *model) refresh() {
	m.frame = m.display.snapshot()
	m.stats = m.tracker.Stats()
	if v := m.frame.view; v.seq != m.viewSeq {
		m.viewSeq = v.seq
		m.center = v.center
		m.rangeNM = v.rangeNM
	}
}

func (m model) search(callsign string) tea.Cmd {
	tr := m.tracker
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
		defer cancel()
		res, err := tr.Search(ctx, callsign)
		return searchMsg{query: callsign, result: res, err: err}
	}
}

func (m model) lookupAirport(icao string) tea.Cmd {
	tr := m.tracker
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
		defer cancel()
		info, err := tr.AirportInfo(ctx, icao)
		return airportMsg{query: icao, info: info, err: err}
	}
}

func lookupError(kind, query string, err error) error {
	if errors.Is(err, tracker.ErrNotFound) {
		return fmt.Errorf("%s %s not found", kind, query)
	}
	return fmt.Errorf("%s %s: %w", kind, query, err)
}

// radarSize is the drawable area left of the info panel.
func (m model) radarSize() (int, int) {
	return max(40, m.width-infoWidth-4), max(16, m.height-5)
}

func (m model) View() string {
	var s strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)
	s.WriteString(titleStyle.Render("VATSCOPE RADAR"))
	s.WriteString("\n\n")

	w, h := m.radarSize()
	radar := renderRadar(m.frame, scope{center: m.center, rangeNM: m.rangeNM, width: w, height: h}, m.selected)
	info := lipgloss.NewStyle().Width(infoWidth).PaddingLeft(2).Render(m.renderInfo())
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, radar, info))
	s.WriteString("\n")

	switch {
	case m.inputMode != "":
		prompt := "Callsign: "
		if m.inputMode == "airport" {
			prompt = "Airport ICAO: "
		}
		s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true).Render(prompt))
		s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Render(m.inputBuffer + "_"))
	case m.err != nil:
		s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("Error: " + m.err.Error()))
	case m.frame.notice != nil && time.Now().Before(m.frame.notice.Expires):
		s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Render(m.frame.notice.Message))
	}
	return s.String()
}

// renderInfo renders the side panel.
func (m model) renderInfo() string {
	var info strings.Builder

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	info.WriteString(headerStyle.Render("NETWORK"))
	info.WriteString("\n")
	fmt.Fprintf(&info, "Pilots: %d  Controllers: %d\n", m.stats.Pilots, m.stats.Controllers)
	fmt.Fprintf(&info, "Zones: %d  Feed: %s\n", m.stats.Zones, m.stats.State)
	if !m.stats.UpdatedAt.IsZero() {
		info.WriteString(dimStyle.Render("Updated " + m.stats.UpdatedAt.Local().Format("15:04:05")))
		info.WriteString("\n")
	}
	info.WriteString("\n")

	info.WriteString(headerStyle.Render("SCOPE"))
	info.WriteString("\n")
	fmt.Fprintf(&info, "Range: %.0f NM\n", m.rangeNM)
	fmt.Fprintf(&info, "Center: %.4f°, %.4f°\n", m.center.Latitude, m.center.Longitude)
	info.WriteString("\n")

	if p := m.frame.popup; p != nil {
		info.WriteString(renderPopup(*p, headerStyle, dimStyle))
		info.WriteString("\n")
	}

	if a := m.airport; a != nil {
		info.WriteString(renderAirport(*a, headerStyle, dimStyle))
		info.WriteString("\n")
	}

	info.WriteString(helpStyle.Render("/: Search  A: Airport  +/-: Range"))
	info.WriteString("\n")
	info.WriteString(helpStyle.Render("H: Home  ESC: Clear  Q: Quit"))
	return info.String()
}

func renderPopup(p tracker.Popup, header, dim lipgloss.Style) string {
	var b strings.Builder
	b.WriteString(header.Render(p.Title))
	b.WriteString("\n")
	for _, line := range p.Lines {
		fmt.Fprintf(&b, "%s: %s\n", dim.Render(line.Label), truncate(line.Value, infoWidth-len(line.Label)-4))
	}
	if p.Progress != nil {
		b.WriteString(progressBar(*p.Progress, 20))
		b.WriteString("\n")
	}
	if p.Footer != "" {
		b.WriteString(dim.Render(p.Footer))
		b.WriteString("\n")
	}
	return b.String()
}

func renderAirport(a tracker.AirportInfo, header, dim lipgloss.Style) string {
	var b strings.Builder
	b.WriteString(header.Render(a.ICAO))
	b.WriteString("\n")
	if a.METAR != "" {
		b.WriteString(dim.Render(truncate(a.METAR, infoWidth-2)))
		b.WriteString("\n")
	}
	for _, c := range a.Controllers {
		fmt.Fprintf(&b, "%-12s %s\n", c.Callsign, c.Frequency)
	}
	fmt.Fprintf(&b, "Inbound: %d  Outbound: %d\n", len(a.Inbound), len(a.Outbound))
	for _, p := range a.Inbound {
		fmt.Fprintf(&b, "  ↓ %-9s %s\n", p.Callsign, vatsim.FormatAltitude(p.Altitude))
	}
	for _, p := range a.Outbound {
		fmt.Fprintf(&b, "  ↑ %-9s %s\n", p.Callsign, vatsim.FormatAltitude(p.Altitude))
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
