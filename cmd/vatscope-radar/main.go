// Command vatscope-radar shows live VATSIM traffic on a terminal radar scope.
//
// It runs the same tracker as vatscope-server, drawing onto the terminal
// instead of browser clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/unklstewy/vatscope/internal/airports"
	"github.com/unklstewy/vatscope/internal/logging"
	"github.com/unklstewy/vatscope/internal/tracker"
	"github.com/unklstewy/vatscope/pkg/config"
	"github.com/unklstewy/vatscope/pkg/geo"
	"github.com/unklstewy/vatscope/pkg/vatsim"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	rangeNM := flag.Float64("range", 0, "Initial radar range in NM (overrides radar.range_nm)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *rangeNM > 0 {
		cfg.Radar.RangeNM = *rangeNM
	}

	// The terminal belongs to the scope; logs only go to logging.file.
	closer := logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     "json",
		Caller:     cfg.Logging.Caller,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
		Output:     io.Discard,
	})
	defer closer.Close()
	log := logging.Component("radar")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	src, err := airports.FromConfig(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up airport lookups: %v\n", err)
		os.Exit(1)
	}
	defer src.Close()

	var weather tracker.WeatherSource
	if src.Weather != nil {
		weather = src.Weather
	}

	display := newTermDisplay()
	tr := tracker.New(display,
		vatsim.NewClient(cfg.Feed.URL, cfg.Feed.Timeout),
		src.Chain,
		tracker.ConfigFromFeed(cfg.Feed, weather, &log),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := tr.Serve(ctx); err != nil {
			log.Error().Err(err).Msg("Tracker stopped")
		}
	}()

	center := geo.Point{Latitude: cfg.Radar.CenterLat, Longitude: cfg.Radar.CenterLon}
	m := newModel(display, tr, center, cfg.Radar.RangeNM)
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
	}

	cancel()
	<-done
}
