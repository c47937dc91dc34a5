// Command vatscope-server polls the VATSIM feed and streams the live map to
// browser clients over WebSocket, with a small REST API beside it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/unklstewy/vatscope/internal/admin"
	"github.com/unklstewy/vatscope/internal/airports"
	"github.com/unklstewy/vatscope/internal/auth"
	"github.com/unklstewy/vatscope/internal/db"
	"github.com/unklstewy/vatscope/internal/hub"
	"github.com/unklstewy/vatscope/internal/logging"
	"github.com/unklstewy/vatscope/internal/server"
	"github.com/unklstewy/vatscope/internal/supervisor"
	"github.com/unklstewy/vatscope/internal/tracker"
	"github.com/unklstewy/vatscope/pkg/config"
	"github.com/unklstewy/vatscope/pkg/vatsim"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	closer := logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Caller:     cfg.Logging.Caller,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer closer.Close()

	if err := run(cfg); err != nil {
		logging.Error().Err(err).Msg("Server stopped")
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	log := logging.Component("main")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	src, err := airports.FromConfig(ctx, cfg, logging.Component("airports"))
	if err != nil {
		return err
	}
	defer src.Close()

	var weather tracker.WeatherSource
	if src.Weather != nil {
		weather = src.Weather
	}

	visitors := admin.NewVisitors(cfg.Admin.HistoryWindow, cfg.Admin.SampleInterval)
	h := hub.New(hub.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		Sessions:       visitors,
		Logger:         logging.Component("hub"),
	})
	scene := hub.NewScene(h)

	trackerLog := logging.Logger()
	tr := tracker.New(scene,
		vatsim.NewClient(cfg.Feed.URL, cfg.Feed.Timeout),
		src.Chain,
		tracker.ConfigFromFeed(cfg.Feed, weather, &trackerLog),
	)
	unsubscribe := tr.Subscribe(func(st tracker.Stats) {
		h.BroadcastJSON(hub.TypeStats, st)
	})
	defer unsubscribe()

	var authService *auth.Service
	if cfg.Admin.Enabled {
		authService = auth.NewService(auth.Config{
			PasswordHash:  cfg.Admin.PasswordHash,
			JWTSecret:     cfg.Admin.JWTSecret,
			TokenDuration: cfg.Admin.TokenTTL,
			BCryptCost:    cfg.Admin.BCryptCost,
		})
	}

	opts := server.Options{
		Config:   cfg.Server,
		Map:      cfg.Map,
		Tracker:  tr,
		WS:       http.HandlerFunc(h.ServeWS),
		Auth:     authService,
		Visitors: visitors,
		Activity: admin.NewActivityLog(cfg.Admin.ActivityLogSize),
		Logger:   logging.Component("http"),
	}
	if src.DB != nil {
		opts.Airports = db.NewAirportRepository(src.DB)
	}
	srv := server.New(opts)

	tree := supervisor.New(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddFeedService(tr)
	tree.AddServingService(h)
	tree.AddServingService(visitors)
	tree.AddServingService(srv)

	log.Info().
		Str("addr", cfg.Server.Addr()).
		Str("feed", cfg.Feed.URL).
		Dur("poll_interval", cfg.Feed.PollInterval).
		Bool("admin", cfg.Admin.Enabled).
		Bool("airport_db", src.DB != nil).
		Msg("Starting vatscope server")

	err = tree.Serve(ctx)

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			log.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("Shutdown complete")
	return nil
}
