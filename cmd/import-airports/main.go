// Command import-airports loads an OurAirports-style airports.csv into the
// airport reference table used when airports.use_database is set.
//
// Download the file from https://ourairports.com/data/airports.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/unklstewy/vatscope/internal/db"
	"github.com/unklstewy/vatscope/internal/logging"
	"github.com/unklstewy/vatscope/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	csvPath := flag.String("file", "data/airports.csv", "Airports CSV file")
	verify := flag.String("verify", "EGLL,KJFK,EDDF,LFPG,KLAX", "Comma separated ICAO codes to check after import")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log := logging.Component("import")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	file, err := os.Open(*csvPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open airports file")
	}
	defer file.Close()

	airports, skipped, err := db.ParseAirportsCSV(file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *csvPath).Msg("Failed to parse airports file")
	}
	log.Info().Int("rows", len(airports)).Int("skipped", skipped).Msg("Parsed airports file")

	log.Info().Str("dsn", db.Redacted(cfg.Database)).Msg("Connecting to database")
	database, err := db.ReconnectWithRetry(ctx, cfg.Database, 3, 2*time.Second, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	if err := database.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize schema")
	}

	repo := db.NewAirportRepository(database)
	start := time.Now()
	var written, invalid int
	err = db.WithRetry(ctx, func() error {
		var uerr error
		written, invalid, uerr = repo.BulkUpsert(ctx, airports)
		return uerr
	}, 2)
	if err != nil {
		log.Fatal().Err(err).Int("written", written).Msg("Import failed")
	}
	total, err := repo.Count(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to count airports")
	}
	log.Info().
		Int("written", written).
		Int("invalid", invalid).
		Int("table_rows", total).
		Dur("took", time.Since(start)).
		Msg("Import complete")

	var codes []string
	for _, c := range strings.Split(*verify, ",") {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			codes = append(codes, c)
		}
	}
	if len(codes) == 0 {
		return
	}

	found, err := repo.GetMany(ctx, codes)
	if err != nil {
		log.Fatal().Err(err).Msg("Verification query failed")
	}
	missing := 0
	for _, code := range codes {
		a, ok := found[code]
		if !ok {
			missing++
			log.Warn().Str("icao", code).Msg("Not found after import")
			continue
		}
		log.Info().Str("icao", code).Str("name", a.Name).Float64("lat", a.Latitude).Float64("lon", a.Longitude).Msg("Verified")
	}
	if missing > 0 {
		os.Exit(1)
	}
}
