package airports

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/unklstewy/vatscope/internal/db"
	"github.com/unklstewy/vatscope/pkg/config"
)

// Sources is the airport lookup stack described by a configuration.
type Sources struct {
	// Chain tries the database (when enabled) then the API.
	Chain *Chain
	API   *APIClient

	// Weather is nil when airports.metar_url is empty.
	Weather *METARClient

	// DB is nil unless airports.use_database is set.
	DB *db.DB
}

// FromConfig builds the lookup stack. When the database is used it is
// connected with retries and its schema is created.
func FromConfig(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Sources, error) {
	api, err := NewAPIClient(APIConfig{
		BaseURL:           cfg.Airports.APIURL,
		RequestsPerSecond: cfg.Airports.RequestsPerSecond,
		Burst:             cfg.Airports.Burst,
		CacheSize:         cfg.Airports.CacheSize,
		Timeout:           cfg.Airports.Timeout,
		BreakerFailures:   cfg.Airports.BreakerFailures,
		BreakerTimeout:    cfg.Airports.BreakerTimeout,
	}, log.With().Str("component", "airport-api").Logger())
	if err != nil {
		return nil, err
	}

	s := &Sources{API: api}
	if cfg.Airports.MetarURL != "" {
		s.Weather = NewMETARClient(cfg.Airports.MetarURL, cfg.Airports.Timeout, cfg.Airports.RequestsPerSecond)
	}

	var dbLocator Locator
	if cfg.Airports.UseDatabase && cfg.Database.Enabled {
		database, err := db.ReconnectWithRetry(ctx, cfg.Database, 5, 2*time.Second, log)
		if err != nil {
			return nil, fmt.Errorf("connect airport database: %w", err)
		}
		if err := database.InitSchema(ctx); err != nil {
			database.Close()
			return nil, fmt.Errorf("init airport schema: %w", err)
		}
		s.DB = database
		dbLocator = NewDBLocator(db.NewAirportRepository(database))
	}

	s.Chain = NewChain(log.With().Str("component", "airports").Logger(), dbLocator, api)
	return s, nil
}

// Close releases the database connection, if any.
func (s *Sources) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
