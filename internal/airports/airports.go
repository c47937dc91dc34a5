// Package airports resolves airport identifiers to coordinates and fetches
// airport weather. Sources are chained: a local Postgres reference table when
// configured, then the VATSIM airport API.
package airports

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/unklstewy/vatscope/internal/db"
	"github.com/unklstewy/vatscope/internal/metrics"
	"github.com/unklstewy/vatscope/pkg/geo"
)

// ErrAirportNotFound means no source knows the identifier.
var ErrAirportNotFound = errors.New("airport not found")

// Locator resolves an airport identifier to coordinates.
type Locator interface {
	Locate(ctx context.Context, icao string) (geo.Point, error)
}

func normalize(icao string) string {
	return strings.ToUpper(strings.TrimSpace(icao))
}

// Chain tries each locator in order and returns the first answer.
type Chain struct {
	locators []Locator
	log      zerolog.Logger
}

// NewChain creates a chain over locators, skipping nil entries.
func NewChain(log zerolog.Logger, locators ...Locator) *Chain {
	c := &Chain{log: log}
	for _, l := range locators {
		if l != nil {
			c.locators = append(c.locators, l)
		}
	}
	return c
}

// Locate returns the first successful lookup. If every source fails, the
// errors are joined; ErrAirportNotFound matches only if some source said so.
func (c *Chain) Locate(ctx context.Context, icao string) (geo.Point, error) {
	icao = normalize(icao)
	if icao == "" {
		return geo.Point{}, fmt.Errorf("empty identifier: %w", ErrAirportNotFound)
	}

	var errs []error
	for _, l := range c.locators {
		p, err := l.Locate(ctx, icao)
		if err == nil {
			return p, nil
		}
		if ctx.Err() != nil {
			return geo.Point{}, ctx.Err()
		}
		if !errors.Is(err, ErrAirportNotFound) {
			c.log.Debug().Err(err).Str("icao", icao).Msg("Airport source failed, trying next")
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return geo.Point{}, fmt.Errorf("%s: no sources: %w", icao, ErrAirportNotFound)
	}
	return geo.Point{}, fmt.Errorf("%s: %w", icao, errors.Join(errs...))
}

// AirportStore is the subset of db.AirportRepository used for lookups.
type AirportStore interface {
	GetByICAO(ctx context.Context, icao string) (*db.Airport, error)
}

// DBLocator resolves airports from the reference table.
type DBLocator struct {
	store AirportStore
}

// NewDBLocator creates a locator over store.
func NewDBLocator(store AirportStore) *DBLocator {
	return &DBLocator{store: store}
}

func (l *DBLocator) Locate(ctx context.Context, icao string) (geo.Point, error) {
	a, err := l.store.GetByICAO(ctx, normalize(icao))
	if err != nil {
		metrics.RecordAirportLookup("database", err)
		return geo.Point{}, fmt.Errorf("database: %w", err)
	}
	if a == nil {
		metrics.RecordAirportLookup("database", ErrAirportNotFound)
		return geo.Point{}, fmt.Errorf("database: %w", ErrAirportNotFound)
	}
	metrics.RecordAirportLookup("database", nil)
	return geo.Point{Latitude: a.Latitude, Longitude: a.Longitude}, nil
}
