package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Airport is one row of airport reference data.
type Airport struct {
	ICAO        string
	IATA        string
	Name        string
	City        string
	Country     string
	Latitude    float64
	Longitude   float64
	ElevationFt int
	UpdatedAt   time.Time
}

// Validate checks the fields the airports table constrains.
func (a Airport) Validate() error {
	if a.ICAO == "" {
		return errors.New("airport: empty ICAO code")
	}
	if len(a.ICAO) > 8 {
		return fmt.Errorf("airport %s: ICAO code too long", a.ICAO)
	}
	if a.Latitude < -90 || a.Latitude > 90 {
		return fmt.Errorf("airport %s: latitude %f out of range", a.ICAO, a.Latitude)
	}
	if a.Longitude < -180 || a.Longitude > 180 {
		return fmt.Errorf("airport %s: longitude %f out of range", a.ICAO, a.Longitude)
	}
	return nil
}

// AirportRepository handles database operations for airport reference data.
type AirportRepository struct {
	db *DB
}

// NewAirportRepository creates a new airport repository.
func NewAirportRepository(db *DB) *AirportRepository {
	return &AirportRepository{db: db}
}

const airportColumns = `icao, iata, name, city, country, latitude, longitude, elevation_ft, updated_at`

const upsertAirportSQL = `INSERT INTO airports (` + airportColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (icao) DO UPDATE SET
		iata = EXCLUDED.iata,
		name = EXCLUDED.name,
		city = EXCLUDED.city,
		country = EXCLUDED.country,
		latitude = EXCLUDED.latitude,
		longitude = EXCLUDED.longitude,
		elevation_ft = EXCLUDED.elevation_ft,
		updated_at = EXCLUDED.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAirport(row rowScanner) (Airport, error) {
	var a Airport
	err := row.Scan(&a.ICAO, &a.IATA, &a.Name, &a.City, &a.Country,
		&a.Latitude, &a.Longitude, &a.ElevationFt, &a.UpdatedAt)
	return a, err
}

// GetByICAO retrieves an airport by ICAO code. Returns nil, nil when absent.
func (r *AirportRepository) GetByICAO(ctx context.Context, icao string) (*Airport, error) {
	a, err := scanAirport(r.db.QueryRowContext(ctx,
		`SELECT `+airportColumns+` FROM airports WHERE icao = $1`,
		strings.ToUpper(icao),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get airport: %w", err)
	}
	return &a, nil
}

// GetMany retrieves the airports among icaos that exist, keyed by ICAO.
func (r *AirportRepository) GetMany(ctx context.Context, icaos []string) (map[string]Airport, error) {
	codes := make([]string, len(icaos))
	for i, c := range icaos {
		codes[i] = strings.ToUpper(c)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+airportColumns+` FROM airports WHERE icao = ANY($1)`,
		pq.Array(codes),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query airports: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Airport, len(codes))
	for rows.Next() {
		a, err := scanAirport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan airport: %w", err)
		}
		out[a.ICAO] = a
	}
	return out, rows.Err()
}

// Search finds airports whose ICAO, IATA or name starts with query.
func (r *AirportRepository) Search(ctx context.Context, query string, limit int) ([]Airport, error) {
	if limit <= 0 {
		limit = 20
	}
	q := strings.TrimSpace(query)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+airportColumns+` FROM airports
		 WHERE icao LIKE $1 OR iata LIKE $1 OR LOWER(name) LIKE $2
		 ORDER BY icao
		 LIMIT $3`,
		strings.ToUpper(q)+"%", strings.ToLower(q)+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search airports: %w", err)
	}
	defer rows.Close()

	var out []Airport
	for rows.Next() {
		a, err := scanAirport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan airport: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Health checks the connection behind the repository.
func (r *AirportRepository) Health(ctx context.Context) error {
	return HealthCheck(ctx, r.db)
}

// Stats returns table and pool statistics.
func (r *AirportRepository) Stats(ctx context.Context) (map[string]any, error) {
	if r.db == nil {
		return nil, errors.New("database not connected")
	}
	return r.db.GetStats(ctx)
}

// BulkUpsert writes airports in one transaction. Invalid rows are skipped and
// counted; the first database error rolls everything back.
func (r *AirportRepository) BulkUpsert(ctx context.Context, airports []Airport) (written, skipped int, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertAirportSQL)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, a := range airports {
		if a.Validate() != nil {
			skipped++
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			strings.ToUpper(a.ICAO), a.IATA, a.Name, a.City, a.Country,
			a.Latitude, a.Longitude, a.ElevationFt, now,
		); err != nil {
			return 0, 0, fmt.Errorf("failed to upsert airport %s: %w", a.ICAO, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit airports: %w", err)
	}
	return written, skipped, nil
}

// Count returns the number of stored airports.
func (r *AirportRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM airports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count airports: %w", err)
	}
	return n, nil
}
