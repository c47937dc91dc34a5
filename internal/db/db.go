package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/unklstewy/vatscope/pkg/config"
)

//go:embed schema.sql
var schemaSQL embed.FS

// DB wraps a database connection with helper methods.
type DB struct {
	*sql.DB
	config config.DatabaseConfig
}

// connString builds a lib/pq keyword/value DSN. Values are quoted so
// passwords with spaces or quotes survive.
func connString(cfg config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quoteDSN(cfg.Host),
		cfg.Port,
		quoteDSN(cfg.Username),
		quoteDSN(cfg.Password),
		quoteDSN(cfg.Database),
		quoteDSN(cfg.SSLMode),
	)
}

func quoteDSN(v string) string {
	if v == "" {
		return "''"
	}
	out := make([]byte, 0, len(v)+2)
	needQuote := false
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case ' ', '\t':
			needQuote = true
		case '\'', '\\':
			needQuote = true
			out = append(out, '\\')
		}
		out = append(out, v[i])
	}
	if !needQuote {
		return v
	}
	return "'" + string(out) + "'"
}

// Redacted returns the DSN as a URL with the password masked, for logs.
func Redacted(cfg config.DatabaseConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, "xxxxx"),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.Database,
		RawQuery: "sslmode=" + cfg.SSLMode,
	}
	return u.Redacted()
}

// Connect establishes a connection to the PostgreSQL database.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	sqlDB, err := sql.Open("postgres", connString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB, config: cfg}, nil
}

// InitSchema creates the airport tables if they do not exist.
func (db *DB) InitSchema(ctx context.Context) error {
	schemaBytes, err := schemaSQL.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	if _, err := db.ExecContext(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// GetStats returns database statistics.
func (db *DB) GetStats(ctx context.Context) (map[string]any, error) {
	stats := make(map[string]any)

	var airportCount int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM airports`).Scan(&airportCount)
	if err != nil {
		return nil, err
	}
	stats["airports"] = airportCount

	var lastUpdate sql.NullTime
	err = db.QueryRowContext(ctx, `SELECT MAX(updated_at) FROM airports`).Scan(&lastUpdate)
	if err != nil {
		return nil, err
	}
	if lastUpdate.Valid {
		stats["last_import"] = lastUpdate.Time.UTC()
	}

	pool := db.Stats()
	stats["open_connections"] = pool.OpenConnections
	stats["in_use"] = pool.InUse

	return stats, nil
}
