package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides.
// VATSCOPE_SERVER__PORT overrides server.port.
const EnvPrefix = "VATSCOPE_"

// PathEnvVar can point Load at a config file when no path is given.
const PathEnvVar = "VATSCOPE_CONFIG"

// DefaultPaths are searched in order when neither a path nor PathEnvVar is set.
var DefaultPaths = []string{
	"vatscope.yaml",
	"vatscope.yml",
	"configs/vatscope.yaml",
	"/etc/vatscope/vatscope.yaml",
}

// Config represents the complete application configuration.
type Config struct {
	Feed     FeedConfig     `koanf:"feed"`
	Airports AirportsConfig `koanf:"airports"`
	Database DatabaseConfig `koanf:"database"`
	Server   ServerConfig   `koanf:"server"`
	Admin    AdminConfig    `koanf:"admin"`
	Map      MapConfig      `koanf:"map"`
	Radar    RadarConfig    `koanf:"radar"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// FeedConfig controls polling of the VATSIM data feed.
type FeedConfig struct {
	// URL is the v3 data feed (default: https://data.vatsim.net/v3/vatsim-data.json)
	URL string `koanf:"url" validate:"required,url"`

	// PollInterval is the fixed poll period (default: 3s)
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`

	// MaxRetries is the number of extra attempts per poll (default: 3)
	MaxRetries int `koanf:"max_retries" validate:"gte=0,lte=10"`

	// RetryDelay is the fixed wait between attempts (default: 1s)
	RetryDelay time.Duration `koanf:"retry_delay" validate:"gte=0"`

	// Timeout bounds a single feed request (default: 10s)
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// NoticeTTL is how long a user-visible notice stays up (default: 4.5s)
	NoticeTTL time.Duration `koanf:"notice_ttl" validate:"gt=0"`
}

// AirportsConfig configures airport coordinate and weather lookups.
type AirportsConfig struct {
	// APIURL is the VATSIM airport API base (default: https://api.vatsim.net/api)
	APIURL string `koanf:"api_url" validate:"required,url"`

	// MetarURL is the METAR text service; empty disables weather
	MetarURL string `koanf:"metar_url" validate:"omitempty,url"`

	// RequestsPerSecond throttles calls to the airport API
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gt=0"`

	// Burst is the token bucket size for the airport API
	Burst int `koanf:"burst" validate:"gte=1"`

	// CacheSize is the number of resolved airports kept in memory
	CacheSize int `koanf:"cache_size" validate:"gte=1"`

	// Timeout bounds a single airport API request
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// BreakerFailures is the consecutive failure count that opens the circuit
	BreakerFailures uint32 `koanf:"breaker_failures" validate:"gte=1"`

	// BreakerTimeout is how long the circuit stays open before probing
	BreakerTimeout time.Duration `koanf:"breaker_timeout" validate:"gt=0"`

	// UseDatabase consults the Postgres airport reference table first
	UseDatabase bool `koanf:"use_database"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	// Enabled turns on the Postgres airport reference store
	Enabled bool `koanf:"enabled"`

	// Host is the database server hostname
	Host string `koanf:"host" validate:"required_if=Enabled true"`

	// Port is the database server port
	Port int `koanf:"port" validate:"gte=1,lte=65535"`

	// Database is the database name
	Database string `koanf:"database" validate:"required_if=Enabled true"`

	// Username for database authentication
	Username string `koanf:"username"`

	// Password for database authentication (set via VATSCOPE_DATABASE__PASSWORD)
	Password string `koanf:"password"`

	// SSLMode for PostgreSQL connections
	SSLMode string `koanf:"ssl_mode" validate:"oneof=disable require verify-ca verify-full"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `koanf:"max_open_conns" validate:"gte=1"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `koanf:"max_idle_conns" validate:"gte=0,ltefield=MaxOpenConns"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Host is the server bind address (default: "0.0.0.0")
	Host string `koanf:"host"`

	// Port is the HTTP server port (default: 8080)
	Port string `koanf:"port" validate:"required,numeric"`

	// CORSOrigins lists allowed browser origins
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitPerMinute limits API requests per client IP; 0 disables
	RateLimitPerMinute int `koanf:"rate_limit_per_minute" validate:"gte=0"`

	// StaticDir serves the browser client when set
	StaticDir string `koanf:"static_dir"`

	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// AdminConfig gates the visitor dashboard.
type AdminConfig struct {
	// Enabled exposes the admin API
	Enabled bool `koanf:"enabled"`

	// PasswordHash is a bcrypt hash of the admin password
	PasswordHash string `koanf:"password_hash" validate:"required_if=Enabled true"`

	// JWTSecret signs admin session tokens
	JWTSecret string `koanf:"jwt_secret" validate:"required_if=Enabled true"`

	// TokenTTL is the lifetime of an admin session token
	TokenTTL time.Duration `koanf:"token_ttl" validate:"gt=0"`

	// BCryptCost is used when hashing new passwords
	BCryptCost int `koanf:"bcrypt_cost" validate:"gte=4,lte=31"`

	// ActivityLogSize caps the admin activity log
	ActivityLogSize int `koanf:"activity_log_size" validate:"gte=1"`

	// HistoryWindow is how far back visitor history is kept
	HistoryWindow time.Duration `koanf:"history_window" validate:"gt=0"`

	// SampleInterval is the visitor history resolution
	SampleInterval time.Duration `koanf:"sample_interval" validate:"gt=0"`
}

// MapConfig is sent to browser clients to configure the tile map.
type MapConfig struct {
	CenterLat   float64 `koanf:"center_lat" json:"center_lat" validate:"latitude"`
	CenterLon   float64 `koanf:"center_lon" json:"center_lon" validate:"longitude"`
	Zoom        int     `koanf:"zoom" json:"zoom" validate:"gtefield=MinZoom,ltefield=MaxZoom"`
	MinZoom     int     `koanf:"min_zoom" json:"min_zoom" validate:"gte=0"`
	MaxZoom     int     `koanf:"max_zoom" json:"max_zoom" validate:"gtefield=MinZoom,lte=22"`
	South       float64 `koanf:"south" json:"south" validate:"latitude"`
	West        float64 `koanf:"west" json:"west" validate:"longitude"`
	North       float64 `koanf:"north" json:"north" validate:"latitude,gtfield=South"`
	East        float64 `koanf:"east" json:"east" validate:"longitude,gtfield=West"`
	TileURL     string  `koanf:"tile_url" json:"tile_url" validate:"required"`
	Attribution string  `koanf:"attribution" json:"attribution"`
}

// RadarConfig positions the terminal radar scope.
type RadarConfig struct {
	CenterLat float64 `koanf:"center_lat" validate:"latitude"`
	CenterLon float64 `koanf:"center_lon" validate:"longitude"`
	RangeNM   float64 `koanf:"range_nm" validate:"gt=0"`

	// ServerURL is used by the admin console
	ServerURL string `koanf:"server_url" validate:"omitempty,url"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level      string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format     string `koanf:"format" validate:"oneof=json console"`
	Caller     bool   `koanf:"caller"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `koanf:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `koanf:"max_age_days" validate:"gte=0"`
	Compress   bool   `koanf:"compress"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			URL:          "https://data.vatsim.net/v3/vatsim-data.json",
			PollInterval: 3 * time.Second,
			MaxRetries:   3,
			RetryDelay:   time.Second,
			Timeout:      10 * time.Second,
			NoticeTTL:    4500 * time.Millisecond,
		},
		Airports: AirportsConfig{
			APIURL:            "https://api.vatsim.net/api",
			MetarURL:          "https://metar.vatsim.net",
			RequestsPerSecond: 5,
			Burst:             2,
			CacheSize:         2048,
			Timeout:           5 * time.Second,
			BreakerFailures:   5,
			BreakerTimeout:    30 * time.Second,
			UseDatabase:       false,
		},
		Database: DatabaseConfig{
			Enabled:      false,
			Host:         "localhost",
			Port:         5432,
			Database:     "vatscope",
			Username:     "vatscope",
			SSLMode:      "disable",
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               "8080",
			CORSOrigins:        []string{"*"},
			RateLimitPerMinute: 300,
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       15 * time.Second,
			ShutdownTimeout:    10 * time.Second,
		},
		Admin: AdminConfig{
			Enabled:         false,
			TokenTTL:        12 * time.Hour,
			BCryptCost:      12,
			ActivityLogSize: 50,
			HistoryWindow:   48 * time.Hour,
			SampleInterval:  time.Minute,
		},
		Map: MapConfig{
			CenterLat:   45,
			CenterLon:   10,
			Zoom:        4,
			MinZoom:     3,
			MaxZoom:     13,
			South:       -85,
			West:        -180,
			North:       85,
			East:        180,
			TileURL:     "https://{s}.basemaps.cartocdn.com/dark_all/{z}/{x}/{y}{r}.png",
			Attribution: "&copy; OpenStreetMap contributors &copy; CARTO",
		},
		Radar: RadarConfig{
			CenterLat: 51.47,
			CenterLon: -0.4543,
			RangeNM:   250,
			ServerURL: "http://localhost:8080",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML (or JSON) file,
// and VATSCOPE_* environment variables, in increasing priority.
// A missing file is not an error; defaults and environment still apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := splitListValues(k, "server.cors_origins"); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(c, "koanf"), nil); err != nil {
		return fmt.Errorf("failed to flatten config: %w", err)
	}
	data, err := k.Marshal(yaml.Parser())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// envTransform maps VATSCOPE_SECTION__KEY to section.key.
// PathEnvVar is not a config key and is dropped.
func envTransform(key string) string {
	if key == PathEnvVar {
		return ""
	}
	key = strings.TrimPrefix(key, EnvPrefix)
	key = strings.ToLower(key)
	return strings.ReplaceAll(key, "__", ".")
}

// splitListValues turns comma separated env values into slices.
func splitListValues(k *koanf.Koanf, paths ...string) error {
	for _, path := range paths {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var items []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		if err := k.Set(path, items); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
