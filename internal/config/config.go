package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Common errors
var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL environment variable is required")
	ErrInvalidRate        = errors.New("SUBMIT_RATE_PER_MINUTE and SUBMIT_BURST must be positive")
	ErrInvalidUploadLimit = errors.New("MAX_UPLOAD_BYTES must be positive")
	ErrInvalidMapZoom     = errors.New("MAP_MAX_ZOOM must be between 1 and 22")
)

// Config holds everything the server needs at startup.
type Config struct {
	Port           string        `yaml:"port"`
	DatabaseURL    string        `yaml:"database_url"`
	DBMaxOpenConns int           `yaml:"db_max_open_conns"`
	RedisAddress   string        `yaml:"redis_address"`
	RedisPassword  string        `yaml:"redis_password"`
	ImageCacheTTL  time.Duration `yaml:"image_cache_ttl"`

	AllowedOrigins []string `yaml:"allowed_origins"`

	SubmitRatePerMinute int   `yaml:"submit_rate_per_minute"`
	SubmitBurst         int   `yaml:"submit_burst"`
	MaxUploadBytes      int64 `yaml:"max_upload_bytes"`

	// StrictTransitions switches the lifecycle from "any state to any state"
	// to the forward-only table Pending -> Ongoing -> Completed.
	StrictTransitions bool          `yaml:"strict_transitions"`
	SessionTTL        time.Duration `yaml:"session_ttl"`
	SecureCookies     bool          `yaml:"secure_cookies"`

	MapMaxZoom       int `yaml:"map_max_zoom"`
	MapClusterRadius int `yaml:"map_cluster_radius"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:                "5050",
		DBMaxOpenConns:      20,
		ImageCacheTTL:       10 * time.Minute,
		AllowedOrigins:      []string{"http://localhost:5173", "http://localhost:3000"},
		SubmitRatePerMinute: 10,
		SubmitBurst:         5,
		MaxUploadBytes:      10 << 20,
		SessionTTL:          6 * time.Hour,
		MapMaxZoom:          19,
		MapClusterRadius:    60,
	}
}

// LoadFromEnv builds a Config from defaults, an optional YAML file named by
// CONFIG_FILE, and then the environment.
//
// Environment variables:
//   - PORT: listen port (default: 5050)
//   - DATABASE_URL: Postgres DSN (required)
//   - DB_MAX_OPEN_CONNS: pool size (default: 20)
//   - REDIS_ADDRESS, REDIS_PASSWORD: enable the image cache when the address is set
//   - IMAGE_CACHE_TTL: Go duration (default: 10m)
//   - ALLOWED_ORIGINS: comma separated CORS allow-list
//   - SUBMIT_RATE_PER_MINUTE, SUBMIT_BURST: per-client submission limiter
//   - MAX_UPLOAD_BYTES: request body cap for uploads (default: 10 MiB)
//   - STRICT_TRANSITIONS: "true" to forbid status regression
//   - SESSION_TTL: admin session lifetime (default: 6h)
//   - SECURE_COOKIES: "true" when served over HTTPS to another site
//   - MAP_MAX_ZOOM, MAP_CLUSTER_RADIUS: cluster index tuning
func LoadFromEnv() (Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}

	if err := cfg.mergeEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() error {
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		c.Port = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDRESS"); v != "" {
		c.RedisAddress = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		c.AllowedOrigins = splitList(v)
	}

	var err error
	if c.DBMaxOpenConns, err = envInt("DB_MAX_OPEN_CONNS", c.DBMaxOpenConns); err != nil {
		return err
	}
	if c.SubmitRatePerMinute, err = envInt("SUBMIT_RATE_PER_MINUTE", c.SubmitRatePerMinute); err != nil {
		return err
	}
	if c.SubmitBurst, err = envInt("SUBMIT_BURST", c.SubmitBurst); err != nil {
		return err
	}
	if c.MapMaxZoom, err = envInt("MAP_MAX_ZOOM", c.MapMaxZoom); err != nil {
		return err
	}
	if c.MapClusterRadius, err = envInt("MAP_CLUSTER_RADIUS", c.MapClusterRadius); err != nil {
		return err
	}
	if v := strings.TrimSpace(os.Getenv("MAX_UPLOAD_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_UPLOAD_BYTES: %w", err)
		}
		c.MaxUploadBytes = n
	}
	if c.StrictTransitions, err = envBool("STRICT_TRANSITIONS", c.StrictTransitions); err != nil {
		return err
	}
	if c.SecureCookies, err = envBool("SECURE_COOKIES", c.SecureCookies); err != nil {
		return err
	}
	if c.ImageCacheTTL, err = envDuration("IMAGE_CACHE_TTL", c.ImageCacheTTL); err != nil {
		return err
	}
	if c.SessionTTL, err = envDuration("SESSION_TTL", c.SessionTTL); err != nil {
		return err
	}
	return nil
}

// Validate checks the values that would otherwise fail later at runtime.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.SubmitRatePerMinute <= 0 || c.SubmitBurst <= 0 {
		return ErrInvalidRate
	}
	if c.MaxUploadBytes <= 0 {
		return ErrInvalidUploadLimit
	}
	if c.MapMaxZoom < 1 || c.MapMaxZoom > 22 {
		return ErrInvalidMapZoom
	}
	return nil
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
