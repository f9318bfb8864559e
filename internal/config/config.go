// Package config loads the skill protocol server's configuration from
// environment variables (spec.md §6.2) with an optional YAML overlay file
// (SPEC_FULL.md §10.3) for the options that are awkward to pass as flat
// env vars (API key allowlist, concurrency tuning). The strict-decode/
// apply-defaults/validate pipeline is grounded on the teacher's
// engine.LoadRunConfigFile (internal/attractor/engine/config.go): unknown
// YAML fields are rejected rather than silently ignored, defaults are
// applied in one place, then the whole document is validated before use.
//
// Unknown environment variables are ignored (spec.md §6.2), the opposite
// policy from the YAML overlay — the overlay is authored by an operator
// who can be held to a known schema, while the process environment is
// shared with everything else on the host and MUST NOT become a source of
// "unrecognized variable" startup failures.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the fully-resolved server configuration.
type Config struct {
	APIHost      string `yaml:"api_host"`
	APIPort      int    `yaml:"api_port"`
	APIPrefix    string `yaml:"api_prefix"`
	AuthRequired bool   `yaml:"auth_required"`
	AuthHeader   string `yaml:"auth_header"`
	APIKeys      []string `yaml:"api_keys"`

	// Relational-store connection parameters (spec.md §6.2). The reference
	// implementation ships only the in-memory MetadataStore (DESIGN.md), so
	// these are parsed and threaded through for forward compatibility but
	// otherwise unused.
	DBHost     string `yaml:"db_host"`
	DBPort     int    `yaml:"db_port"`
	DBName     string `yaml:"db_name"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`

	// Object-store endpoint/credentials/bucket (spec.md §6.2). As with the
	// relational store, only the in-memory BlobStore ships; these fields
	// exist so an operator's env/overlay validates identically against a
	// future persistent implementation.
	ObjectStoreEndpoint  string `yaml:"object_store_endpoint"`
	ObjectStoreAccessKey string `yaml:"object_store_access_key"`
	ObjectStoreSecretKey string `yaml:"object_store_secret_key"`
	ObjectStoreBucket    string `yaml:"object_store_bucket"`

	// Optional search-backend host/port/index (spec.md §6.2, §6.3: "search
	// index (optional) ... absence downgrades discovery to linear scan").
	SearchHost  string `yaml:"search_host"`
	SearchPort  int    `yaml:"search_port"`
	SearchIndex string `yaml:"search_index"`

	LogLevel string `yaml:"log_level"`

	MaxConcurrent  int `yaml:"max_concurrent"`
	AsyncQueueSize int `yaml:"async_queue_size"`

	RunStatePath     string `yaml:"run_state_path"`
	RunStateInterval int    `yaml:"run_state_interval_seconds"`
}

func defaults() Config {
	return Config{
		APIHost:          "0.0.0.0",
		APIPort:          8080,
		APIPrefix:        "/api/v1",
		AuthRequired:     false,
		AuthHeader:       "X-API-Key",
		LogLevel:         "info",
		MaxConcurrent:    100,
		AsyncQueueSize:   10000,
		RunStatePath:     "run-state/snapshot.msgpack",
		RunStateInterval: 30,
	}
}

// Load builds a Config from defaults, an optional YAML overlay file (if
// overlayPath is non-empty), and then the process environment, in that
// increasing order of precedence.
func Load(overlayPath string) (*Config, error) {
	cfg := defaults()

	if overlayPath != "" {
		if err := applyOverlay(&cfg, overlayPath); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config overlay %s: %w", path, err)
	}
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode config overlay %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays recognized environment variables (spec.md §6.2).
// Unrecognized variables are, by construction, never consulted here and
// are therefore silently ignored.
func applyEnv(cfg *Config) {
	str(&cfg.APIHost, "API_HOST")
	intVar(&cfg.APIPort, "API_PORT")
	str(&cfg.APIPrefix, "API_PREFIX")
	boolVar(&cfg.AuthRequired, "AUTH_REQUIRED")
	str(&cfg.AuthHeader, "AUTH_HEADER")
	if v, ok := os.LookupEnv("API_KEYS"); ok {
		cfg.APIKeys = splitNonEmpty(v, ",")
	}

	str(&cfg.DBHost, "DB_HOST")
	intVar(&cfg.DBPort, "DB_PORT")
	str(&cfg.DBName, "DB_NAME")
	str(&cfg.DBUser, "DB_USER")
	str(&cfg.DBPassword, "DB_PASSWORD")

	str(&cfg.ObjectStoreEndpoint, "OBJECT_STORE_ENDPOINT")
	str(&cfg.ObjectStoreAccessKey, "OBJECT_STORE_ACCESS_KEY")
	str(&cfg.ObjectStoreSecretKey, "OBJECT_STORE_SECRET_KEY")
	str(&cfg.ObjectStoreBucket, "OBJECT_STORE_BUCKET")

	str(&cfg.SearchHost, "SEARCH_HOST")
	intVar(&cfg.SearchPort, "SEARCH_PORT")
	str(&cfg.SearchIndex, "SEARCH_INDEX")

	str(&cfg.LogLevel, "LOG_LEVEL")
	intVar(&cfg.MaxConcurrent, "MAX_CONCURRENT")
	intVar(&cfg.AsyncQueueSize, "ASYNC_QUEUE_SIZE")
	str(&cfg.RunStatePath, "RUN_STATE_PATH")
	intVar(&cfg.RunStateInterval, "RUN_STATE_INTERVAL_SECONDS")
}

func validate(cfg *Config) error {
	if cfg.APIPort < 1 || cfg.APIPort > 65535 {
		return fmt.Errorf("api_port out of range: %d", cfg.APIPort)
	}
	if cfg.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be >= 1, got %d", cfg.MaxConcurrent)
	}
	if cfg.AsyncQueueSize < 1 {
		return fmt.Errorf("async_queue_size must be >= 1, got %d", cfg.AsyncQueueSize)
	}
	if cfg.AuthRequired && len(cfg.APIKeys) == 0 {
		return fmt.Errorf("auth_required=true but no api_keys configured")
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %q", cfg.LogLevel)
	}
	return nil
}

func str(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok {
		*dst = v
	}
}

func intVar(dst *int, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func boolVar(dst *bool, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Addr returns the "host:port" listen address derived from the config.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

// APIKeySet returns APIKeys as a lookup set for apiserver.Config.
func (c *Config) APIKeySet() map[string]bool {
	set := make(map[string]bool, len(c.APIKeys))
	for _, k := range c.APIKeys {
		set[k] = true
	}
	return set
}
