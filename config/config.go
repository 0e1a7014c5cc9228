// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultAPIBase is the beta endpoint, which accepts assistant prefix messages.
	DefaultAPIBase = "https://api.deepseek.com/beta"
	// DefaultCatalogURL lists the models available to the key.
	DefaultCatalogURL = "https://api.deepseek.com/v1/models"
	// DefaultCacheFile is the catalog cache file name inside the user directory.
	DefaultCacheFile = "deepseek_models.json"
	// DefaultFreshnessWindow is the maximum age of a cached catalog used without refetching.
	DefaultFreshnessWindow = time.Hour

	// DefaultBodySizeLimit caps request bodies accepted by the HTTP surface (1MB).
	DefaultBodySizeLimit int64 = 1 << 20

	BackendLocal = "local"
	BackendRedis = "redis"
)

// Config holds the application configuration
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LogConfig      `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
}

// ProviderConfig describes the remote provider and how its key is looked up.
type ProviderConfig struct {
	Name      string `yaml:"name"`
	KeyEnvVar string `yaml:"key_env_var"`
	APIBase   string `yaml:"api_base"`
}

// CatalogConfig controls the model catalog cache.
type CatalogConfig struct {
	URL             string            `yaml:"url"`
	Headers         map[string]string `yaml:"headers"`
	UserDir         string            `yaml:"user_dir"`
	CacheFile       string            `yaml:"cache_file"`
	FreshnessWindow time.Duration     `yaml:"freshness_window"`
	Backend         string            `yaml:"backend"`
	Redis           RedisConfig       `yaml:"redis"`
}

// RedisConfig holds the optional Redis catalog store settings.
type RedisConfig struct {
	URL string        `yaml:"url"`
	Key string        `yaml:"key"`
	TTL time.Duration `yaml:"ttl"`
}

// HTTPConfig holds transport timeouts. Zero means the httpclient default.
type HTTPConfig struct {
	Timeout               time.Duration `yaml:"timeout"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "pretty", "json" or "" for auto
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string `yaml:"port"`
	MasterKey      string `yaml:"master_key"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	BodySizeLimit  int64  `yaml:"body_size_limit"`
}

// CachePath returns the location of the catalog cache file.
func (c *CatalogConfig) CachePath() string {
	return filepath.Join(c.UserDir, c.CacheFile)
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:      "deepseek",
			KeyEnvVar: "LLM_DEEPSEEK_KEY",
			APIBase:   DefaultAPIBase,
		},
		Catalog: CatalogConfig{
			URL:             DefaultCatalogURL,
			UserDir:         defaultUserDir(),
			CacheFile:       DefaultCacheFile,
			FreshnessWindow: DefaultFreshnessWindow,
			Backend:         BackendLocal,
		},
		Logging: LogConfig{Level: "info"},
		Server: ServerConfig{
			Port:           "8080",
			MetricsEnabled: true,
			BodySizeLimit:  DefaultBodySizeLimit,
		},
	}
}

// defaultUserDir mirrors the host tool's data directory lookup.
func defaultUserDir() string {
	if dir := os.Getenv("LLM_USER_PATH"); dir != "" {
		return dir
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "io.datasette.llm")
	}
	return ".llm"
}

// Load reads configuration from defaults, an optional YAML file, an optional
// .env file and the environment, in increasing order of precedence.
// An empty path looks for config.yaml in the working directory.
func Load(path string) (*Config, error) {
	// .env never overrides variables that are already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decodeYAML([]byte(expandString(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate performs sanity checks on the configuration.
func (c *Config) Validate() error {
	if c.Provider.Name == "" {
		return errors.New("provider.name must not be empty")
	}
	if c.Provider.APIBase == "" {
		return errors.New("provider.api_base must not be empty")
	}
	if c.Catalog.URL == "" {
		return errors.New("catalog.url must not be empty")
	}
	if c.Catalog.FreshnessWindow <= 0 {
		return fmt.Errorf("catalog.freshness_window must be positive, got %s", c.Catalog.FreshnessWindow)
	}
	switch c.Catalog.Backend {
	case BackendLocal:
		if c.Catalog.UserDir == "" || c.Catalog.CacheFile == "" {
			return errors.New("catalog.user_dir and catalog.cache_file are required for the local backend")
		}
	case BackendRedis:
		if c.Catalog.Redis.URL == "" {
			return errors.New("catalog.redis.url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown catalog.backend %q", c.Catalog.Backend)
	}
	if c.Server.BodySizeLimit <= 0 {
		return fmt.Errorf("server.body_size_limit must be positive, got %d", c.Server.BodySizeLimit)
	}
	return nil
}

// applyEnvOverrides applies environment variables on top of the file configuration.
func applyEnvOverrides(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("DEEPSEEK_API_BASE", &cfg.Provider.APIBase)
	setString("DEEPSEEK_CATALOG_URL", &cfg.Catalog.URL)
	setString("LLM_USER_PATH", &cfg.Catalog.UserDir)
	setString("DEEPSEEK_CATALOG_BACKEND", &cfg.Catalog.Backend)
	setString("REDIS_URL", &cfg.Catalog.Redis.URL)
	setString("LOG_LEVEL", &cfg.Logging.Level)
	setString("LOG_FORMAT", &cfg.Logging.Format)
	setString("PORT", &cfg.Server.Port)
	setString("LLMDEEPSEEK_MASTER_KEY", &cfg.Server.MasterKey)

	for key, dst := range map[string]*time.Duration{
		"DEEPSEEK_CATALOG_TTL":         &cfg.Catalog.FreshnessWindow,
		"HTTP_TIMEOUT":                 &cfg.HTTP.Timeout,
		"HTTP_RESPONSE_HEADER_TIMEOUT": &cfg.HTTP.ResponseHeaderTimeout,
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
	}

	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid METRICS_ENABLED: %w", err)
		}
		cfg.Server.MetricsEnabled = enabled
	}
	return nil
}

// durationKeys are the YAML keys decoded into time.Duration.
var durationKeys = map[string]bool{
	"freshness_window":        true,
	"ttl":                     true,
	"timeout":                 true,
	"response_header_timeout": true,
}

// decodeYAML unmarshals data into cfg. Durations may be written as plain
// integers (seconds), matching the environment overrides.
func decodeYAML(data []byte, cfg *Config) error {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return err
	}
	if root.Kind == 0 {
		return nil
	}
	if err := secondsToDurations(&root); err != nil {
		return err
	}
	return root.Decode(cfg)
}

func secondsToDurations(n *yaml.Node) error {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if durationKeys[key.Value] && val.Kind == yaml.ScalarNode && val.ShortTag() == "!!int" {
				d, err := parseDuration(val.Value)
				if err != nil {
					return fmt.Errorf("line %d: invalid %s: %w", val.Line, key.Value, err)
				}
				val.Value = d.String()
				val.Tag = "!!str"
				val.Style = 0
			}
		}
	}
	for _, child := range n.Content {
		if err := secondsToDurations(child); err != nil {
			return err
		}
	}
	return nil
}

// parseDuration accepts either plain integers (seconds) or Go duration strings.
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} with values from the environment.
// Unset variables without a default expand to the empty string.
func expandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if v, ok := os.LookupEnv(parts[1]); ok && v != "" {
			return v
		}
		return parts[3]
	})
}
