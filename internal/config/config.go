// Package config provides configuration loading and structs for the lookalike server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. LOOKALIKE_SERVER_PORT.
const EnvPrefix = "LOOKALIKE"

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Ingest    IngestConfig    `yaml:"ingest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host" envconfig:"HOST"`
	Port           int           `yaml:"port" envconfig:"PORT"`
	CORSOrigin     string        `yaml:"cors_origin" envconfig:"CORS_ORIGIN"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES"`
	UploadField    string        `yaml:"upload_field" envconfig:"UPLOAD_FIELD"`
	StaticDir      string        `yaml:"static_dir" envconfig:"STATIC_DIR"`
}

// StoreConfig selects and configures the vector store.
type StoreConfig struct {
	Type            string        `yaml:"type" envconfig:"TYPE"`
	DatabasePath    string        `yaml:"database_path" envconfig:"DATABASE_PATH"`
	MongoURI        string        `yaml:"mongo_uri" envconfig:"MONGO_URI"`
	MongoDatabase   string        `yaml:"mongo_database" envconfig:"MONGO_DATABASE"`
	MongoCollection string        `yaml:"mongo_collection" envconfig:"MONGO_COLLECTION"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" envconfig:"CONNECT_TIMEOUT"`
	// PushDown scores inside the store when it supports it (MongoDB).
	PushDown bool `yaml:"push_down" envconfig:"PUSH_DOWN"`
}

// EmbeddingConfig holds settings for the external embedding service.
type EmbeddingConfig struct {
	// URL is the service base URL; "mock" uses a deterministic local client.
	URL        string        `yaml:"url" envconfig:"URL"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	Dimensions int           `yaml:"dimensions" envconfig:"DIMENSIONS"`
	CacheSize  int           `yaml:"cache_size" envconfig:"CACHE_SIZE"`
	Breaker    BreakerConfig `yaml:"breaker"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig enables a Redis embedding cache shared between replicas. Empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr" envconfig:"ADDR"`
	Password string        `yaml:"password" envconfig:"PASSWORD"`
	DB       int           `yaml:"db" envconfig:"DB"`
	TTL      time.Duration `yaml:"ttl" envconfig:"TTL"`
}

// BreakerConfig configures the circuit breaker in front of the embedding service.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled" envconfig:"ENABLED"`
	MaxFailures uint32        `yaml:"max_failures" envconfig:"MAX_FAILURES"`
	OpenTimeout time.Duration `yaml:"open_timeout" envconfig:"OPEN_TIMEOUT"`
}

// SearchConfig holds result-count limits.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit" envconfig:"DEFAULT_LIMIT"`
	MaxLimit     int `yaml:"max_limit" envconfig:"MAX_LIMIT"`
}

// IngestConfig controls loading stored items from a seed file.
type IngestConfig struct {
	SeedFile string `yaml:"seed_file" envconfig:"SEED_FILE"`
	Watch    bool   `yaml:"watch" envconfig:"WATCH"`
	// Normalize L2-normalizes vectors on import so dot product equals cosine similarity.
	Normalize bool `yaml:"normalize" envconfig:"NORMALIZE"`
}

// Load reads and parses the config file at path, applies environment overrides,
// expands paths, and applies defaults. A missing file is not an error when path is
// empty; any other read or parse failure is returned.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir := "."
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir = filepath.Dir(path)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	cfg.Store.DatabasePath = expandPath(cfg.Store.DatabasePath, configDir)
	cfg.Ingest.SeedFile = expandPath(cfg.Ingest.SeedFile, configDir)
	cfg.Server.StaticDir = expandPath(cfg.Server.StaticDir, configDir)

	return &cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process environment
// without overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg from the environment. The plain deployment variables
// (PORT, MONGODB_URI, FASTAPI_URL, CORS_ORIGIN) are applied first; LOOKALIKE_* wins.
// Nested sections extend the prefix, e.g. LOOKALIKE_EMBEDDING_BREAKER_ENABLED.
func ApplyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := strings.TrimSpace(os.Getenv("MONGODB_URI")); v != "" {
		cfg.Store.MongoURI = v
		if cfg.Store.Type == "" {
			cfg.Store.Type = "mongo"
		}
	}
	if v := strings.TrimSpace(os.Getenv("FASTAPI_URL")); v != "" {
		cfg.Embedding.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("CORS_ORIGIN")); v != "" {
		cfg.Server.CORSOrigin = v
	}

	if v, ok := os.LookupEnv(EnvPrefix + "_DEBUG"); ok {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s_DEBUG %q: %w", EnvPrefix, v, err)
		}
		cfg.Debug = debug
	}
	sections := []struct {
		prefix string
		spec   any
	}{
		{EnvPrefix + "_SERVER", &cfg.Server},
		{EnvPrefix + "_STORE", &cfg.Store},
		{EnvPrefix + "_EMBEDDING", &cfg.Embedding},
		{EnvPrefix + "_SEARCH", &cfg.Search},
		{EnvPrefix + "_INGEST", &cfg.Ingest},
	}
	for _, s := range sections {
		if err := envconfig.Process(s.prefix, s.spec); err != nil {
			return fmt.Errorf("failed to apply %s environment: %w", s.prefix, err)
		}
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty stays empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
