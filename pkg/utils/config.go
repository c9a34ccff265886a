package utils

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"osusume/pkg/database"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "OSUSUME_CONFIG"

const envPrefix = "OSUSUME_"

// DefaultConfigPaths are searched in order when OSUSUME_CONFIG is unset.
var DefaultConfigPaths = []string{
	"osusume.yaml",
	"osusume.yml",
	"/etc/osusume/config.yaml",
}

type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Server    ServerConfig    `koanf:"server"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Recommend RecommendConfig `koanf:"recommend"`
	Auth      AuthConfig      `koanf:"auth"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type ServerConfig struct {
	HTTPAddr string `koanf:"http_addr"`
	TCPAddr  string `koanf:"tcp_addr"`
	GRPCAddr string `koanf:"grpc_addr"`

	// SessionIdle closes browse sessions unused for this long.
	SessionIdle time.Duration `koanf:"session_idle"`
}

type CatalogConfig struct {
	// PopularThreshold: popular rows have popularity strictly below it.
	PopularThreshold int `koanf:"popular_threshold"`
	Limit            int `koanf:"limit"`
}

type RecommendConfig struct {
	// ModelPath points at a similarity artifact; empty uses the bundled one.
	ModelPath string  `koanf:"model_path"`
	Weight    float64 `koanf:"weight"`
	K         int     `koanf:"k"`

	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

type AuthConfig struct {
	JWTSecret   string        `koanf:"jwt_secret"`
	JWTIssuer   string        `koanf:"jwt_issuer"`
	JWTDuration time.Duration `koanf:"jwt_ttl"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: database.DefaultConfig().Path,
		},
		Server: ServerConfig{
			HTTPAddr: ":8080",
			TCPAddr:  ":7070",
			GRPCAddr: ":9090",

			SessionIdle: 30 * time.Minute,
		},
		Catalog: CatalogConfig{
			PopularThreshold: 20,
			Limit:            20,
		},
		Recommend: RecommendConfig{
			ModelPath:       "",
			Weight:          10,
			K:               20,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Auth: AuthConfig{
			// dev default (change for demo / production)
			JWTSecret:   "dev-secret-change-me",
			JWTIssuer:   "osusume",
			JWTDuration: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load layers defaults, an optional YAML file and OSUSUME_* environment
// variables, in that order of increasing priority.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate rejects values the components cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Catalog.Limit <= 0 {
		errs = append(errs, errors.New("catalog.limit must be > 0"))
	}
	if c.Recommend.K <= 0 {
		errs = append(errs, errors.New("recommend.k must be > 0"))
	}
	if c.Recommend.Weight <= 0 {
		errs = append(errs, errors.New("recommend.weight must be > 0"))
	}
	if c.Server.SessionIdle <= 0 {
		errs = append(errs, errors.New("server.session_idle must be > 0"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Auth.JWTDuration <= 0 {
		errs = append(errs, errors.New("auth.jwt_ttl must be > 0"))
	}
	return errors.Join(errs...)
}

// DB returns the store location in the form pkg/database expects.
func (c *Config) DB() database.Config {
	return database.Config{Path: c.Database.Path}
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envKey maps OSUSUME_RECOMMEND_MODEL_PATH to recommend.model_path: the first
// segment is the section, the rest is the field name.
func envKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	switch key {
	case "config":
		return ""
	case "db_path":
		return "database.path"
	}
	section, field, ok := strings.Cut(key, "_")
	if !ok {
		return ""
	}
	return section + "." + field
}
