package config

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sethvargo/go-envconfig"
)

const (
	TemplatesSourceDir = "dir"
	TemplatesSourceS3  = "s3"

	ExerciseCatalogNone     = ""
	ExerciseCatalogFile     = "file"
	ExerciseCatalogPostgres = "postgres"
	ExerciseCatalogMongo    = "mongo"
)

type Config struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	Environment string `toml:"environment"`
	// logging
	LogLevel      string `toml:"log_level" env:"FITPLAN_LOG_LEVEL, overwrite"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	LogFormatJSON bool   `toml:"log_format_json"`
	SentryEnabled bool   `toml:"sentry_enabled"`
	SentryDSN     string `toml:"-" env:"SENTRY_DSN"`
	// postgres
	PostgresHost     string `toml:"postgres_host" env:"FITPLAN_POSTGRES_HOST, overwrite"`
	PostgresPort     string `toml:"postgres_port" env:"FITPLAN_POSTGRES_PORT, overwrite"`
	PostgresDBName   string `toml:"postgres_db_name"`
	PostgresUser     string `toml:"postgres_user"`
	PostgresPassword string `toml:"-" env:"FITPLAN_POSTGRES_PASSWORD"`
	// templates
	TemplatesSource string   `toml:"templates_source"`
	TemplatesDir    string   `toml:"templates_dir"`
	S3Bucket        string   `toml:"s3_bucket"`
	S3Prefix        string   `toml:"s3_prefix"`
	S3Region        string   `toml:"s3_region"`
	S3Endpoint      string   `toml:"s3_endpoint"`
	S3AccessKey     string   `toml:"-" env:"FITPLAN_S3_ACCESS_KEY"`
	S3SecretKey     string   `toml:"-" env:"FITPLAN_S3_SECRET_KEY"`
	InjuryPaths     []string `toml:"injury_paths"`
	// exercise catalog
	ExerciseCatalog     string `toml:"exercise_catalog"`
	ExerciseCatalogPath string `toml:"exercise_catalog_path"`
	MongoURI            string `toml:"mongo_uri" env:"FITPLAN_MONGO_URI, overwrite"`
	MongoDBName         string `toml:"mongo_db_name"`
	// caches
	RedisHost       string `toml:"redis_host" env:"FITPLAN_REDIS_HOST, overwrite"`
	RedisPort       string `toml:"redis_port"`
	RedisPassword   string `toml:"-" env:"FITPLAN_REDIS_PASSWORD"`
	CacheSizeBytes  int    `toml:"cache_size_bytes"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds"`
	// reloads per minute across replicas, needs redis; 0 disables the limit
	ReloadPerMinute int `toml:"reload_per_minute"`
	// telemetry
	MetricsHost      string `toml:"metrics_host"`
	MetricsPort      string `toml:"metrics_port"`
	HoneycombTracing bool   `toml:"honeycomb_tracing"`
	HoneycombService string `toml:"honeycomb_service"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

// Load reads the TOML file, picks the table for env and applies environment
// overrides on top.
func Load(ctx context.Context, env, path string) (*Config, error) {
	var t Toml
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("decode config [%s]: %w", path, err)
	}
	return fromToml(ctx, &t, env, envconfig.OsLookuper())
}

func Parse(ctx context.Context, env, data string, lookuper envconfig.Lookuper) (*Config, error) {
	var t Toml
	if _, err := toml.Decode(data, &t); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return fromToml(ctx, &t, env, lookuper)
}

func fromToml(ctx context.Context, t *Toml, env string, lookuper envconfig.Lookuper) (*Config, error) {
	cfg, err := t.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("no [%s] table in config", env)
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if cfg.Environment == "" {
		cfg.Environment = strings.ToLower(env)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadedAsTemplate reports whether the dir loader would pick path up:
// files at the templates root and in its starter and advanced subdirs.
func (c *Config) loadedAsTemplate(path string) bool {
	root, err := filepath.Abs(c.TemplatesDir)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, filepath.Dir(abs))
	if err != nil {
		return false
	}
	return slices.Contains([]string{".", "starter", "advanced"}, rel)
}

func (c *Config) validate() error {
	switch c.TemplatesSource {
	case "", TemplatesSourceDir:
		if c.TemplatesDir == "" {
			return fmt.Errorf("templates_dir is required for templates_source [%s]", TemplatesSourceDir)
		}
		for _, path := range c.InjuryPaths {
			if c.loadedAsTemplate(path) {
				return fmt.Errorf("injury mapping [%s] is inside templates_dir and would be loaded as a template", path)
			}
		}
	case TemplatesSourceS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("s3_bucket is required for templates_source [%s]", TemplatesSourceS3)
		}
	default:
		return fmt.Errorf("unknown templates_source: %s", c.TemplatesSource)
	}

	switch c.ExerciseCatalog {
	case ExerciseCatalogNone, ExerciseCatalogPostgres:
	case ExerciseCatalogFile:
		if c.ExerciseCatalogPath == "" {
			return fmt.Errorf("exercise_catalog_path is required for exercise_catalog [%s]", ExerciseCatalogFile)
		}
	case ExerciseCatalogMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("mongo_uri is required for exercise_catalog [%s]", ExerciseCatalogMongo)
		}
	default:
		return fmt.Errorf("unknown exercise_catalog: %s", c.ExerciseCatalog)
	}

	if c.ReloadPerMinute < 0 {
		return fmt.Errorf("reload_per_minute must not be negative: %d", c.ReloadPerMinute)
	}
	return nil
}
