package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix namespaces the environment variables read by Load.
const EnvPrefix = "CRE_"

// DefaultBoundaryBaseURL is the geoBoundaries open-license API.
const DefaultBoundaryBaseURL = "https://www.geoboundaries.org/api/current/gbOpen"

const parquetExt = ".parquet"

// Config holds all extraction settings.
type Config struct {
	Input    string `koanf:"input" validate:"required"`
	Output   string `koanf:"output" validate:"required"`
	Variable string `koanf:"variable" validate:"required"`
	Country  string `koanf:"country" validate:"required"`
	AdmLevel int    `koanf:"adm_level"`

	BoundaryBaseURL   string        `koanf:"boundary_base_url" validate:"required,url"`
	BoundaryTimeout   time.Duration `koanf:"boundary_timeout" validate:"gt=0"`
	BoundaryRetries   int           `koanf:"boundary_retries" validate:"gte=0,lte=10"`
	BoundaryCacheSize int           `koanf:"boundary_cache_size" validate:"gte=1"`
	RedisURL          string        `koanf:"redis_url" validate:"omitempty,url"`
	RedisTTL          time.Duration `koanf:"redis_ttl" validate:"gte=0"`

	RegionWorkers int    `koanf:"region_workers" validate:"gte=1,lte=256"`
	EmptyColumns  string `koanf:"empty_columns" validate:"oneof=null omit"`
	FailFast      bool   `koanf:"fail_fast"`
	WrapLongitude bool   `koanf:"wrap_longitude"`
	Progress      bool   `koanf:"progress"`

	LogLevel        string        `koanf:"log_level" validate:"oneof=debug info warn warning error"`
	LogFormat       string        `koanf:"log_format" validate:"oneof=json text"`
	MetricsAddr     string        `koanf:"metrics_addr"`
	MetricsTextfile string        `koanf:"metrics_textfile"`
	KafkaBrokers    []string      `koanf:"kafka_brokers"`
	KafkaTopic      string        `koanf:"kafka_topic" validate:"required_with=KafkaBrokers"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// OutputAdjusted is set when Output did not end in .parquet and the
	// extension was appended.
	OutputAdjusted bool `koanf:"-"`
}

// StatsOutput is the path of the per-region statistics CSV.
func (c *Config) StatsOutput() string {
	return c.Output + ".csv"
}

// PublishEnabled reports whether region series are also sent to Kafka.
func (c *Config) PublishEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

var validate = validator.New()

// Load layers configuration, lowest precedence first: defaults, the YAML file
// at configFile (if any), a .env file, CRE_* environment variables and
// explicitly set flags. Flag names map to keys by replacing '-' with '_'.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(map[string]any{
		"adm_level":           0,
		"boundary_base_url":   DefaultBoundaryBaseURL,
		"boundary_timeout":    "30s",
		"boundary_retries":    3,
		"boundary_cache_size": 64,
		"redis_ttl":           "168h",
		"region_workers":      4,
		"empty_columns":       "null",
		"wrap_longitude":      true,
		"progress":            true,
		"log_level":           "info",
		"log_format":          "text",
		"kafka_topic":         "climate-region-series",
		"shutdown_timeout":    shutdownTimeout.String(),
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	// A missing .env is the common case.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.KafkaBrokers = sharedcfg.ParseBrokers(strings.Join(cfg.KafkaBrokers, ","))
	cfg.Country = strings.TrimSpace(cfg.Country)
	cfg.normalizeOutput()

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// normalizeOutput appends .parquet to output paths with another or no extension.
func (c *Config) normalizeOutput() {
	if c.Output == "" || strings.HasSuffix(strings.ToLower(c.Output), parquetExt) {
		return
	}
	c.Output += parquetExt
	c.OutputAdjusted = true
}
