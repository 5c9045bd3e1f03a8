// Package config loads settings for the bearoff CLI and query server from
// an optional config file and BEAROFF_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/bgbearoff/bearoff/internal/bearoff"
	"github.com/bgbearoff/bearoff/pkg/engine"
)

// EnvPrefix prefixes every environment override, e.g. BEAROFF_SERVER_PORT.
const EnvPrefix = "BEAROFF"

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

type DatabaseConfig struct {
	OneSided    string `mapstructure:"one_sided"`
	TwoSided    string `mapstructure:"two_sided"`
	Hypergammon string `mapstructure:"hypergammon"`
	// Access is one of disk, memory or heap.
	Access string `mapstructure:"access"`
	// Checksum is the expected xxhash64 of the one-sided table, in hex.
	Checksum string `mapstructure:"checksum"`
	// Heuristic builds an approximate one-sided table when none is configured.
	Heuristic bool `mapstructure:"heuristic"`
}

type CacheConfig struct {
	Size int `mapstructure:"size"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxFastWorkers int           `mapstructure:"max_fast_workers"`
	MaxSlowWorkers int           `mapstructure:"max_slow_workers"`
	// ExternalPort serves the line-based text protocol when non-zero.
	ExternalPort int `mapstructure:"external_port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.one_sided", "")
	v.SetDefault("database.two_sided", "")
	v.SetDefault("database.hypergammon", "")
	v.SetDefault("database.access", "memory")
	v.SetDefault("database.checksum", "")
	v.SetDefault("database.heuristic", true)

	v.SetDefault("cache.size", 1<<16)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.max_fast_workers", 0)
	v.SetDefault("server.max_slow_workers", 0)
	v.SetDefault("server.external_port", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load reads the config file at path, if any, and applies environment
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be caught by decoding.
func (c *Config) Validate() error {
	if _, err := bearoff.ParseAccess(c.Database.Access); err != nil {
		return fmt.Errorf("config: database.access: %w", err)
	}
	if _, err := c.Database.ChecksumValue(); err != nil {
		return err
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Server.ExternalPort < 0 || c.Server.ExternalPort > 65535 {
		return fmt.Errorf("config: server.external_port %d out of range", c.Server.ExternalPort)
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("config: cache.size must not be negative")
	}
	return nil
}

// OpenOptions returns the options for opening the one-sided table.
func (d DatabaseConfig) OpenOptions() bearoff.Options {
	access, _ := bearoff.ParseAccess(d.Access)
	sum, _ := d.ChecksumValue()
	return bearoff.Options{Access: access, Checksum: sum}
}

// EngineOptions returns the engine options described by c.
func (c *Config) EngineOptions() engine.EngineOptions {
	opts := c.Database.OpenOptions()
	eo := engine.EngineOptions{
		OneSidedFile:    c.Database.OneSided,
		TwoSidedFile:    c.Database.TwoSided,
		HypergammonFile: c.Database.Hypergammon,
		Access:          opts.Access,
		Checksum:        opts.Checksum,
		CacheSize:       c.Cache.Size,
	}
	if c.Cache.Size == 0 {
		eo.CacheSize = -1
	}
	if c.Database.Heuristic && c.Database.OneSided == "" {
		eo.Heuristic = &bearoff.GenerateOptions{}
	}
	return eo
}

// ChecksumValue parses Checksum. An empty checksum is zero.
func (d DatabaseConfig) ChecksumValue() (uint64, error) {
	if d.Checksum == "" {
		return 0, nil
	}
	sum, err := strconv.ParseUint(strings.TrimPrefix(d.Checksum, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("config: database.checksum: %w", err)
	}
	return sum, nil
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Setup configures the global zerolog logger.
func (l LogConfig) Setup() {
	level, err := zerolog.ParseLevel(l.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if l.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
