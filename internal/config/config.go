// Package config loads ito settings from an HCL file, a .env file and ITO_*
// environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"

	"github.com/lox/ito/internal/game"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "ITO_"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the complete runtime configuration.
type Config struct {
	Server    ServerConfig    `envPrefix:"SERVER_"`
	Storage   StorageConfig   `envPrefix:"STORAGE_"`
	Defaults  DefaultsConfig  `envPrefix:"DEFAULTS_"`
	Topics    TopicsConfig    `envPrefix:"TOPICS_"`
	Telemetry TelemetryConfig `envPrefix:"TELEMETRY_"`
}

type ServerConfig struct {
	Address   string `hcl:"address,optional" env:"ADDRESS"`
	LogLevel  string `hcl:"log_level,optional" env:"LOG_LEVEL"`
	LogFormat string `hcl:"log_format,optional" env:"LOG_FORMAT"`
}

type StorageConfig struct {
	Driver string `hcl:"driver,optional" env:"DRIVER"`
	// DSN is a file path for sqlite and a connection string for postgres.
	DSN string `hcl:"dsn,optional" env:"DSN"`
}

// DefaultsConfig is the game config applied when a create request leaves
// fields zero.
type DefaultsConfig struct {
	MinNumber int `hcl:"min_number,optional" env:"MIN_NUMBER"`
	MaxNumber int `hcl:"max_number,optional" env:"MAX_NUMBER"`
	CardCount int `hcl:"card_count,optional" env:"CARD_COUNT"`
	HP        int `hcl:"hp,optional" env:"HP"`
}

// Game converts the defaults into a game config.
func (d DefaultsConfig) Game() game.Config {
	return game.Config{MinNumber: d.MinNumber, MaxNumber: d.MaxNumber, CardCount: d.CardCount, HP: d.HP}
}

type TopicsConfig struct {
	// File is an HCL topic catalog. Empty means the built-in topics.
	File string `hcl:"file,optional" env:"FILE"`
}

type TelemetryConfig struct {
	// Endpoint is an OTLP/HTTP collector. Empty disables tracing.
	Endpoint    string `hcl:"endpoint,optional" env:"ENDPOINT"`
	ServiceName string `hcl:"service_name,optional" env:"SERVICE_NAME"`
}

// fileConfig mirrors Config with optional blocks for decoding.
type fileConfig struct {
	Server    *ServerConfig    `hcl:"server,block"`
	Storage   *StorageConfig   `hcl:"storage,block"`
	Defaults  *DefaultsConfig  `hcl:"defaults,block"`
	Topics    *TopicsConfig    `hcl:"topics,block"`
	Telemetry *TelemetryConfig `hcl:"telemetry,block"`
}

// Default returns the built-in configuration.
func Default() *Config {
	d := game.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Address:   "localhost:8080",
			LogLevel:  "info",
			LogFormat: "text",
		},
		Storage: StorageConfig{Driver: DriverMemory},
		Defaults: DefaultsConfig{
			MinNumber: d.MinNumber,
			MaxNumber: d.MaxNumber,
			CardCount: d.CardCount,
			HP:        d.HP,
		},
		Telemetry: TelemetryConfig{ServiceName: "ito"},
	}
}

// Load reads filename if it exists, then .env, then the environment.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		if err := cfg.loadFile(filename); err != nil {
			return nil, err
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads an HCL file over the defaults. A missing file yields the
// defaults unchanged.
func LoadFile(filename string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(filename); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(filename string) error {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var fc fileConfig
	diags = gohcl.DecodeBody(file.Body, nil, &fc)
	if diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}
	c.merge(fc)
	return nil
}

func (c *Config) merge(fc fileConfig) {
	if s := fc.Server; s != nil {
		setString(&c.Server.Address, s.Address)
		setString(&c.Server.LogLevel, s.LogLevel)
		setString(&c.Server.LogFormat, s.LogFormat)
	}
	if s := fc.Storage; s != nil {
		setString(&c.Storage.Driver, s.Driver)
		setString(&c.Storage.DSN, s.DSN)
	}
	if d := fc.Defaults; d != nil {
		setInt(&c.Defaults.MinNumber, d.MinNumber)
		setInt(&c.Defaults.MaxNumber, d.MaxNumber)
		setInt(&c.Defaults.CardCount, d.CardCount)
		setInt(&c.Defaults.HP, d.HP)
	}
	if t := fc.Topics; t != nil {
		setString(&c.Topics.File, t.File)
	}
	if t := fc.Telemetry; t != nil {
		setString(&c.Telemetry.Endpoint, t.Endpoint)
		setString(&c.Telemetry.ServiceName, t.ServiceName)
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// ApplyEnv overrides fields from ITO_* variables that are set.
func (c *Config) ApplyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the storage driver and the game defaults.
func (c *Config) Validate() error {
	drivers := []string{DriverMemory, DriverSQLite, DriverPostgres}
	if !slices.Contains(drivers, c.Storage.Driver) {
		return fmt.Errorf("invalid storage driver %q: want one of %v", c.Storage.Driver, drivers)
	}
	if c.Storage.Driver != DriverMemory && c.Storage.DSN == "" {
		return fmt.Errorf("storage driver %s requires a dsn", c.Storage.Driver)
	}
	if c.Server.LogFormat != "text" && c.Server.LogFormat != "json" {
		return fmt.Errorf("invalid log format %q", c.Server.LogFormat)
	}
	if err := c.Defaults.Game().Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	return nil
}
