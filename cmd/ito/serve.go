package main

import (
	"context"
	"fmt"
	"time"

	"github.com/lox/ito/cmd/ito/shared"
	"github.com/lox/ito/internal/config"
	"github.com/lox/ito/internal/randutil"
	"github.com/lox/ito/internal/server"
	"github.com/lox/ito/internal/service"
	"github.com/lox/ito/internal/telemetry"
)

// ServeCmd runs the websocket gateway over the game service
type ServeCmd struct {
	Addr      string `kong:"help='Server address (overrides config)'"`
	Storage   string `kong:"help='Storage driver: memory, sqlite, postgres (overrides config)'"`
	DSN       string `kong:"name='dsn',help='SQLite path or Postgres connection string (overrides config)'"`
	Topics    string `kong:"type='path',help='HCL topic catalog (overrides config)'"`
	LogLevel  string `kong:"help='Log level: debug, info, warn, error (overrides config)'"`
	LogFormat string `kong:"help='Log format: text, json (overrides config)'"`
	Seed      *int64 `kong:"help='Deterministic RNG seed (optional)'"`
}

func (c *ServeCmd) apply(cfg *config.Config) {
	if c.Addr != "" {
		cfg.Server.Address = c.Addr
	}
	if c.Storage != "" {
		cfg.Storage.Driver = c.Storage
	}
	if c.DSN != "" {
		cfg.Storage.DSN = c.DSN
	}
	if c.Topics != "" {
		cfg.Topics.File = c.Topics
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	if c.LogFormat != "" {
		cfg.Server.LogFormat = c.LogFormat
	}
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	c.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := shared.SetupLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)
	ctx := shared.SetupSignalHandler(logger)

	rng, seed := randutil.FromOptionalSeed(c.Seed)
	logger.Info("Using RNG seed", "seed", seed)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("Failed to flush traces", "error", err)
		}
	}()

	st, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	catalog, err := loadTopics(cfg.Topics, randutil.New(seed+1))
	if err != nil {
		return err
	}

	svc := service.New(st, catalog, logger,
		service.WithRand(rng),
		service.WithDefaults(cfg.Defaults.Game()),
	)

	logger.Info("Starting ito server",
		"addr", cfg.Server.Address,
		"storage", cfg.Storage.Driver,
		"topics", len(catalog.List()))

	return server.NewServer(cfg.Server.Address, svc, logger).Serve(ctx)
}
