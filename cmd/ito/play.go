package main

import (
	"fmt"
	"os"

	"github.com/lox/ito/cmd/ito/shared"
	"github.com/lox/ito/internal/config"
	"github.com/lox/ito/internal/game"
	"github.com/lox/ito/internal/randutil"
	"github.com/lox/ito/internal/service"
	"github.com/lox/ito/internal/store/memory"
	"github.com/lox/ito/internal/tui"
)

// PlayCmd runs a pass-and-play game in the terminal
type PlayCmd struct {
	Names     []string `kong:"default='Ann,Ben,Cat',help='Player names, comma separated'"`
	MinNumber int      `kong:"help='Lowest card number (0 uses config)'"`
	MaxNumber int      `kong:"help='Highest card number (0 uses config)'"`
	Cards     int      `kong:"help='Cards per player (0 uses config)'"`
	HP        int      `kong:"name='hp',help='Failures allowed before the table loses (0 uses config)'"`
	Topics    string   `kong:"type='path',help='HCL topic catalog'"`
	Seed      *int64   `kong:"help='Deterministic RNG seed (optional)'"`
	LogFile   string   `kong:"type='path',default='ito-play.log',help='Debug log file'"`
}

func (c *PlayCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if c.Topics != "" {
		cfg.Topics.File = c.Topics
	}

	logFile, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()
	logger := shared.NewLogger(logFile, "debug", "text")
	ctx := shared.SetupSignalHandler(logger)

	rng, seed := randutil.FromOptionalSeed(c.Seed)
	catalog, err := loadTopics(cfg.Topics, randutil.New(seed+1))
	if err != nil {
		return err
	}
	svc := service.New(memory.New(), catalog, logger,
		service.WithRand(rng),
		service.WithDefaults(cfg.Defaults.Game()),
	)

	return tui.Run(ctx, svc, logger, tui.Table{
		Names: c.Names,
		Config: game.Config{
			MinNumber: c.MinNumber,
			MaxNumber: c.MaxNumber,
			CardCount: c.Cards,
			HP:        c.HP,
		},
	})
}
