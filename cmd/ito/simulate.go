package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/lox/ito/cmd/ito/shared"
	"github.com/lox/ito/internal/game"
	"github.com/lox/ito/internal/simulator"
)

// SimulateCmd plays many bot games and prints aggregate statistics
type SimulateCmd struct {
	Games     int           `kong:"default='1000',help='Number of games to simulate'"`
	Players   int           `kong:"default='4',help='Bots per game'"`
	MinNumber int           `kong:"default='1',help='Lowest card number'"`
	MaxNumber int           `kong:"default='100',help='Highest card number'"`
	Cards     int           `kong:"default='1',help='Cards per player'"`
	HP        int           `kong:"name='hp',default='3',help='Failures allowed before the table loses'"`
	Misjudge  float64       `kong:"default='0.1',help='Chance a bot proposes out of turn (0-1)'"`
	Seed      int64         `kong:"default='0',help='RNG seed (0 for random)'"`
	Workers   int           `kong:"default='0',help='Concurrent games (0 for NumCPU)'"`
	Timeout   time.Duration `kong:"default='10s',help='Per-game timeout'"`
	Out       string        `kong:"type='path',help='Write a JSON report to this file'"`
	Verbose   bool          `kong:"short='V',help='Verbose logging'"`
}

func (c *SimulateCmd) Run(cli *CLI) error {
	level := "warn"
	if c.Verbose {
		level = "debug"
	}
	logger := shared.SetupLogger(level, "text")
	ctx := shared.SetupSignalHandler(logger)

	if c.Misjudge < 0 || c.Misjudge > 1 {
		return fmt.Errorf("misjudge must be between 0 and 1, got %v", c.Misjudge)
	}

	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	workers := c.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	sim := simulator.New(simulator.Config{
		Games:   c.Games,
		Players: c.Players,
		Game: game.Config{
			MinNumber: c.MinNumber,
			MaxNumber: c.MaxNumber,
			CardCount: c.Cards,
			HP:        c.HP,
		},
		Misjudge: c.Misjudge,
		Seed:     seed,
		Workers:  workers,
		Timeout:  c.Timeout,
		Logger:   logger,
	})

	fmt.Printf("Simulating %d games with %d players (seed %d)...\n", c.Games, c.Players, seed)
	start := time.Now()
	stats, err := sim.Run(ctx)
	if err != nil {
		return err
	}
	simulator.PrintSummary(os.Stdout, stats, sim.Config())
	if c.Out != "" {
		if err := simulator.WriteReport(c.Out, stats, sim.Config()); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", c.Out)
	}
	fmt.Printf("\nCompleted in %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}
