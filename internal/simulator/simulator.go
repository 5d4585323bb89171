// Package simulator plays many games between bots to measure how a config
// plays out.
package simulator

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lox/ito/internal/game"
	"github.com/lox/ito/internal/randutil"
	"github.com/lox/ito/internal/service"
	"github.com/lox/ito/internal/statistics"
	"github.com/lox/ito/internal/store"
	"github.com/lox/ito/internal/store/memory"
	"github.com/lox/ito/internal/topic"
)

// Config holds configuration for running simulations
type Config struct {
	Games   int
	Players int
	Game    game.Config
	// Misjudge is the chance that a random player proposes instead of the
	// one holding the lowest card.
	Misjudge float64
	Seed     int64
	// Workers bounds how many games run at once.
	Workers int
	Timeout time.Duration
	Logger  *log.Logger
	// Store defaults to a fresh memory store.
	Store store.Store
}

// Simulator runs ito games between bots
type Simulator struct {
	config Config
}

// New creates a new simulator with the given configuration
func New(config Config) *Simulator {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	config.Game = config.Game.WithDefaults(game.DefaultConfig())
	return &Simulator{config: config}
}

// Config returns the configuration with defaults applied.
func (s *Simulator) Config() Config {
	return s.config
}

// Run plays every game and returns the aggregated results.
func (s *Simulator) Run(ctx context.Context) (*statistics.Statistics, error) {
	if s.config.Players < game.MinPlayers {
		return nil, fmt.Errorf("need at least %d players, got %d", game.MinPlayers, s.config.Players)
	}
	cfg := s.config.Game
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.CheckStart(s.config.Players); err != nil {
		return nil, err
	}

	st := s.config.Store
	if st == nil {
		st = memory.New()
	}
	topics := topic.Builtin(randutil.New(s.config.Seed))

	// Bots are shared by every game; a player may sit in many channels.
	bots := make([]game.Player, s.config.Players)
	for i := range bots {
		p, err := st.FindOrCreatePlayer(ctx, fmt.Sprintf("sim-bot-%d", i+1), fmt.Sprintf("Bot%d", i+1))
		if err != nil {
			return nil, err
		}
		bots[i] = p
	}

	var (
		mu    sync.Mutex
		stats = &statistics.Statistics{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)
	for i := range s.config.Games {
		seed := randutil.Derive(s.config.Seed, i)
		g.Go(func() error {
			gameCtx, cancel := context.WithTimeout(gctx, s.config.Timeout)
			defer cancel()

			// Each game deals from its own stream so results do not depend
			// on scheduling.
			svc := service.New(st, topics, s.config.Logger, service.WithRand(randutil.New(seed)))
			result, err := s.playGame(gameCtx, svc, bots, cfg, i, seed)
			if err != nil {
				return fmt.Errorf("game %d (seed %d): %w", i+1, seed, err)
			}
			mu.Lock()
			stats.Add(result)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := stats.Validate(); err != nil {
		return nil, fmt.Errorf("statistics validation failed: %w", err)
	}
	return stats, nil
}

// playGame runs one game to completion and deletes it afterwards.
func (s *Simulator) playGame(ctx context.Context, svc *service.GameService, bots []game.Player, cfg game.Config, index int, seed int64) (statistics.GameResult, error) {
	rng := randutil.New(seed)
	creator := bots[0]

	created, err := svc.CreateGame(ctx, service.CreateParams{
		ChannelID: fmt.Sprintf("sim-%d", index),
		CreatorID: creator.ID,
		Config:    cfg,
	})
	if err != nil {
		return statistics.GameResult{}, err
	}
	gameID := created.Game.ID
	defer func() {
		if err := svc.DeleteGame(context.WithoutCancel(ctx), gameID, creator.ID); err != nil {
			s.config.Logger.Warn("Failed to delete simulated game", "game", gameID, "error", err)
		}
	}()

	for _, bot := range bots[1:] {
		if _, err := svc.JoinGame(ctx, gameID, bot.ID); err != nil {
			return statistics.GameResult{}, err
		}
	}
	res, err := svc.StartGame(ctx, gameID, creator.ID)
	if err != nil {
		return statistics.GameResult{}, err
	}

	result := statistics.GameResult{Seed: seed, Dealt: res.View.ActiveCards}
	for !res.Ended() {
		proposer, ok := choose(res.Hands, s.config.Misjudge, rng)
		if !ok {
			return result, fmt.Errorf("game %s still playing with no cards held", gameID)
		}
		res, err = svc.ProposeCard(ctx, gameID, proposer)
		if err != nil {
			return result, err
		}
		result.Proposals++
	}

	result.Outcome = res.Game.Outcome
	result.FailureCount = res.Game.FailureCount
	result.Revealed = len(res.Game.Revealed)
	s.config.Logger.Debug("Simulated game finished", "game", gameID, "seed", seed,
		"outcome", result.Outcome, "failures", result.FailureCount, "proposals", result.Proposals)
	return result, nil
}

// choose picks who proposes next. A well-judged table lets the holder of
// the lowest card go; a misjudged one lets anyone holding cards go.
func choose(hands []service.Hand, misjudge float64, rng *rand.Rand) (string, bool) {
	var holding []service.Hand
	for _, h := range hands {
		if len(h.Held) > 0 {
			holding = append(holding, h)
		}
	}
	if len(holding) == 0 {
		return "", false
	}
	if misjudge > 0 && rng.Float64() < misjudge {
		return holding[rng.IntN(len(holding))].PlayerID, true
	}
	lowest := holding[0]
	for _, h := range holding[1:] {
		if h.Held[0] < lowest.Held[0] {
			lowest = h
		}
	}
	return lowest.PlayerID, true
}

// PrintSummary writes a readable report of simulation results.
func PrintSummary(w io.Writer, stats *statistics.Statistics, cfg Config) {
	low, high := stats.WinRateCI95()

	fmt.Fprintf(w, "\n=== RESULTS: %d players, %d cards each, range %d-%d, hp %d, misjudge %.0f%% ===\n",
		cfg.Players, cfg.Game.CardCount, cfg.Game.MinNumber, cfg.Game.MaxNumber, cfg.Game.HP, cfg.Misjudge*100)
	fmt.Fprintf(w, "Games played: %d\n", stats.Games)
	fmt.Fprintf(w, "Wins: %d (%.1f%%, 95%% CI [%.1f%%, %.1f%%])\n", stats.Wins, stats.WinRate()*100, low*100, high*100)
	fmt.Fprintf(w, "Perfect games: %d\n", stats.Perfect)
	fmt.Fprintf(w, "Losses: %d\n", stats.Losses)

	fmt.Fprintf(w, "\n=== FAILURES ===\n")
	fmt.Fprintf(w, "Mean: %.3f  Median: %.1f  Std Dev: %.3f\n", stats.MeanFailures(), stats.Median(), stats.StdDev())
	fmt.Fprintf(w, "Percentiles: P25=%.1f, P75=%.1f, P95=%.1f\n", stats.Percentile(0.25), stats.Percentile(0.75), stats.Percentile(0.95))

	fmt.Fprintf(w, "\n=== TABLE ===\n")
	fmt.Fprintf(w, "Mean revealed: %.2f of %d dealt\n", stats.MeanRevealed(), cfg.Players*cfg.Game.CardCount)
	fmt.Fprintf(w, "Mean proposals: %.2f\n", stats.MeanProposals())
}
