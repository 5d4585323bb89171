package simulator

import (
	"encoding/json"
	"fmt"

	"github.com/lox/ito/internal/fileutil"
	"github.com/lox/ito/internal/game"
	"github.com/lox/ito/internal/statistics"
)

// Report is the machine-readable summary of a simulation run.
type Report struct {
	Games     int         `json:"games"`
	Players   int         `json:"players"`
	Config    game.Config `json:"config"`
	Misjudge  float64     `json:"misjudge"`
	Seed      int64       `json:"seed"`
	Wins      int         `json:"wins"`
	Losses    int         `json:"losses"`
	Abandoned int         `json:"abandoned"`
	Perfect   int         `json:"perfect"`
	WinRate   float64     `json:"winRate"`
	WinRateCI [2]float64  `json:"winRateCi95"`

	MeanFailures   float64 `json:"meanFailures"`
	MedianFailures float64 `json:"medianFailures"`
	StdDevFailures float64 `json:"stddevFailures"`
	MeanRevealed   float64 `json:"meanRevealed"`
	MeanProposals  float64 `json:"meanProposals"`
}

// NewReport summarises stats for cfg.
func NewReport(stats *statistics.Statistics, cfg Config) Report {
	low, high := stats.WinRateCI95()
	return Report{
		Games:          stats.Games,
		Players:        cfg.Players,
		Config:         cfg.Game,
		Misjudge:       cfg.Misjudge,
		Seed:           cfg.Seed,
		Wins:           stats.Wins,
		Losses:         stats.Losses,
		Abandoned:      stats.Abandoned,
		Perfect:        stats.Perfect,
		WinRate:        stats.WinRate(),
		WinRateCI:      [2]float64{low, high},
		MeanFailures:   stats.MeanFailures(),
		MedianFailures: stats.Median(),
		StdDevFailures: stats.StdDev(),
		MeanRevealed:   stats.MeanRevealed(),
		MeanProposals:  stats.MeanProposals(),
	}
}

// WriteReport writes the JSON report to filename atomically.
func WriteReport(filename string, stats *statistics.Statistics, cfg Config) error {
	data, err := json.MarshalIndent(NewReport(stats, cfg), "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return fileutil.WriteFileAtomic(filename, append(data, '\n'), 0o644)
}
