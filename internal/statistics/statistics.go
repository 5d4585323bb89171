// Package statistics aggregates the results of simulated games.
package statistics

import (
	"fmt"
	"math"
	"slices"

	"github.com/lox/ito/internal/game"
)

// GameResult is the outcome of one finished game.
type GameResult struct {
	Seed         int64 // RNG seed for this game (for replay)
	Outcome      game.Outcome
	FailureCount int
	Revealed     int // Cards on the table at the end
	Dealt        int // Cards dealt at the start
	Proposals    int
}

// Statistics tracks simulation results. Failure counts are kept in full for
// the median and percentiles.
type Statistics struct {
	Games     int
	Wins      int
	Losses    int
	Abandoned int

	SumFailures  float64
	SumFailures2 float64 // Sum of squares for variance calculation
	Failures     []float64

	SumRevealed  int
	SumDealt     int
	SumProposals int

	// Perfect games were won without a single failure.
	Perfect int
}

// Add incorporates a new game result into the statistics
func (s *Statistics) Add(r GameResult) {
	s.Games++
	switch r.Outcome {
	case game.OutcomeWin:
		s.Wins++
		if r.FailureCount == 0 {
			s.Perfect++
		}
	case game.OutcomeLoss:
		s.Losses++
	default:
		s.Abandoned++
	}

	f := float64(r.FailureCount)
	s.SumFailures += f
	s.SumFailures2 += f * f
	s.Failures = append(s.Failures, f)

	s.SumRevealed += r.Revealed
	s.SumDealt += r.Dealt
	s.SumProposals += r.Proposals
}

// Merge folds other into s.
func (s *Statistics) Merge(other *Statistics) {
	s.Games += other.Games
	s.Wins += other.Wins
	s.Losses += other.Losses
	s.Abandoned += other.Abandoned
	s.Perfect += other.Perfect
	s.SumFailures += other.SumFailures
	s.SumFailures2 += other.SumFailures2
	s.Failures = append(s.Failures, other.Failures...)
	s.SumRevealed += other.SumRevealed
	s.SumDealt += other.SumDealt
	s.SumProposals += other.SumProposals
}

// WinRate is the fraction of games won.
func (s *Statistics) WinRate() float64 {
	if s.Games == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Games)
}

// WinRateCI95 returns the normal-approximation 95% interval of the win rate,
// clamped to [0, 1].
func (s *Statistics) WinRateCI95() (float64, float64) {
	if s.Games == 0 {
		return 0, 0
	}
	p := s.WinRate()
	margin := 1.96 * math.Sqrt(p*(1-p)/float64(s.Games))
	return math.Max(0, p-margin), math.Min(1, p+margin)
}

// MeanFailures returns the mean failure count per game
func (s *Statistics) MeanFailures() float64 {
	if s.Games == 0 {
		return 0
	}
	return s.SumFailures / float64(s.Games)
}

// Variance returns the sample variance of the failure counts
func (s *Statistics) Variance() float64 {
	if s.Games < 2 {
		return 0
	}
	mean := s.MeanFailures()
	return (s.SumFailures2 - float64(s.Games)*mean*mean) / float64(s.Games-1)
}

// StdDev returns the sample standard deviation of the failure counts
func (s *Statistics) StdDev() float64 {
	return math.Sqrt(math.Max(0, s.Variance()))
}

// MeanRevealed returns the mean number of cards on the table at the end.
func (s *Statistics) MeanRevealed() float64 {
	if s.Games == 0 {
		return 0
	}
	return float64(s.SumRevealed) / float64(s.Games)
}

// MeanProposals returns the mean number of proposals per game.
func (s *Statistics) MeanProposals() float64 {
	if s.Games == 0 {
		return 0
	}
	return float64(s.SumProposals) / float64(s.Games)
}

// Median returns the median failure count
func (s *Statistics) Median() float64 {
	return s.Percentile(0.5)
}

// Percentile returns the failure count at the given percentile (0.0 to 1.0)
func (s *Statistics) Percentile(p float64) float64 {
	if len(s.Failures) == 0 {
		return 0
	}
	sorted := slices.Clone(s.Failures)
	slices.Sort(sorted)

	index := p * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// Validate checks that the counters are consistent with each other.
func (s *Statistics) Validate() error {
	if s.Wins+s.Losses+s.Abandoned != s.Games {
		return fmt.Errorf("outcome mismatch: %d wins + %d losses + %d abandoned != %d games",
			s.Wins, s.Losses, s.Abandoned, s.Games)
	}
	if len(s.Failures) != s.Games {
		return fmt.Errorf("recorded %d failure counts for %d games", len(s.Failures), s.Games)
	}
	if s.SumRevealed > s.SumDealt {
		return fmt.Errorf("revealed %d cards but dealt only %d", s.SumRevealed, s.SumDealt)
	}
	if s.Perfect > s.Wins {
		return fmt.Errorf("%d perfect games exceed %d wins", s.Perfect, s.Wins)
	}
	return nil
}
