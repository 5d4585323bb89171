package game

import (
	"slices"
	"time"
)

// Verdict is the termination check run after every proposal.
type Verdict struct {
	Over    bool    `json:"over"`
	Outcome Outcome `json:"outcome,omitempty"`
}

// Resolution describes what one proposal did to the game.
type Resolution struct {
	// Card is the proposed card in its final state.
	Card    Card `json:"card"`
	Correct bool `json:"correct"`
	// Expected is the number that would have been correct.
	Expected int `json:"expected"`
	// Cascaded holds the other cards discarded by a failed proposal.
	Cascaded     []Card  `json:"cascaded,omitempty"`
	Revealed     []int   `json:"revealed"`
	FailureCount int     `json:"failureCount"`
	Verdict      Verdict `json:"verdict"`
}

// Propose plays playerID's lowest held card. The game and ledger are
// mutated in place; callers persist g and l.Changed() together and then apply
// the verdict. Membership is checked by the caller.
func Propose(g *Game, l *Ledger, playerID string, now time.Time) (Resolution, error) {
	if g.Status != StatusPlaying {
		return Resolution{}, Errorf(CodeInvalidState, "game is %s, not playing", g.Status)
	}
	i := l.lowestHeldIndex(playerID)
	if i < 0 {
		return Resolution{}, ErrNoCardsRemaining
	}

	// The proposed card is itself active, so an expected number always exists.
	expected, _ := l.NextExpected()
	number := l.cards[i].Number

	l.reveal(i, now)
	res := Resolution{Expected: expected, Correct: number == expected}

	if res.Correct {
		l.eliminate(i, now)
	} else {
		g.FailureCount++
		for j := range l.cards {
			c := l.cards[j]
			if c.Number > number {
				break
			}
			if !c.Active() {
				continue
			}
			l.eliminate(j, now)
			if j != i {
				res.Cascaded = append(res.Cascaded, l.cards[j])
			}
		}
	}

	g.Revealed = l.Revealed()
	res.Card = l.cards[i]
	res.Revealed = slices.Clone(g.Revealed)
	res.FailureCount = g.FailureCount
	res.Verdict = Judge(g, l, res.Correct)
	return res, nil
}

// Judge decides whether the game is over. lastCorrect reports whether the
// proposal that led here succeeded: emptying the table with a failure is a
// loss even though the ledger looks the same as after a win.
func Judge(g *Game, l *Ledger, lastCorrect bool) Verdict {
	if g.FailureCount >= g.Config.HP {
		return Verdict{Over: true, Outcome: OutcomeLoss}
	}
	if l.ActiveCount() == 0 {
		if lastCorrect {
			return Verdict{Over: true, Outcome: OutcomeWin}
		}
		return Verdict{Over: true, Outcome: OutcomeLoss}
	}
	return Verdict{}
}
