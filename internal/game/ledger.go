package game

import (
	"cmp"
	"slices"
	"time"
)

// Ledger is the in-memory view of every card dealt in one game. It is loaded
// from the store at the start of a transaction, mutated by the resolver and
// written back through Changed.
type Ledger struct {
	cards   []Card
	changed map[int]struct{}
}

// NewLedger copies cards and orders them by number.
func NewLedger(cards []Card) *Ledger {
	sorted := slices.Clone(cards)
	slices.SortFunc(sorted, func(a, b Card) int {
		return cmp.Compare(a.Number, b.Number)
	})
	return &Ledger{cards: sorted, changed: make(map[int]struct{})}
}

// Cards returns a copy of every card in ascending number order.
func (l *Ledger) Cards() []Card {
	return slices.Clone(l.cards)
}

// Len is the number of dealt cards.
func (l *Ledger) Len() int {
	return len(l.cards)
}

// Active returns the cards still in play, ascending.
func (l *Ledger) Active() []Card {
	var out []Card
	for _, c := range l.cards {
		if c.Active() {
			out = append(out, c)
		}
	}
	return out
}

// ActiveCount is the number of cards still in play across all players.
func (l *Ledger) ActiveCount() int {
	n := 0
	for _, c := range l.cards {
		if c.Active() {
			n++
		}
	}
	return n
}

// ActiveCountFor is the number of cards playerID still holds.
func (l *Ledger) ActiveCountFor(playerID string) int {
	n := 0
	for _, c := range l.cards {
		if c.PlayerID == playerID && c.Active() {
			n++
		}
	}
	return n
}

// Held returns playerID's held cards, ascending.
func (l *Ledger) Held(playerID string) []Card {
	var out []Card
	for _, c := range l.cards {
		if c.PlayerID == playerID && c.State == CardHeld {
			out = append(out, c)
		}
	}
	return out
}

// ByPlayer returns every card of playerID regardless of state, ascending.
func (l *Ledger) ByPlayer(playerID string) []Card {
	var out []Card
	for _, c := range l.cards {
		if c.PlayerID == playerID {
			out = append(out, c)
		}
	}
	return out
}

// LowestHeld is the card playerID is forced to propose next.
func (l *Ledger) LowestHeld(playerID string) (Card, bool) {
	i := l.lowestHeldIndex(playerID)
	if i < 0 {
		return Card{}, false
	}
	return l.cards[i], true
}

func (l *Ledger) lowestHeldIndex(playerID string) int {
	for i, c := range l.cards {
		if c.PlayerID == playerID && c.State == CardHeld {
			return i
		}
	}
	return -1
}

// Revealed is the sorted list of eliminated numbers. It is the authoritative
// source for Game.Revealed.
func (l *Ledger) Revealed() []int {
	out := []int{}
	for _, c := range l.cards {
		if c.State == CardEliminated {
			out = append(out, c.Number)
		}
	}
	return out
}

// Frontier is the highest eliminated number.
func (l *Ledger) Frontier() (int, bool) {
	for i := len(l.cards) - 1; i >= 0; i-- {
		if l.cards[i].State == CardEliminated {
			return l.cards[i].Number, true
		}
	}
	return 0, false
}

// NextExpected is the only number that can currently be proposed correctly:
// the smallest active number above the frontier.
func (l *Ledger) NextExpected() (int, bool) {
	frontier, hasFrontier := l.Frontier()
	for _, c := range l.cards {
		if !c.Active() {
			continue
		}
		if hasFrontier && c.Number <= frontier {
			continue
		}
		return c.Number, true
	}
	return 0, false
}

// Changed returns the cards mutated since the ledger was built.
func (l *Ledger) Changed() []Card {
	idx := make([]int, 0, len(l.changed))
	for i := range l.changed {
		idx = append(idx, i)
	}
	slices.Sort(idx)
	out := make([]Card, len(idx))
	for j, i := range idx {
		out[j] = l.cards[i]
	}
	return out
}

func (l *Ledger) reveal(i int, now time.Time) {
	l.cards[i].State = CardRevealed
	l.cards[i].RevealedAt = now
	l.changed[i] = struct{}{}
}

func (l *Ledger) eliminate(i int, now time.Time) {
	l.cards[i].State = CardEliminated
	l.cards[i].EliminatedAt = now
	l.changed[i] = struct{}{}
}
