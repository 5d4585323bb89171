package game

import (
	"fmt"
	"time"
)

// CardState is the lifecycle of a card: held → revealed → eliminated.
// Cascaded cards go straight from held to eliminated.
type CardState uint8

const (
	CardHeld CardState = iota
	CardRevealed
	CardEliminated
)

var cardStateNames = [...]string{
	CardHeld:       "held",
	CardRevealed:   "revealed",
	CardEliminated: "eliminated",
}

func (s CardState) String() string {
	if int(s) < len(cardStateNames) {
		return cardStateNames[s]
	}
	return fmt.Sprintf("CardState(%d)", uint8(s))
}

// MarshalText renders the state as its name.
func (s CardState) MarshalText() ([]byte, error) {
	if int(s) >= len(cardStateNames) {
		return nil, fmt.Errorf("unknown card state %d", uint8(s))
	}
	return []byte(cardStateNames[s]), nil
}

// UnmarshalText parses a state name.
func (s *CardState) UnmarshalText(text []byte) error {
	parsed, err := ParseCardState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseCardState parses a state name.
func ParseCardState(name string) (CardState, error) {
	for i, n := range cardStateNames {
		if n == name {
			return CardState(i), nil
		}
	}
	return 0, fmt.Errorf("unknown card state %q", name)
}

// Card is one secret number dealt to one player.
type Card struct {
	ID       string    `json:"id"`
	GameID   string    `json:"gameId"`
	PlayerID string    `json:"playerId"`
	Number   int       `json:"number"`
	State    CardState `json:"state"`

	// RevealedAt is set when the owner proposed the card. An eliminated card
	// with a zero RevealedAt was discarded by a cascade.
	RevealedAt   time.Time `json:"revealedAt,omitzero"`
	EliminatedAt time.Time `json:"eliminatedAt,omitzero"`
}

// Active reports whether the card still counts towards the game.
func (c Card) Active() bool {
	return c.State != CardEliminated
}

// Played reports whether the card was proposed by its owner.
func (c Card) Played() bool {
	return !c.RevealedAt.IsZero()
}

// Cascaded reports whether the card was discarded without being proposed.
func (c Card) Cascaded() bool {
	return c.State == CardEliminated && c.RevealedAt.IsZero()
}
