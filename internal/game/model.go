package game

import (
	"slices"
	"time"
)

// Topic is the theme players use to describe their numbers.
type Topic struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Player is a person known by a stable external id. Players outlive games.
type Player struct {
	ID         string `json:"id"`
	ExternalID string `json:"externalId"`
	Name       string `json:"name"`
}

// Game is the persisted record of one session in one channel.
type Game struct {
	ID        string `json:"id"`
	ChannelID string `json:"channelId"`
	// CreatedBy is the player id of the creator.
	CreatedBy string `json:"createdBy"`
	Config    Config `json:"config"`

	Status       Status  `json:"status"`
	Outcome      Outcome `json:"outcome,omitempty"`
	FailureCount int     `json:"failureCount"`
	// Revealed is strictly ascending. It mirrors the eliminated cards of the
	// ledger and is rewritten from it in the same transaction.
	Revealed []int  `json:"revealed"`
	Topic    *Topic `json:"topic,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	StartedAt time.Time `json:"startedAt,omitzero"`
	EndedAt   time.Time `json:"endedAt,omitzero"`
}

// Clone returns a deep copy safe to mutate.
func (g Game) Clone() Game {
	g.Revealed = slices.Clone(g.Revealed)
	if g.Topic != nil {
		t := *g.Topic
		g.Topic = &t
	}
	return g
}

// IsCreator reports whether playerID created the game.
func (g Game) IsCreator(playerID string) bool {
	return playerID != "" && g.CreatedBy == playerID
}

// Frontier is the highest number on the table.
func (g Game) Frontier() (int, bool) {
	if len(g.Revealed) == 0 {
		return 0, false
	}
	return g.Revealed[len(g.Revealed)-1], true
}

// LivesLeft is how many more failures the table can absorb.
func (g Game) LivesLeft() int {
	return max(g.Config.HP-g.FailureCount, 0)
}
