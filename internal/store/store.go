// Package store defines the persistence contract the game service runs on.
//
// Every mutation of a game goes through Store.Update, which hands the callback
// a Tx scoped to that game. Implementations guarantee that two Update calls on
// the same game never interleave and that a callback returning an error
// leaves the committed state untouched.
package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/lox/ito/internal/game"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a uniqueness constraint was violated, such as a
	// second active game in a channel or a duplicate membership.
	ErrConflict = errors.New("record already exists")
)

// CardFilter narrows FindCards. Zero fields match everything.
type CardFilter struct {
	GameID   string
	PlayerID string
	States   []game.CardState
}

// Match reports whether c passes the filter.
func (f CardFilter) Match(c game.Card) bool {
	if f.GameID != "" && c.GameID != f.GameID {
		return false
	}
	if f.PlayerID != "" && c.PlayerID != f.PlayerID {
		return false
	}
	if len(f.States) > 0 && !slices.Contains(f.States, c.State) {
		return false
	}
	return true
}

// Active selects cards that have not been eliminated.
func Active() []game.CardState {
	return []game.CardState{game.CardHeld, game.CardRevealed}
}

// Member is one row of the membership relation.
type Member struct {
	game.Player
	JoinedAt time.Time
}

// Reader is the read side shared by Store and Tx.
type Reader interface {
	GetGame(ctx context.Context, id string) (game.Game, error)
	FindCards(ctx context.Context, filter CardFilter) ([]game.Card, error)
	// ListMembers returns members in join order.
	ListMembers(ctx context.Context, gameID string) ([]Member, error)
}

// Tx is the write view of one game inside Update.
type Tx interface {
	Reader
	// UpdateGame replaces the whole game record.
	UpdateGame(ctx context.Context, g game.Game) error
	// CreateCards inserts cards, assigning ids to those without one.
	CreateCards(ctx context.Context, cards []game.Card) ([]game.Card, error)
	UpdateCard(ctx context.Context, c game.Card) error
	DeleteCards(ctx context.Context, gameID string) error
	AddMember(ctx context.Context, gameID, playerID string, joinedAt time.Time) error
	RemoveMember(ctx context.Context, gameID, playerID string) error
	ClearMembers(ctx context.Context, gameID string) error
}

// Store is a durable home for games, players, cards and memberships.
type Store interface {
	Reader
	// CreateGame inserts g and runs fn, when not nil, against it in the same
	// transaction. Nothing is stored if fn fails. It fails with ErrConflict
	// when the channel already has a waiting or playing game.
	CreateGame(ctx context.Context, g game.Game, fn func(tx Tx) error) error
	// DeleteGame removes a game with its cards and memberships.
	DeleteGame(ctx context.Context, id string) error
	FindActiveGameByChannel(ctx context.Context, channelID string) (game.Game, error)
	// FindOrCreatePlayer returns the player with externalID, creating it or
	// refreshing its display name.
	FindOrCreatePlayer(ctx context.Context, externalID, name string) (game.Player, error)
	GetPlayer(ctx context.Context, id string) (game.Player, error)
	// Update runs fn atomically against gameID. Callbacks must only use tx.
	Update(ctx context.Context, gameID string, fn func(tx Tx) error) error
	// Read runs fn against one consistent snapshot of gameID. Concurrent
	// updates are either wholly visible to it or not at all.
	Read(ctx context.Context, gameID string, fn func(r Reader) error) error
	Close() error
}

// IsMember reports whether playerID is among members.
func IsMember(members []Member, playerID string) bool {
	return slices.ContainsFunc(members, func(m Member) bool { return m.ID == playerID })
}
