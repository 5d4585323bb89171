package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/lox/ito/internal/game"
	"github.com/lox/ito/internal/store"
)

// tx works on a staged copy of one game record.
type tx struct {
	store *Store
	id    string
	rec   *record
}

func (t *tx) scoped(gameID string) error {
	if gameID != t.id {
		return fmt.Errorf("transaction is scoped to game %s, not %s", t.id, gameID)
	}
	return nil
}

func (t *tx) GetGame(ctx context.Context, id string) (game.Game, error) {
	if err := t.scoped(id); err != nil {
		return game.Game{}, err
	}
	return t.rec.game.Clone(), nil
}

func (t *tx) FindCards(ctx context.Context, filter store.CardFilter) ([]game.Card, error) {
	if filter.GameID == "" {
		filter.GameID = t.id
	}
	if err := t.scoped(filter.GameID); err != nil {
		return nil, err
	}
	out := appendMatching(nil, t.rec.cards, filter)
	sortCards(out)
	return out, nil
}

func (t *tx) ListMembers(ctx context.Context, gameID string) ([]store.Member, error) {
	if err := t.scoped(gameID); err != nil {
		return nil, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.resolveMembers(t.rec.members), nil
}

func (t *tx) UpdateGame(ctx context.Context, g game.Game) error {
	if err := t.scoped(g.ID); err != nil {
		return err
	}
	t.rec.game = g.Clone()
	return nil
}

func (t *tx) CreateCards(ctx context.Context, cards []game.Card) ([]game.Card, error) {
	out := make([]game.Card, len(cards))
	for i, c := range cards {
		if err := t.scoped(c.GameID); err != nil {
			return nil, err
		}
		if c.ID == "" {
			c.ID = t.store.newID()
		}
		for _, existing := range t.rec.cards {
			if existing.ID == c.ID || existing.Number == c.Number {
				return nil, store.ErrConflict
			}
		}
		t.rec.cards = append(t.rec.cards, c)
		out[i] = c
	}
	return out, nil
}

func (t *tx) UpdateCard(ctx context.Context, c game.Card) error {
	if err := t.scoped(c.GameID); err != nil {
		return err
	}
	i := slices.IndexFunc(t.rec.cards, func(existing game.Card) bool { return existing.ID == c.ID })
	if i < 0 {
		return store.ErrNotFound
	}
	t.rec.cards[i] = c
	return nil
}

func (t *tx) DeleteCards(ctx context.Context, gameID string) error {
	if err := t.scoped(gameID); err != nil {
		return err
	}
	t.rec.cards = nil
	return nil
}

func (t *tx) AddMember(ctx context.Context, gameID, playerID string, joinedAt time.Time) error {
	if err := t.scoped(gameID); err != nil {
		return err
	}
	t.store.mu.RLock()
	_, known := t.store.players[playerID]
	t.store.mu.RUnlock()
	if !known {
		return store.ErrNotFound
	}
	if slices.ContainsFunc(t.rec.members, func(m membership) bool { return m.playerID == playerID }) {
		return store.ErrConflict
	}
	t.rec.members = append(t.rec.members, membership{playerID: playerID, joinedAt: joinedAt})
	return nil
}

func (t *tx) RemoveMember(ctx context.Context, gameID, playerID string) error {
	if err := t.scoped(gameID); err != nil {
		return err
	}
	i := slices.IndexFunc(t.rec.members, func(m membership) bool { return m.playerID == playerID })
	if i < 0 {
		return store.ErrNotFound
	}
	t.rec.members = slices.Delete(t.rec.members, i, i+1)
	return nil
}

func (t *tx) ClearMembers(ctx context.Context, gameID string) error {
	if err := t.scoped(gameID); err != nil {
		return err
	}
	t.rec.members = nil
	return nil
}
