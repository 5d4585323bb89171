// Package storetest holds the behaviour every store.Store implementation
// must share, run from each implementation's tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/ito/internal/game"
	"github.com/lox/ito/internal/gameid"
	"github.com/lox/ito/internal/store"
)

var now = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

// Run exercises open against the shared contract. open must return an
// empty store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Helper()
	tests := map[string]func(t *testing.T, s store.Store){
		"game round trip":             testGameRoundTrip,
		"one active game per channel": testChannelUniqueness,
		"players":                     testPlayers,
		"members":                     testMembers,
		"cards":                       testCards,
		"rollback on error":           testRollback,
		"create seats atomically":     testCreateWithMembers,
		"read snapshot":               testReadSnapshot,
		"updates serialize":           testSerializedUpdates,
		"delete game":                 testDeleteGame,
		"missing game":                testMissingGame,
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func newGame(channel string) game.Game {
	return game.Game{
		ID:        gameid.Generate(),
		ChannelID: channel,
		CreatedBy: "creator",
		Config:    game.DefaultConfig(),
		Status:    game.StatusWaiting,
		Revealed:  []int{},
		CreatedAt: now,
	}
}

func testGameRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	g := newGame("c1")
	require.NoError(t, s.CreateGame(ctx, g, nil))

	got, err := s.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.ID, got.ID)
	assert.Equal(t, g.Config, got.Config)
	assert.Equal(t, game.StatusWaiting, got.Status)
	assert.Empty(t, got.Revealed)
	assert.Nil(t, got.Topic)
	assert.True(t, g.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, got.StartedAt.IsZero())

	g.Status = game.StatusFinished
	g.Outcome = game.OutcomeLoss
	g.FailureCount = 2
	g.Revealed = []int{3, 5, 80}
	g.Topic = &game.Topic{ID: "t1", Title: "Animals", Description: "small - large"}
	g.StartedAt = now.Add(time.Minute)
	g.EndedAt = now.Add(2 * time.Minute)
	require.NoError(t, s.Update(ctx, g.ID, func(tx store.Tx) error {
		return tx.UpdateGame(ctx, g)
	}))

	got, err = s.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, game.StatusFinished, got.Status)
	assert.Equal(t, game.OutcomeLoss, got.Outcome)
	assert.Equal(t, 2, got.FailureCount)
	assert.Equal(t, []int{3, 5, 80}, got.Revealed)
	require.NotNil(t, got.Topic)
	assert.Equal(t, *g.Topic, *got.Topic)
	assert.True(t, g.StartedAt.Equal(got.StartedAt))
	assert.True(t, g.EndedAt.Equal(got.EndedAt))
}

func testChannelUniqueness(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := newGame("shared")
	require.NoError(t, s.CreateGame(ctx, first, nil))
	require.ErrorIs(t, s.CreateGame(ctx, newGame("shared"), nil), store.ErrConflict)
	require.NoError(t, s.CreateGame(ctx, newGame("other"), nil))

	active, err := s.FindActiveGameByChannel(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	first.Status = game.StatusCancelled
	require.NoError(t, s.Update(ctx, first.ID, func(tx store.Tx) error {
		return tx.UpdateGame(ctx, first)
	}))
	_, err = s.FindActiveGameByChannel(ctx, "shared")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.CreateGame(ctx, newGame("shared"), nil))
}

func testCreateWithMembers(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice, err := s.FindOrCreatePlayer(ctx, "U-alice", "alice")
	require.NoError(t, err)

	failed := newGame("seats")
	boom := errors.New("boom")
	err = s.CreateGame(ctx, failed, func(tx store.Tx) error {
		if err := tx.AddMember(ctx, failed.ID, alice.ID, now); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	_, err = s.GetGame(ctx, failed.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.FindActiveGameByChannel(ctx, "seats")
	require.ErrorIs(t, err, store.ErrNotFound)

	orphan := newGame("seats")
	err = s.CreateGame(ctx, orphan, func(tx store.Tx) error {
		return tx.AddMember(ctx, orphan.ID, "ghost", now)
	})
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.FindActiveGameByChannel(ctx, "seats")
	require.ErrorIs(t, err, store.ErrNotFound)

	g := newGame("seats")
	require.NoError(t, s.CreateGame(ctx, g, func(tx store.Tx) error {
		got, err := tx.GetGame(ctx, g.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, g.ChannelID, got.ChannelID)
		return tx.AddMember(ctx, g.ID, alice.ID, now)
	}))
	members, err := s.ListMembers(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, alice.ID, members[0].ID)

	require.ErrorIs(t, s.CreateGame(ctx, newGame("seats"), func(tx store.Tx) error {
		return nil
	}), store.ErrConflict)
}

func testReadSnapshot(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice, err := s.FindOrCreatePlayer(ctx, "U-alice", "alice")
	require.NoError(t, err)
	g := newGame("read")
	require.NoError(t, s.CreateGame(ctx, g, func(tx store.Tx) error {
		return tx.AddMember(ctx, g.ID, alice.ID, now)
	}))

	boom := errors.New("boom")
	require.ErrorIs(t, s.Update(ctx, g.ID, func(tx store.Tx) error {
		if err := tx.ClearMembers(ctx, g.ID); err != nil {
			return err
		}
		return boom
	}), boom)

	require.NoError(t, s.Read(ctx, g.ID, func(r store.Reader) error {
		got, err := r.GetGame(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, g.ChannelID, got.ChannelID)
		members, err := r.ListMembers(ctx, g.ID)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, alice.ID, members[0].ID)
		cards, err := r.FindCards(ctx, store.CardFilter{GameID: g.ID})
		require.NoError(t, err)
		assert.Empty(t, cards)
		return nil
	}))

	called := false
	err = s.Read(ctx, "missing", func(store.Reader) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, called)
}

func testPlayers(t *testing.T, s store.Store) {
	ctx := context.Background()
	p, err := s.FindOrCreatePlayer(ctx, "U123", "alice")
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	assert.Equal(t, "alice", p.Name)

	again, err := s.FindOrCreatePlayer(ctx, "U123", "Alice B")
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
	assert.Equal(t, "Alice B", again.Name)

	got, err := s.GetPlayer(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, again, got)

	_, err = s.GetPlayer(ctx, "nobody")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testMembers(t *testing.T, s store.Store) {
	ctx := context.Background()
	g := newGame("c1")
	require.NoError(t, s.CreateGame(ctx, g, nil))
	alice, err := s.FindOrCreatePlayer(ctx, "U1", "alice")
	require.NoError(t, err)
	bob, err := s.FindOrCreatePlayer(ctx, "U2", "bob")
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, g.ID, func(tx store.Tx) error {
		if err := tx.AddMember(ctx, g.ID, alice.ID, now); err != nil {
			return err
		}
		return tx.AddMember(ctx, g.ID, bob.ID, now.Add(time.Second))
	}))

	members, err := s.ListMembers(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "alice", members[0].Name)
	assert.Equal(t, "bob", members[1].Name)
	assert.True(t, store.IsMember(members, bob.ID))

	err = s.Update(ctx, g.ID, func(tx store.Tx) error {
		return tx.AddMember(ctx, g.ID, alice.ID, now)
	})
	require.ErrorIs(t, err, store.ErrConflict)

	require.NoError(t, s.Update(ctx, g.ID, func(tx store.Tx) error {
		return tx.RemoveMember(ctx, g.ID, alice.ID)
	}))
	err = s.Update(ctx, g.ID, func(tx store.Tx) error {
		return tx.RemoveMember(ctx, g.ID, alice.ID)
	})
	require.ErrorIs(t, err, store.ErrNotFound)

	members, err = s.ListMembers(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, bob.ID, members[0].ID)

	require.NoError(t, s.Update(ctx, g.ID, func(tx store.Tx) error {
		return tx.ClearMembers(ctx, g.ID)
	}))
	members, err = s.ListMembers(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func testCards(t *testing.T, s store.Store) {
	ctx := context.Background()
	g := newGame("c1")
	require.NoError(t, s.CreateGame(ctx, g, nil))
	alice, err := s.FindOrCreatePlayer(ctx, "U1", "alice")
	require.NoError(t, err)
	bob, err := s.FindOrCreatePlayer(ctx, "U2", "bob")
	require.NoError(t, err)

	var created []game.Card
	require.NoError(t, s.Update(ctx, g.ID, func(tx store.Tx) error {
		created, err = tx.CreateCards(ctx, []game.Card{
			{GameID: g.ID, PlayerID: alice.ID, Number: 40},
			{GameID: g.ID, PlayerID: bob.ID, Number: 12},
			{GameID: g.ID, PlayerID: alice.ID, Number: 7},
		})
		return err
	}))
	require.Len(t, created, 3)
	for _, c := range created {
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, game.CardHeld, c.State)
	}

	all, err := s.FindCards(ctx, store.CardFilter{GameID: g.ID})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int{7, 12, 40}, numbers(all))

	mine, err := s.FindCards(ctx, store.CardFilter{GameID: g.ID, PlayerID: alice.ID})
	require.NoError(t, err)
	assert.Equal(t, []int{7, 40}, numbers(mine))

	card := all[0]
	card.State = game.CardEliminated
	card.RevealedAt = now
	card.EliminatedAt = now
	require.NoError(t, s.Update(ctx, g.ID, func(tx store.Tx) error {
		return tx.UpdateCard(ctx, card)
	}))

	active, err := s.FindCards(ctx, store.CardFilter{GameID: g.ID, States: store.Active()})
	require.NoError(t, err)
	assert.Equal(t, []int{12, 40}, numbers(active))

	gone, err := s.FindCards(ctx, store.CardFilter{GameID: g.ID, States: []game.CardState{game.CardEliminated}})
	require.NoError(t, err)
	require.Len(t, gone, 1)
	assert.True(t, now.Equal(gone[0].RevealedAt))
	assert.True(t, now.Equal(gone[0].EliminatedAt))

	err = s.Update(ctx, g.ID, func(tx store.Tx) error {
		return tx.UpdateCard(ctx, game.Card{ID: "missing", GameID: g.ID})
	})
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Update(ctx, g.ID, func(tx store.Tx) error {
		return tx.DeleteCards(ctx, g.ID)
	}))
	all, err = s.FindCards(ctx, store.CardFilter{GameID: g.ID})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	g := newGame("c1")
	require.NoError(t, s.CreateGame(ctx, g, nil))
	p, err := s.FindOrCreatePlayer(ctx, "U1", "alice")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.Update(ctx, g.ID, func(tx store.Tx) error {
		g.Status = game.StatusPlaying
		g.FailureCount = 4
		if err := tx.UpdateGame(ctx, g); err != nil {
			return err
		}
		if err := tx.AddMember(ctx, g.ID, p.ID, now); err != nil {
			return err
		}
		if _, err := tx.CreateCards(ctx, []game.Card{{GameID: g.ID, PlayerID: p.ID, Number: 1}}); err != nil {
			return err
		}
		staged, err := tx.GetGame(ctx, g.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, game.StatusPlaying, staged.Status)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, game.StatusWaiting, got.Status)
	assert.Zero(t, got.FailureCount)
	members, err := s.ListMembers(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
	cards, err := s.FindCards(ctx, store.CardFilter{GameID: g.ID})
	require.NoError(t, err)
	assert.Empty(t, cards)
}

// testSerializedUpdates increments a counter from many goroutines; a lost
// update would leave it short.
func testSerializedUpdates(t *testing.T, s store.Store) {
	ctx := context.Background()
	g := newGame("c1")
	require.NoError(t, s.CreateGame(ctx, g, nil))

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Update(ctx, g.ID, func(tx store.Tx) error {
				current, err := tx.GetGame(ctx, g.ID)
				if err != nil {
					return err
				}
				current.FailureCount++
				return tx.UpdateGame(ctx, current)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, writers, got.FailureCount)
}

func testDeleteGame(t *testing.T, s store.Store) {
	ctx := context.Background()
	g := newGame("c1")
	require.NoError(t, s.CreateGame(ctx, g, nil))
	p, err := s.FindOrCreatePlayer(ctx, "U1", "alice")
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, g.ID, func(tx store.Tx) error {
		if err := tx.AddMember(ctx, g.ID, p.ID, now); err != nil {
			return err
		}
		_, err := tx.CreateCards(ctx, []game.Card{{GameID: g.ID, PlayerID: p.ID, Number: 9}})
		return err
	}))

	require.NoError(t, s.DeleteGame(ctx, g.ID))
	_, err = s.GetGame(ctx, g.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	cards, err := s.FindCards(ctx, store.CardFilter{GameID: g.ID})
	require.NoError(t, err)
	assert.Empty(t, cards)
	require.ErrorIs(t, s.DeleteGame(ctx, g.ID), store.ErrNotFound)

	// Players outlive games.
	_, err = s.GetPlayer(ctx, p.ID)
	require.NoError(t, err)
}

func testMissingGame(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.GetGame(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	called := false
	err = s.Update(ctx, "missing", func(tx store.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, called)
}

func numbers(cards []game.Card) []int {
	out := make([]int, len(cards))
	for i, c := range cards {
		out[i] = c.Number
	}
	return out
}
