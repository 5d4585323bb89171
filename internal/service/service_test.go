package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/ito/internal/game"
	"github.com/lox/ito/internal/randutil"
	"github.com/lox/ito/internal/store"
	"github.com/lox/ito/internal/store/memory"
	"github.com/lox/ito/internal/topic"
)

var epoch = time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)

type harness struct {
	svc   *GameService
	store store.Store
	clock *quartz.Mock

	alice, bob, carol game.Player

	mu     sync.Mutex
	events []Event
}

func newHarness(t *testing.T, st store.Store, opts ...Option) *harness {
	t.Helper()
	h := &harness{store: st, clock: quartz.NewMock(t)}
	h.clock.Set(epoch)
	catalog := topic.NewCatalog([]topic.Entry{
		{ID: "animals", Title: "Animals", Description: "small - large"},
		{ID: "foods", Title: "Foods", Description: "unpopular - popular"},
	}, randutil.New(7))

	base := []Option{
		WithClock(h.clock),
		WithRand(randutil.New(1)),
		WithObserver(ObserverFunc(func(ctx context.Context, e Event) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.events = append(h.events, e)
		})),
	}
	logger := log.NewWithOptions(io.Discard, log.Options{})
	h.svc = New(st, catalog, logger, append(base, opts...)...)

	ctx := context.Background()
	var err error
	h.alice, err = h.svc.Identity(ctx, "U-alice", "alice")
	require.NoError(t, err)
	h.bob, err = h.svc.Identity(ctx, "U-bob", "bob")
	require.NoError(t, err)
	h.carol, err = h.svc.Identity(ctx, "U-carol", "carol")
	require.NoError(t, err)
	return h
}

func (h *harness) eventTypes() []EventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]EventType, len(h.events))
	for i, e := range h.events {
		out[i] = e.Type
	}
	return out
}

// fixedDeal deals numbers in seat order regardless of the rng.
func fixedDeal(numbers ...int) Option {
	return WithAllocator(func(_ *rand.Rand, min, max, count int) ([]int, error) {
		if count != len(numbers) {
			return nil, fmt.Errorf("fixed deal has %d numbers, asked for %d", len(numbers), count)
		}
		return slices.Clone(numbers), nil
	})
}

// twoPlayerGame creates alice's game with bob seated and starts it.
func (h *harness) twoPlayerGame(t *testing.T, cfg game.Config) Result {
	t.Helper()
	ctx := context.Background()
	created, err := h.svc.CreateGame(ctx, CreateParams{ChannelID: "chan", CreatorID: h.alice.ID, Config: cfg})
	require.NoError(t, err)
	_, err = h.svc.JoinGame(ctx, created.Game.ID, h.bob.ID)
	require.NoError(t, err)
	started, err := h.svc.StartGame(ctx, created.Game.ID, h.alice.ID)
	require.NoError(t, err)
	return started
}

func TestCreateGame(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, memory.New())

	res, err := h.svc.CreateGame(ctx, CreateParams{ChannelID: "chan", CreatorID: h.alice.ID})
	require.NoError(t, err)
	assert.Equal(t, game.StatusWaiting, res.Game.Status)
	assert.Equal(t, game.DefaultConfig(), res.Game.Config)
	assert.Equal(t, h.alice.ID, res.Game.CreatedBy)
	assert.Equal(t, epoch, res.Game.CreatedAt)
	require.Len(t, res.View.Members, 1)
	assert.Equal(t, "alice", res.View.Members[0].Name)
	assert.True(t, res.View.Members[0].Creator)
	assert.Equal(t, []EventType{EventGameCreated}, h.eventTypes())

	active, err := h.svc.GetActiveGameForChannel(ctx, "chan")
	require.NoError(t, err)
	assert.Equal(t, res.Game.ID, active.ID)

	_, err = h.svc.CreateGame(ctx, CreateParams{ChannelID: "chan", CreatorID: h.bob.ID})
	require.ErrorIs(t, err, game.ErrGameInProgress)

	_, err = h.svc.CreateGame(ctx, CreateParams{ChannelID: "other", CreatorID: h.bob.ID,
		Config: game.Config{MinNumber: 10, MaxNumber: 5}})
	require.ErrorIs(t, err, game.ErrInvalidConfig)

	_, err = h.svc.CreateGame(ctx, CreateParams{ChannelID: "other", CreatorID: h.bob.ID,
		Config: game.Config{MinNumber: 1, MaxNumber: 10, CardCount: math.MaxInt/2 + 1, HP: 1}})
	require.ErrorIs(t, err, game.ErrInvalidConfig)

	_, err = h.svc.CreateGame(ctx, CreateParams{ChannelID: "other", CreatorID: "ghost"})
	require.ErrorIs(t, err, game.ErrNotFound)

	_, err = h.svc.GetActiveGameForChannel(ctx, "empty")
	require.ErrorIs(t, err, game.ErrNotFound)
}

func TestJoinAndLeave(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, memory.New())
	created, err := h.svc.CreateGame(ctx, CreateParams{ChannelID: "chan", CreatorID: h.alice.ID})
	require.NoError(t, err)
	id := created.Game.ID

	res, err := h.svc.JoinGame(ctx, id, h.bob.ID)
	require.NoError(t, err)
	require.Len(t, res.View.Members, 2)
	assert.Equal(t, "bob", res.View.Members[1].Name)

	_, err = h.svc.JoinGame(ctx, id, h.bob.ID)
	require.ErrorIs(t, err, game.ErrAlreadyJoined)
	_, err = h.svc.JoinGame(ctx, id, "ghost")
	require.ErrorIs(t, err, game.ErrNotFound)

	_, err = h.svc.LeaveGame(ctx, id, h.carol.ID)
	require.ErrorIs(t, err, game.ErrNotMember)
	_, err = h.svc.LeaveGame(ctx, id, h.alice.ID)
	require.ErrorIs(t, err, game.ErrCreatorCannotLeave)

	res, err = h.svc.LeaveGame(ctx, id, h.bob.ID)
	require.NoError(t, err)
	require.Len(t, res.View.Members, 1)

	_, err = h.svc.JoinGame(ctx, "missing", h.bob.ID)
	require.ErrorIs(t, err, game.ErrNotFound)

	_, err = h.svc.JoinGame(ctx, id, h.bob.ID)
	require.NoError(t, err)
	_, err = h.svc.StartGame(ctx, id, h.alice.ID)
	require.NoError(t, err)

	_, err = h.svc.JoinGame(ctx, id, h.carol.ID)
	require.ErrorIs(t, err, game.ErrInvalidState)
	_, err = h.svc.LeaveGame(ctx, id, h.bob.ID)
	require.ErrorIs(t, err, game.ErrInvalidState)
}

func TestStartGamePreconditions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("insufficient players", func(t *testing.T) {
		h := newHarness(t, memory.New())
		created, err := h.svc.CreateGame(ctx, CreateParams{ChannelID: "chan", CreatorID: h.alice.ID})
		require.NoError(t, err)
		_, err = h.svc.StartGame(ctx, created.Game.ID, h.alice.ID)
		require.ErrorIs(t, err, game.ErrInsufficientPlayers)
	})

	t.Run("not the creator", func(t *testing.T) {
		h := newHarness(t, memory.New())
		created, err := h.svc.CreateGame(ctx, CreateParams{ChannelID: "chan", CreatorID: h.alice.ID})
		require.NoError(t, err)
		_, err = h.svc.JoinGame(ctx, created.Game.ID, h.bob.ID)
		require.NoError(t, err)
		_, err = h.svc.StartGame(ctx, created.Game.ID, h.bob.ID)
		require.ErrorIs(t, err, game.ErrNotAuthorized)
	})

	t.Run("capacity", func(t *testing.T) {
		h := newHarness(t, memory.New())
		created, err := h.svc.CreateGame(ctx, CreateParams{ChannelID: "chan", CreatorID: h.alice.ID,
			Config: game.Config{MinNumber: 1, MaxNumber: 5, CardCount: 3, HP: 1}})
		require.NoError(t, err)
		_, err = h.svc.JoinGame(ctx, created.Game.ID, h.bob.ID)
		require.NoError(t, err)
		_, err = h.svc.StartGame(ctx, created.Game.ID, h.alice.ID)
		require.ErrorIs(t, err, game.ErrCapacityExceeded)

		cards, err := h.store.FindCards(ctx, store.CardFilter{GameID: created.Game.ID})
		require.NoError(t, err)
		assert.Empty(t, cards)
	})

	t.Run("no topics", func(t *testing.T) {
		h := newHarness(t, memory.New())
		h.svc.topics = topic.NewCatalog(nil, randutil.New(1))
		created, err := h.svc.CreateGame(ctx, CreateParams{ChannelID: "chan", CreatorID: h.alice.ID})
		require.NoError(t, err)
		_, err = h.svc.JoinGame(ctx, created.Game.ID, h.bob.ID)
		require.NoError(t, err)
		_, err = h.svc.StartGame(ctx, created.Game.ID, h.alice.ID)
		require.ErrorIs(t, err, game.ErrNoTopicAvailable)

		g, err := h.svc.GetGame(ctx, created.Game.ID)
		require.NoError(t, err)
		assert.Equal(t, game.StatusWaiting, g.Status)
	})
}

func TestStartGameDeals(t *testing.T) {
	t.Parallel()
	h := newHarness(t, memory.New())
	h.clock.Set(epoch.Add(time.Minute))
	res := h.twoPlayerGame(t, game.Config{MinNumber: 1, MaxNumber: 20, CardCount: 3, HP: 2})

	assert.Equal(t, game.StatusPlaying, res.Game.Status)
	require.NotNil(t, res.Game.Topic)
	assert.NotEmpty(t, res.Game.Topic.Title)
	assert.Equal(t, epoch.Add(time.Minute), res.Game.StartedAt)
	assert.Empty(t, res.Game.Revealed)
	assert.Equal(t, 6, res.View.ActiveCards)
	for _, m := range res.View.Members {
		assert.Equal(t, 3, m.ActiveCards)
	}

	require.Len(t, res.Hands, 2)
	seen := map[int]bool{}
	for _, hand := range res.Hands {
		require.Len(t, hand.Held, 3)
		assert.True(t, slices.IsSorted(hand.Held))
		for _, n := range hand.Held {
			assert.False(t, seen[n], "number %d dealt twice", n)
			assert.GreaterOrEqual(t, n, 1)
			assert.LessOrEqual(t, n, 20)
			seen[n] = true
		}
	}

	hand, err := h.svc.Hand(context.Background(), res.Game.ID, h.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Hands[1], hand)
	_, err = h.svc.Hand(context.Background(), res.Game.ID, h.carol.ID)
	require.ErrorIs(t, err, game.ErrNotMember)
}

func TestWinScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, memory.New(), fixedDeal(2, 7, 4, 9))
	started := h.twoPlayerGame(t, game.Config{MinNumber: 1, MaxNumber: 10, CardCount: 2, HP: 3})
	id := started.Game.ID
	assert.Equal(t, []int{2, 7}, started.Hands[0].Held)
	assert.Equal(t, []int{4, 9}, started.Hands[1].Held)

	steps := []struct {
		player   game.Player
		number   int
		revealed []int
	}{
		{h.alice, 2, []int{2}},
		{h.bob, 4, []int{2, 4}},
		{h.alice, 7, []int{2, 4, 7}},
		{h.bob, 9, []int{2, 4, 7, 9}},
	}
	var last Result
	for _, step := range steps {
		res, err := h.svc.ProposeCard(ctx, id, step.player.ID)
		require.NoError(t, err)
		require.NotNil(t, res.Resolution)
		assert.Equal(t, step.number, res.Resolution.Card.Number)
		assert.True(t, res.Resolution.Correct)
		assert.Equal(t, step.revealed, res.Game.Revealed)
		last = res
	}

	assert.Equal(t, game.StatusFinished, last.Game.Status)
	assert.Equal(t, game.OutcomeWin, last.Game.Outcome)
	assert.Equal(t, 0, last.Game.FailureCount)
	require.NotNil(t, last.Reveal)
	assert.Equal(t, 0, last.Reveal.Unplayed)
	assert.Equal(t, []int{2, 7}, last.Reveal.Players[0].Played)
	assert.Equal(t, []int{4, 9}, last.Reveal.Players[1].Played)

	// The snapshot survives the purge of cards and members.
	g, err := h.svc.GetGame(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 7, 9}, g.Revealed)
	assert.Equal(t, game.OutcomeWin, g.Outcome)
	cards, err := h.store.FindCards(ctx, store.CardFilter{GameID: id})
	require.NoError(t, err)
	assert.Empty(t, cards)
	members, err := h.store.ListMembers(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, members)

	_, err = h.svc.GetActiveGameForChannel(ctx, "chan")
	require.ErrorIs(t, err, game.ErrNotFound)

	types := h.eventTypes()
	assert.Equal(t, EventGameEnded, types[len(types)-1])
	assert.Equal(t, EventCardProposed, types[len(types)-2])
}

func TestLossByExhaustionScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, memory.New(), fixedDeal(2, 7, 4, 9))
	started := h.twoPlayerGame(t, game.Config{MinNumber: 1, MaxNumber: 10, CardCount: 2, HP: 3})
	id := started.Game.ID

	_, err := h.svc.ProposeCard(ctx, id, h.alice.ID)
	require.NoError(t, err)
	_, err = h.svc.ProposeCard(ctx, id, h.bob.ID)
	require.NoError(t, err)

	res, err := h.svc.ProposeCard(ctx, id, h.bob.ID)
	require.NoError(t, err)
	assert.False(t, res.Resolution.Correct)
	assert.Equal(t, 7, res.Resolution.Expected)
	assert.Equal(t, 1, res.Game.FailureCount)
	assert.Equal(t, []int{2, 4, 7, 9}, res.Game.Revealed)
	assert.Equal(t, game.StatusFinished, res.Game.Status)
	assert.Equal(t, game.OutcomeLoss, res.Game.Outcome)

	require.NotNil(t, res.Reveal)
	assert.Equal(t, []int{2}, res.Reveal.Players[0].Played)
	assert.Equal(t, []int{7}, res.Reveal.Players[0].Discarded)
	assert.Equal(t, []int{4, 9}, res.Reveal.Players[1].Played)
}

func TestLossByFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, memory.New(), fixedDeal(2, 7, 4, 9))
	started := h.twoPlayerGame(t, game.Config{MinNumber: 1, MaxNumber: 10, CardCount: 2, HP: 1})

	res, err := h.svc.ProposeCard(ctx, started.Game.ID, h.bob.ID)
	require.NoError(t, err)
	assert.False(t, res.Resolution.Correct)
	assert.Equal(t, game.OutcomeLoss, res.Game.Outcome)
	require.NotNil(t, res.Reveal)
	assert.Equal(t, 2, res.Reveal.Unplayed)
	assert.Equal(t, []int{7}, res.Reveal.Players[0].Held)
	assert.Equal(t, []int{9}, res.Reveal.Players[1].Held)
}

func TestProposeRules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, memory.New(), fixedDeal(1, 5))
	created, err := h.svc.CreateGame(ctx, CreateParams{ChannelID: "chan", CreatorID: h.alice.ID,
		Config: game.Config{MinNumber: 1, MaxNumber: 10, CardCount: 1, HP: 3}})
	require.NoError(t, err)
	id := created.Game.ID

	_, err = h.svc.ProposeCard(ctx, id, h.alice.ID)
	require.ErrorIs(t, err, game.ErrInvalidState)

	_, err = h.svc.JoinGame(ctx, id, h.bob.ID)
	require.NoError(t, err)
	_, err = h.svc.StartGame(ctx, id, h.alice.ID)
	require.NoError(t, err)

	_, err = h.svc.ProposeCard(ctx, id, h.carol.ID)
	require.ErrorIs(t, err, game.ErrNotMember)

	res, err := h.svc.ProposeCard(ctx, id, h.alice.ID)
	require.NoError(t, err)
	assert.True(t, res.Resolution.Correct)
	assert.False(t, res.Ended())
	require.Len(t, res.View.RevealedBy, 1)
	assert.Equal(t, "alice", res.View.RevealedBy[0].Name)

	_, err = h.svc.ProposeCard(ctx, id, h.alice.ID)
	require.ErrorIs(t, err, game.ErrNoCardsRemaining)

	g, err := h.svc.GetGame(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, game.StatusPlaying, g.Status)
}

func TestTerminalGameRejectsMutations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, memory.New())
	started := h.twoPlayerGame(t, game.Config{})
	id := started.Game.ID

	ended, err := h.svc.ForceEndGame(ctx, id, h.alice.ID)
	require.NoError(t, err)
	before, err := h.svc.GetGame(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ended.Game, before)

	ops := map[string]func() error{
		"join":    func() error { _, err := h.svc.JoinGame(ctx, id, h.carol.ID); return err },
		"leave":   func() error { _, err := h.svc.LeaveGame(ctx, id, h.bob.ID); return err },
		"start":   func() error { _, err := h.svc.StartGame(ctx, id, h.alice.ID); return err },
		"propose": func() error { _, err := h.svc.ProposeCard(ctx, id, h.alice.ID); return err },
		"topic":   func() error { _, err := h.svc.ChangeTopic(ctx, id, h.alice.ID); return err },
		"cancel":  func() error { _, err := h.svc.CancelGame(ctx, id, h.alice.ID); return err },
		"force":   func() error { _, err := h.svc.ForceEndGame(ctx, id, h.alice.ID); return err },
	}
	for name, op := range ops {
		require.ErrorIs(t, op(), game.ErrInvalidState, name)
	}

	after, err := h.svc.GetGame(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCancelGame(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, memory.New())

	created, err := h.svc.CreateGame(ctx, CreateParams{ChannelID: "chan", CreatorID: h.alice.ID})
	require.NoError(t, err)
	id := created.Game.ID
	_, err = h.svc.JoinGame(ctx, id, h.bob.ID)
	require.NoError(t, err)
	h.svc.BindMessage(id, "msg-1")

	_, err = h.svc.CancelGame(ctx, id, h.bob.ID)
	require.ErrorIs(t, err, game.ErrNotAuthorized)
	_, err = h.svc.ForceEndGame(ctx, id, h.alice.ID)
	require.ErrorIs(t, err, game.ErrInvalidState)

	h.clock.Advance(time.Minute)
	res, err := h.svc.CancelGame(ctx, id, h.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, game.StatusCancelled, res.Game.Status)
	assert.Equal(t, game.OutcomeNone, res.Game.Outcome)
	assert.Equal(t, epoch.Add(time.Minute), res.Game.EndedAt)
	require.NotNil(t, res.Reveal)
	assert.Len(t, res.Reveal.Players, 2)
	assert.Empty(t, res.Reveal.Cards)

	_, ok := h.svc.MessageBinding(id)
	assert.False(t, ok)

	// The channel is free again.
	_, err = h.svc.CreateGame(ctx, CreateParams{ChannelID: "chan", CreatorID: h.bob.ID})
	require.NoError(t, err)
}

func TestForceEndRevealsEverything(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, memory.New(), fixedDeal(3, 8, 5, 6))
	started := h.twoPlayerGame(t, game.Config{MinNumber: 1, MaxNumber: 10, CardCount: 2, HP: 5})
	id := started.Game.ID

	_, err := h.svc.ProposeCard(ctx, id, h.alice.ID)
	require.NoError(t, err)
	_, err = h.svc.ForceEndGame(ctx, id, h.bob.ID)
	require.ErrorIs(t, err, game.ErrNotAuthorized)

	res, err := h.svc.ForceEndGame(ctx, id, h.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, game.StatusFinished, res.Game.Status)
	assert.Equal(t, game.OutcomeAbandoned, res.Game.Outcome)
	require.NotNil(t, res.Reveal)
	assert.Equal(t, PlayerReveal{PlayerID: h.alice.ID, Name: "alice", Held: []int{8}, Played: []int{3}, Discarded: []int{}},
		res.Reveal.Players[0])
	assert.Equal(t, PlayerReveal{PlayerID: h.bob.ID, Name: "bob", Held: []int{5, 6}, Played: []int{}, Discarded: []int{}},
		res.Reveal.Players[1])
	assert.Equal(t, 3, res.Reveal.Unplayed)
	require.Len(t, res.Reveal.Cards, 4)
	assert.Equal(t, "bob", res.Reveal.Cards[1].Name)
	assert.Equal(t, []int{3}, res.Game.Revealed)
}

func TestChangeTopic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, memory.New())
	started := h.twoPlayerGame(t, game.Config{})
	id := started.Game.ID

	_, err := h.svc.ChangeTopic(ctx, id, h.bob.ID)
	require.ErrorIs(t, err, game.ErrNotAuthorized)

	res, err := h.svc.ChangeTopic(ctx, id, h.alice.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Game.Topic)
	assert.NotEqual(t, started.Game.Topic.ID, res.Game.Topic.ID)
	assert.Contains(t, h.eventTypes(), EventTopicChanged)
}

func TestDeleteGame(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, memory.New())
	started := h.twoPlayerGame(t, game.Config{})
	id := started.Game.ID

	require.ErrorIs(t, h.svc.DeleteGame(ctx, id, h.bob.ID), game.ErrNotAuthorized)
	require.NoError(t, h.svc.DeleteGame(ctx, id, h.alice.ID))
	_, err := h.svc.GetGame(ctx, id)
	require.ErrorIs(t, err, game.ErrNotFound)
	require.ErrorIs(t, h.svc.DeleteGame(ctx, id, h.alice.ID), game.ErrNotFound)
	assert.Contains(t, h.eventTypes(), EventGameDeleted)
}

// TestConcurrentProposals races every player against the same game. Each
// proposal must see the previous one's committed state.
func TestConcurrentProposals(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, memory.New(), WithRand(randutil.New(99)))

	created, err := h.svc.CreateGame(ctx, CreateParams{ChannelID: "chan", CreatorID: h.alice.ID,
		Config: game.Config{MinNumber: 1, MaxNumber: 100, CardCount: 5, HP: 50}})
	require.NoError(t, err)
	id := created.Game.ID
	players := []game.Player{h.alice, h.bob, h.carol}
	for _, p := range players[1:] {
		_, err := h.svc.JoinGame(ctx, id, p.ID)
		require.NoError(t, err)
	}
	_, err = h.svc.StartGame(ctx, id, h.alice.ID)
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		failures int
		final    Result
	)
	var wg sync.WaitGroup
	for _, p := range players {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				res, err := h.svc.ProposeCard(ctx, id, p.ID)
				if err != nil {
					if errors.Is(err, game.ErrNoCardsRemaining) || errors.Is(err, game.ErrInvalidState) {
						return
					}
					t.Errorf("propose: %v", err)
					return
				}
				mu.Lock()
				if !res.Resolution.Correct {
					failures++
				}
				assert.True(t, slices.IsSorted(res.Game.Revealed))
				if res.Ended() {
					final = res
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.True(t, final.Ended())
	assert.Equal(t, failures, final.Game.FailureCount)
	assert.Len(t, final.Game.Revealed, 15)
	assert.Len(t, slices.Compact(slices.Clone(final.Game.Revealed)), 15)
}

// failingStore fails every UpdateGame so operations must roll back.
type failingStore struct {
	store.Store
	err error
}

func (f *failingStore) Update(ctx context.Context, gameID string, fn func(tx store.Tx) error) error {
	return f.Store.Update(ctx, gameID, func(tx store.Tx) error {
		return fn(&failingTx{Tx: tx, err: f.err})
	})
}

type failingTx struct {
	store.Tx
	err error
}

func (f *failingTx) UpdateGame(context.Context, game.Game) error {
	return f.err
}

func TestFailedOperationLeavesStateUntouched(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := memory.New()
	h := newHarness(t, mem, fixedDeal(2, 7, 4, 9))
	started := h.twoPlayerGame(t, game.Config{MinNumber: 1, MaxNumber: 10, CardCount: 2, HP: 3})
	id := started.Game.ID

	boom := errors.New("disk full")
	var logs bytes.Buffer
	logger := log.NewWithOptions(&logs, log.Options{Level: log.DebugLevel})
	broken := New(&failingStore{Store: mem, err: boom}, h.svc.topics, logger, WithClock(h.clock))

	_, err := broken.ProposeCard(ctx, id, h.bob.ID)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, game.CodeInternal, game.CodeOf(err))
	assert.NotContains(t, logs.String(), "Card proposed")
	assert.Contains(t, logs.String(), "Operation rejected")

	g, err := h.svc.GetGame(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, g.FailureCount)
	assert.Empty(t, g.Revealed)
	cards, err := mem.FindCards(ctx, store.CardFilter{GameID: id, States: store.Active()})
	require.NoError(t, err)
	assert.Len(t, cards, 4)

	working := New(mem, h.svc.topics, logger, WithClock(h.clock))
	_, err = working.ProposeCard(ctx, id, h.alice.ID)
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "Card proposed")
}

// seatlessStore cannot seat anyone while a game is being created.
type seatlessStore struct {
	store.Store
	err error
}

func (f *seatlessStore) CreateGame(ctx context.Context, g game.Game, fn func(tx store.Tx) error) error {
	return f.Store.CreateGame(ctx, g, func(tx store.Tx) error {
		return fn(&seatlessTx{Tx: tx, err: f.err})
	})
}

type seatlessTx struct {
	store.Tx
	err error
}

func (f *seatlessTx) AddMember(context.Context, string, string, time.Time) error {
	return f.err
}

func TestCreateGameFailingSeatLeavesNoGame(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := memory.New()
	h := newHarness(t, mem)

	boom := errors.New("disk full")
	broken := New(&seatlessStore{Store: mem, err: boom}, h.svc.topics,
		log.NewWithOptions(io.Discard, log.Options{}), WithClock(h.clock))

	_, err := broken.CreateGame(ctx, CreateParams{ChannelID: "chan", CreatorID: h.alice.ID})
	require.ErrorIs(t, err, boom)

	_, err = h.svc.GetActiveGameForChannel(ctx, "chan")
	require.ErrorIs(t, err, game.ErrNotFound)

	res, err := h.svc.CreateGame(ctx, CreateParams{ChannelID: "chan", CreatorID: h.alice.ID})
	require.NoError(t, err)
	require.Len(t, res.View.Members, 1)
	assert.Equal(t, h.alice.ID, res.View.Members[0].PlayerID)
}

func TestCreatorTakesFirstSeatUnderConcurrentJoins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := memory.New()
	h := newHarness(t, mem, WithIDGenerator(func() string { return "g1" }))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 200 {
			if _, err := h.svc.JoinGame(ctx, "g1", h.bob.ID); err == nil {
				return
			}
		}
	}()
	_, err := h.svc.CreateGame(ctx, CreateParams{ChannelID: "chan", CreatorID: h.alice.ID})
	require.NoError(t, err)
	wg.Wait()

	members, err := mem.ListMembers(ctx, "g1")
	require.NoError(t, err)
	require.NotEmpty(t, members)
	assert.Equal(t, h.alice.ID, members[0].ID)
}

func TestMessageBinding(t *testing.T) {
	t.Parallel()
	h := newHarness(t, memory.New())
	h.svc.BindMessage("g1", "m1")
	id, ok := h.svc.MessageBinding("g1")
	assert.True(t, ok)
	assert.Equal(t, "m1", id)
	h.svc.BindMessage("g1", "m2")
	id, _ = h.svc.MessageBinding("g1")
	assert.Equal(t, "m2", id)
	_, ok = h.svc.MessageBinding("g2")
	assert.False(t, ok)
}
