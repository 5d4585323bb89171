// Package service coordinates games: it authorizes commands, runs them
// atomically against the store and tells observers what happened.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lox/ito/internal/deck"
	"github.com/lox/ito/internal/game"
	"github.com/lox/ito/internal/gameid"
	"github.com/lox/ito/internal/store"
	"github.com/lox/ito/internal/topic"
)

const tracerName = "github.com/lox/ito/internal/service"

// GameService is the public entry point for playing ito.
type GameService struct {
	store    store.Store
	topics   topic.Provider
	logger   *log.Logger
	clock    quartz.Clock
	tracer   trace.Tracer
	defaults game.Config
	newID    func() string

	rngMu     sync.Mutex
	rng       *rand.Rand
	allocator Allocator

	observersMu sync.RWMutex
	observers   []Observer

	// bindings maps a game id to the presentation message showing it.
	bindingsMu sync.Mutex
	bindings   map[string]string
}

// Option configures a GameService.
type Option func(*GameService)

// WithClock sets the clock used for timestamps.
func WithClock(clock quartz.Clock) Option {
	return func(s *GameService) { s.clock = clock }
}

// WithRand sets the random source used for dealing.
func WithRand(rng *rand.Rand) Option {
	return func(s *GameService) { s.rng = rng }
}

// Allocator draws count distinct numbers from [min, max].
type Allocator func(rng *rand.Rand, min, max, count int) ([]int, error)

// WithAllocator replaces deck.Allocate, mostly to deal fixed hands in tests.
func WithAllocator(fn Allocator) Option {
	return func(s *GameService) { s.allocator = fn }
}

// WithDefaults sets the config applied to zero fields on create.
func WithDefaults(cfg game.Config) Option {
	return func(s *GameService) { s.defaults = cfg }
}

// WithIDGenerator replaces the game id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *GameService) { s.newID = fn }
}

// WithObserver registers an observer at construction.
func WithObserver(o Observer) Option {
	return func(s *GameService) { s.observers = append(s.observers, o) }
}

// WithTracerProvider sets where spans go. The global provider is the default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *GameService) { s.tracer = tp.Tracer(tracerName) }
}

// New creates a GameService.
func New(st store.Store, topics topic.Provider, logger *log.Logger, opts ...Option) *GameService {
	s := &GameService{
		store:     st,
		topics:    topics,
		logger:    logger.WithPrefix("service"),
		clock:     quartz.NewReal(),
		tracer:    otel.Tracer(tracerName),
		defaults:  game.DefaultConfig(),
		newID:     gameid.Generate,
		allocator: deck.Allocate,
		bindings:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// Defaults returns the config applied to new games.
func (s *GameService) Defaults() game.Config {
	return s.defaults
}

// Identity resolves an external user into a player, creating it on first
// sight and refreshing the display name.
func (s *GameService) Identity(ctx context.Context, externalID, name string) (game.Player, error) {
	p, err := s.store.FindOrCreatePlayer(ctx, externalID, name)
	if err != nil {
		return game.Player{}, fmt.Errorf("resolve player %s: %w", externalID, err)
	}
	return p, nil
}

// mutation is the working state handed to an operation inside a transaction.
type mutation struct {
	tx      store.Tx
	game    game.Game
	members []store.Member
	now     time.Time
	result  Result
	// ended freezes members and cards at their pre-purge values for the view.
	ended bool
	cards []game.Card
	// withHands attaches every member's private hand to the result.
	withHands bool
	// committed runs after the transaction commits.
	committed []func()
}

// afterCommit defers fn until the mutation is durable.
func (m *mutation) afterCommit(fn func()) {
	m.committed = append(m.committed, fn)
}

func (m *mutation) isMember(playerID string) bool {
	return store.IsMember(m.members, playerID)
}

// update runs fn atomically against gameID, builds the result view from the
// committed state, and notifies observers.
func (s *GameService) update(ctx context.Context, op EventType, gameID, actorID string, fn func(ctx context.Context, m *mutation) error) (Result, error) {
	return s.commit(ctx, op, gameID, actorID, func(ctx context.Context, body func(tx store.Tx) error) error {
		return s.store.Update(ctx, gameID, body)
	}, fn)
}

// commit drives one transaction opened by begin. begin decides whether the
// game already exists (Store.Update) or is inserted first (Store.CreateGame).
func (s *GameService) commit(ctx context.Context, op EventType, gameID, actorID string,
	begin func(ctx context.Context, body func(tx store.Tx) error) error,
	fn func(ctx context.Context, m *mutation) error,
) (Result, error) {
	ctx, span := s.startSpan(ctx, string(op), gameID, actorID)
	defer span.End()

	var (
		res       Result
		committed []func()
	)
	err := begin(ctx, func(tx store.Tx) error {
		g, err := tx.GetGame(ctx, gameID)
		if err != nil {
			return err
		}
		members, err := tx.ListMembers(ctx, gameID)
		if err != nil {
			return err
		}
		m := &mutation{tx: tx, game: g, members: members, now: s.clock.Now().UTC()}
		if err := fn(ctx, m); err != nil {
			return err
		}
		if !m.ended {
			if m.members, err = tx.ListMembers(ctx, gameID); err != nil {
				return err
			}
			if m.cards, err = tx.FindCards(ctx, store.CardFilter{GameID: gameID}); err != nil {
				return err
			}
		}
		m.result.Game = m.game
		m.result.View = NewView(m.game, m.members, m.cards)
		if m.withHands {
			m.result.Hands = NewHands(m.game, m.members, m.cards)
		}
		res = m.result
		committed = m.committed
		return nil
	})
	if err != nil {
		err = translate(err)
		s.fail(span, err)
		s.logger.Debug("Operation rejected", "op", op, "game", gameID, "player", actorID, "code", game.CodeOf(err), "error", err)
		return Result{}, err
	}
	span.SetAttributes(attribute.String("ito.status", res.Game.Status.String()))
	for _, fn := range committed {
		fn()
	}

	if res.Game.Status.Terminal() {
		s.dropBinding(gameID)
	}
	s.notify(ctx, Event{Type: op, GameID: gameID, ActorID: actorID, Result: res})
	if res.Game.Status.Terminal() && op != EventGameEnded {
		s.notify(ctx, Event{Type: EventGameEnded, GameID: gameID, ActorID: actorID, Result: res})
	}
	return res, nil
}

func (s *GameService) startSpan(ctx context.Context, op, gameID, actorID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("ito.op", op)}
	if gameID != "" {
		attrs = append(attrs, attribute.String("ito.game_id", gameID))
	}
	if actorID != "" {
		attrs = append(attrs, attribute.String("ito.player_id", actorID))
	}
	return s.tracer.Start(ctx, "ito."+op, trace.WithAttributes(attrs...))
}

func (s *GameService) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("ito.error_code", string(game.CodeOf(err))))
}

// translate maps store sentinels onto game codes. Other failures are
// returned as they are.
func translate(err error) error {
	var gameErr *game.Error
	if errors.As(err, &gameErr) {
		return err
	}
	if errors.Is(err, store.ErrNotFound) {
		return game.Wrap(game.CodeNotFound, "game not found", err)
	}
	return err
}

func (s *GameService) pickTopic(ctx context.Context, avoid *game.Topic) (game.Topic, error) {
	const attempts = 10
	var picked game.Topic
	for range attempts {
		t, err := s.topics.RandomTopic(ctx)
		if err != nil {
			if errors.Is(err, topic.ErrNoTopics) {
				return game.Topic{}, game.Wrap(game.CodeNoTopicAvailable, "no topic available", err)
			}
			return game.Topic{}, fmt.Errorf("pick topic: %w", err)
		}
		picked = t
		if avoid == nil || t.ID != avoid.ID || t.Title != avoid.Title {
			break
		}
	}
	return picked, nil
}

func (s *GameService) allocate(cfg game.Config, count int) ([]int, error) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.allocator(s.rng, cfg.MinNumber, cfg.MaxNumber, count)
}
