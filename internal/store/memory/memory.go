// Package memory provides an in-process Store used by tests, the simulator
// and the terminal game.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/lox/ito/internal/game"
	"github.com/lox/ito/internal/gameid"
	"github.com/lox/ito/internal/store"
)

type membership struct {
	playerID string
	joinedAt time.Time
}

type record struct {
	game    game.Game
	cards   []game.Card
	members []membership
}

func (r *record) clone() record {
	return record{
		game:    r.game.Clone(),
		cards:   slices.Clone(r.cards),
		members: slices.Clone(r.members),
	}
}

// Store keeps everything in maps. Updates to one game are serialized by a
// per-game mutex and applied to a staged copy that is swapped in on success.
type Store struct {
	mu       sync.RWMutex
	games    map[string]*record
	players  map[string]game.Player
	external map[string]string
	locks    map[string]*sync.Mutex
	newID    func() string
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the generator for player and card ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		games:    make(map[string]*record),
		players:  make(map[string]game.Player),
		external: make(map[string]string),
		locks:    make(map[string]*sync.Mutex),
		newID:    gameid.Generate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) CreateGame(ctx context.Context, g game.Game, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.ID == "" {
		return fmt.Errorf("game id is required")
	}
	lock := s.lockFor(g.ID)
	lock.Lock()
	defer lock.Unlock()

	staged := record{game: g.Clone()}
	if fn != nil {
		if err := fn(&tx{store: s, id: g.ID, rec: &staged}); err != nil {
			s.dropLock(g.ID)
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		s.dropLock(g.ID)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkInsertLocked(g); err != nil {
		if _, exists := s.games[g.ID]; !exists {
			delete(s.locks, g.ID)
		}
		return err
	}
	s.games[g.ID] = &staged
	return nil
}

// checkInsertLocked enforces unique ids and one active game per channel.
func (s *Store) checkInsertLocked(g game.Game) error {
	if _, ok := s.games[g.ID]; ok {
		return store.ErrConflict
	}
	if g.Status.Active() {
		for _, r := range s.games {
			if r.game.ChannelID == g.ChannelID && r.game.Status.Active() {
				return store.ErrConflict
			}
		}
	}
	return nil
}

// dropLock forgets the lock of a game that was never committed.
func (s *Store) dropLock(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[id]; !ok {
		delete(s.locks, id)
	}
}

func (s *Store) GetGame(ctx context.Context, id string) (game.Game, error) {
	if err := ctx.Err(); err != nil {
		return game.Game{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.games[id]
	if !ok {
		return game.Game{}, store.ErrNotFound
	}
	return r.game.Clone(), nil
}

func (s *Store) FindActiveGameByChannel(ctx context.Context, channelID string) (game.Game, error) {
	if err := ctx.Err(); err != nil {
		return game.Game{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.games {
		if r.game.ChannelID == channelID && r.game.Status.Active() {
			return r.game.Clone(), nil
		}
	}
	return game.Game{}, store.ErrNotFound
}

func (s *Store) DeleteGame(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.games, id)
	delete(s.locks, id)
	return nil
}

func (s *Store) FindCards(ctx context.Context, filter store.CardFilter) ([]game.Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []game.Card
	for id, r := range s.games {
		if filter.GameID != "" && filter.GameID != id {
			continue
		}
		out = appendMatching(out, r.cards, filter)
	}
	sortCards(out)
	return out, nil
}

func (s *Store) ListMembers(ctx context.Context, gameID string) ([]store.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.games[gameID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.resolveMembers(r.members), nil
}

func (s *Store) FindOrCreatePlayer(ctx context.Context, externalID, name string) (game.Player, error) {
	if err := ctx.Err(); err != nil {
		return game.Player{}, err
	}
	if externalID == "" {
		return game.Player{}, fmt.Errorf("external id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.external[externalID]; ok {
		p := s.players[id]
		if name != "" && p.Name != name {
			p.Name = name
			s.players[id] = p
		}
		return p, nil
	}
	p := game.Player{ID: s.newID(), ExternalID: externalID, Name: name}
	s.players[p.ID] = p
	s.external[externalID] = p.ID
	return p, nil
}

func (s *Store) GetPlayer(ctx context.Context, id string) (game.Player, error) {
	if err := ctx.Err(); err != nil {
		return game.Player{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return game.Player{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) Update(ctx context.Context, gameID string, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := s.lockFor(gameID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	current, ok := s.games[gameID]
	var staged record
	if ok {
		staged = current.clone()
	}
	s.mu.RUnlock()
	if !ok {
		return store.ErrNotFound
	}

	if err := fn(&tx{store: s, id: gameID, rec: &staged}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[gameID]; !ok {
		return store.ErrNotFound
	}
	s.games[gameID] = &staged
	return nil
}

// Read runs fn against a copy of the last committed state of gameID.
func (s *Store) Read(ctx context.Context, gameID string, fn func(r store.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	current, ok := s.games[gameID]
	var snapshot record
	if ok {
		snapshot = current.clone()
	}
	s.mu.RUnlock()
	if !ok {
		return store.ErrNotFound
	}
	return fn(&tx{store: s, id: gameID, rec: &snapshot})
}

func (s *Store) lockFor(gameID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[gameID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[gameID] = l
	}
	return l
}

// resolveMembers expects s.mu to be held.
func (s *Store) resolveMembers(ms []membership) []store.Member {
	out := make([]store.Member, 0, len(ms))
	for _, m := range ms {
		out = append(out, store.Member{Player: s.players[m.playerID], JoinedAt: m.joinedAt})
	}
	return out
}

func appendMatching(dst, cards []game.Card, filter store.CardFilter) []game.Card {
	for _, c := range cards {
		if filter.Match(c) {
			dst = append(dst, c)
		}
	}
	return dst
}

func sortCards(cards []game.Card) {
	slices.SortFunc(cards, func(a, b game.Card) int {
		if a.GameID != b.GameID {
			if a.GameID < b.GameID {
				return -1
			}
			return 1
		}
		return a.Number - b.Number
	})
}

var _ store.Store = (*Store)(nil)
