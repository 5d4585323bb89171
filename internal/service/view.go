package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/lox/ito/internal/game"
	"github.com/lox/ito/internal/store"
)

// Result is what every mutating operation returns.
type Result struct {
	Game game.Game `json:"game"`
	View View      `json:"view"`
	// Resolution is set by ProposeCard.
	Resolution *game.Resolution `json:"resolution,omitempty"`
	// Reveal is set when the operation ended the game.
	Reveal *Reveal `json:"reveal,omitempty"`
	// Hands holds every member's private hand after a deal or a proposal.
	// Gateways must deliver each one only to its owner.
	Hands []Hand `json:"-"`
}

// Ended reports whether the operation moved the game to a terminal state.
func (r Result) Ended() bool {
	return r.Reveal != nil
}

// MemberView is one seat as everyone may see it.
type MemberView struct {
	PlayerID    string    `json:"playerId"`
	Name        string    `json:"name"`
	Creator     bool      `json:"creator"`
	ActiveCards int       `json:"activeCards"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// RevealedCard is a number on the table with whoever held it.
type RevealedCard struct {
	Number   int    `json:"number"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	// Cascaded cards were discarded by a failure without being played.
	Cascaded bool `json:"cascaded"`
}

// View is the public state of a game. It never contains unrevealed numbers.
type View struct {
	GameID       string         `json:"gameId"`
	ChannelID    string         `json:"channelId"`
	CreatedBy    string         `json:"createdBy"`
	Status       game.Status    `json:"status"`
	Outcome      game.Outcome   `json:"outcome,omitempty"`
	Config       game.Config    `json:"config"`
	Topic        *game.Topic    `json:"topic,omitempty"`
	Revealed     []int          `json:"revealed"`
	RevealedBy   []RevealedCard `json:"revealedBy,omitempty"`
	FailureCount int            `json:"failureCount"`
	HP           int            `json:"hp"`
	LivesLeft    int            `json:"livesLeft"`
	ActiveCards  int            `json:"activeCards"`
	Members      []MemberView   `json:"members"`
}

// NewView derives the public view from a game, its members and its cards.
func NewView(g game.Game, members []store.Member, cards []game.Card) View {
	ledger := game.NewLedger(cards)
	v := View{
		GameID:       g.ID,
		ChannelID:    g.ChannelID,
		CreatedBy:    g.CreatedBy,
		Status:       g.Status,
		Outcome:      g.Outcome,
		Config:       g.Config,
		Topic:        g.Topic,
		Revealed:     slices.Clone(g.Revealed),
		RevealedBy:   revealedBy(members, cards),
		FailureCount: g.FailureCount,
		HP:           g.Config.HP,
		LivesLeft:    g.LivesLeft(),
		ActiveCards:  ledger.ActiveCount(),
		Members:      make([]MemberView, 0, len(members)),
	}
	if v.Revealed == nil {
		v.Revealed = []int{}
	}
	for _, m := range members {
		v.Members = append(v.Members, MemberView{
			PlayerID:    m.ID,
			Name:        m.Name,
			Creator:     g.IsCreator(m.ID),
			ActiveCards: ledger.ActiveCountFor(m.ID),
			JoinedAt:    m.JoinedAt,
		})
	}
	return v
}

func revealedBy(members []store.Member, cards []game.Card) []RevealedCard {
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.Name
	}
	var out []RevealedCard
	for _, c := range game.NewLedger(cards).Cards() {
		if c.State != game.CardEliminated {
			continue
		}
		out = append(out, RevealedCard{Number: c.Number, PlayerID: c.PlayerID, Name: names[c.PlayerID], Cascaded: c.Cascaded()})
	}
	return out
}

// Hand is one player's private view of their cards.
type Hand struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
	// Held numbers, ascending. The first is the one a proposal plays.
	Held []int `json:"held"`
	// Played numbers were proposed by this player.
	Played []int `json:"played"`
	// Discarded numbers were lost to a cascade.
	Discarded []int `json:"discarded"`
}

// Next is the number a proposal would play.
func (h Hand) Next() (int, bool) {
	if len(h.Held) == 0 {
		return 0, false
	}
	return h.Held[0], true
}

func newHand(gameID, playerID string, cards []game.Card) Hand {
	h := Hand{GameID: gameID, PlayerID: playerID, Held: []int{}, Played: []int{}, Discarded: []int{}}
	for _, c := range game.NewLedger(cards).ByPlayer(playerID) {
		switch {
		case c.State != game.CardEliminated:
			h.Held = append(h.Held, c.Number)
		case c.Played():
			h.Played = append(h.Played, c.Number)
		default:
			h.Discarded = append(h.Discarded, c.Number)
		}
	}
	return h
}

// NewHands returns the private hand of every member, in seat order.
func NewHands(g game.Game, members []store.Member, cards []game.Card) []Hand {
	hands := make([]Hand, 0, len(members))
	for _, m := range members {
		hands = append(hands, newHand(g.ID, m.ID, cards))
	}
	return hands
}

// PlayerReveal is everything one player was dealt, shown at the end.
type PlayerReveal struct {
	PlayerID  string `json:"playerId"`
	Name      string `json:"name"`
	Held      []int  `json:"held"`
	Played    []int  `json:"played"`
	Discarded []int  `json:"discarded"`
}

// Reveal is the full card disclosure produced when a game ends.
type Reveal struct {
	Players []PlayerReveal `json:"players"`
	// Cards lists every dealt number ascending with its owner.
	Cards []RevealedCard `json:"cards"`
	// Unplayed is the count of cards still held when the game ended.
	Unplayed int `json:"unplayed"`
}

// NewReveal discloses every card, grouped by player in seat order.
func NewReveal(members []store.Member, cards []game.Card) Reveal {
	r := Reveal{Players: make([]PlayerReveal, 0, len(members)), Cards: []RevealedCard{}}
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.Name
		h := newHand("", m.ID, cards)
		r.Players = append(r.Players, PlayerReveal{
			PlayerID:  m.ID,
			Name:      m.Name,
			Held:      h.Held,
			Played:    h.Played,
			Discarded: h.Discarded,
		})
		r.Unplayed += len(h.Held)
	}
	for _, c := range game.NewLedger(cards).Cards() {
		r.Cards = append(r.Cards, RevealedCard{Number: c.Number, PlayerID: c.PlayerID, Name: names[c.PlayerID], Cascaded: c.Cascaded()})
	}
	return r
}

// GetGame returns the stored game record, including terminal snapshots.
func (s *GameService) GetGame(ctx context.Context, gameID string) (game.Game, error) {
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return game.Game{}, translate(err)
	}
	return g, nil
}

// GetActiveGameForChannel returns the waiting or playing game in a channel.
func (s *GameService) GetActiveGameForChannel(ctx context.Context, channelID string) (game.Game, error) {
	g, err := s.store.FindActiveGameByChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return game.Game{}, game.Wrap(game.CodeNotFound, "no active game in channel", err)
		}
		return game.Game{}, err
	}
	return g, nil
}

// View returns the public view of a game.
func (s *GameService) View(ctx context.Context, gameID string) (View, error) {
	var v View
	err := s.store.Read(ctx, gameID, func(r store.Reader) error {
		g, err := r.GetGame(ctx, gameID)
		if err != nil {
			return err
		}
		members, err := r.ListMembers(ctx, gameID)
		if err != nil {
			return err
		}
		cards, err := r.FindCards(ctx, store.CardFilter{GameID: gameID})
		if err != nil {
			return err
		}
		v = NewView(g, members, cards)
		return nil
	})
	if err != nil {
		return View{}, translate(err)
	}
	return v, nil
}

// Hand returns a member's private hand.
func (s *GameService) Hand(ctx context.Context, gameID, playerID string) (Hand, error) {
	var h Hand
	err := s.store.Read(ctx, gameID, func(r store.Reader) error {
		members, err := r.ListMembers(ctx, gameID)
		if err != nil {
			return err
		}
		if !store.IsMember(members, playerID) {
			return game.ErrNotMember
		}
		cards, err := r.FindCards(ctx, store.CardFilter{GameID: gameID, PlayerID: playerID})
		if err != nil {
			return err
		}
		h = newHand(gameID, playerID, cards)
		return nil
	})
	if err != nil {
		return Hand{}, translate(err)
	}
	return h, nil
}

// RevealedWithPlayers lists the numbers on the table with who held them.
func (s *GameService) RevealedWithPlayers(ctx context.Context, gameID string) ([]RevealedCard, error) {
	v, err := s.View(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return v.RevealedBy, nil
}
