package service

import (
	"context"
	"errors"

	"github.com/lox/ito/internal/deck"
	"github.com/lox/ito/internal/game"
	"github.com/lox/ito/internal/store"
)

// CreateParams describes a new game.
type CreateParams struct {
	ChannelID string
	CreatorID string
	// Config fields left zero take the service defaults.
	Config game.Config
}

// CreateGame opens a waiting game in a channel with the creator seated.
func (s *GameService) CreateGame(ctx context.Context, params CreateParams) (Result, error) {
	ctx, span := s.startSpan(ctx, "create_game", "", params.CreatorID)
	defer span.End()

	cfg := params.Config.WithDefaults(s.defaults)
	if err := cfg.Validate(); err != nil {
		s.fail(span, err)
		return Result{}, err
	}
	if _, err := s.store.GetPlayer(ctx, params.CreatorID); err != nil {
		err = translatePlayer(err)
		s.fail(span, err)
		return Result{}, err
	}

	g := game.Game{
		ID:        s.newID(),
		ChannelID: params.ChannelID,
		CreatedBy: params.CreatorID,
		Config:    cfg,
		Status:    game.StatusWaiting,
		Revealed:  []int{},
		CreatedAt: s.clock.Now().UTC(),
	}
	createInTx := func(ctx context.Context, body func(tx store.Tx) error) error {
		return s.store.CreateGame(ctx, g, body)
	}
	res, err := s.commit(ctx, EventGameCreated, g.ID, params.CreatorID, createInTx, func(ctx context.Context, m *mutation) error {
		return m.tx.AddMember(ctx, g.ID, params.CreatorID, m.now)
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			err = game.Wrap(game.CodeGameInProgress, "channel already has an active game", err)
		}
		s.fail(span, err)
		return Result{}, err
	}
	s.logger.Info("Game created", "game", g.ID, "channel", g.ChannelID, "creator", params.CreatorID,
		"range", cfg.MinNumber, "max", cfg.MaxNumber, "cards", cfg.CardCount, "hp", cfg.HP)
	return res, nil
}

// JoinGame seats a player in a waiting game.
func (s *GameService) JoinGame(ctx context.Context, gameID, playerID string) (Result, error) {
	return s.update(ctx, EventPlayerJoined, gameID, playerID, func(ctx context.Context, m *mutation) error {
		if m.game.Status != game.StatusWaiting {
			return game.Errorf(game.CodeInvalidState, "cannot join a %s game", m.game.Status)
		}
		if m.isMember(playerID) {
			return game.ErrAlreadyJoined
		}
		if err := m.tx.AddMember(ctx, gameID, playerID, m.now); err != nil {
			switch {
			case errors.Is(err, store.ErrConflict):
				return game.Wrap(game.CodeAlreadyJoined, "player already joined", err)
			case errors.Is(err, store.ErrNotFound):
				return game.Wrap(game.CodeNotFound, "player not found", err)
			}
			return err
		}
		s.logger.Debug("Player joined", "game", gameID, "player", playerID, "members", len(m.members)+1)
		return nil
	})
}

// LeaveGame removes a player from a waiting game. The creator cannot leave.
func (s *GameService) LeaveGame(ctx context.Context, gameID, playerID string) (Result, error) {
	return s.update(ctx, EventPlayerLeft, gameID, playerID, func(ctx context.Context, m *mutation) error {
		if m.game.Status != game.StatusWaiting {
			return game.Errorf(game.CodeInvalidState, "cannot leave a %s game", m.game.Status)
		}
		if !m.isMember(playerID) {
			return game.ErrNotMember
		}
		if m.game.IsCreator(playerID) {
			return game.ErrCreatorCannotLeave
		}
		if err := m.tx.RemoveMember(ctx, gameID, playerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return game.Wrap(game.CodeNotMember, "player is not a member of the game", err)
			}
			return err
		}
		s.logger.Debug("Player left", "game", gameID, "player", playerID)
		return nil
	})
}

// StartGame picks a topic, deals the cards and begins play.
func (s *GameService) StartGame(ctx context.Context, gameID, actorID string) (Result, error) {
	return s.update(ctx, EventGameStarted, gameID, actorID, func(ctx context.Context, m *mutation) error {
		if m.game.Status != game.StatusWaiting {
			return game.Errorf(game.CodeInvalidState, "cannot start a %s game", m.game.Status)
		}
		if !m.game.IsCreator(actorID) {
			return game.ErrNotAuthorized
		}
		cfg := m.game.Config
		if err := cfg.CheckStart(len(m.members)); err != nil {
			return err
		}

		picked, err := s.pickTopic(ctx, nil)
		if err != nil {
			return err
		}

		numbers, err := s.allocate(cfg, cfg.CardsNeeded(len(m.members)))
		if err != nil {
			if errors.Is(err, deck.ErrCapacity) {
				return game.Wrap(game.CodeCapacityExceeded, "number range too small for all cards", err)
			}
			return err
		}
		hands, err := deck.Deal(numbers, len(m.members), cfg.CardCount)
		if err != nil {
			return err
		}

		if err := m.tx.DeleteCards(ctx, gameID); err != nil {
			return err
		}
		cards := make([]game.Card, 0, len(numbers))
		for i, member := range m.members {
			for _, n := range hands[i] {
				cards = append(cards, game.Card{GameID: gameID, PlayerID: member.ID, Number: n, State: game.CardHeld})
			}
		}
		if _, err := m.tx.CreateCards(ctx, cards); err != nil {
			return err
		}

		m.game.Status = game.StatusPlaying
		m.game.Outcome = game.OutcomeNone
		m.game.FailureCount = 0
		m.game.Revealed = []int{}
		m.game.Topic = &picked
		m.game.StartedAt = m.now
		if err := m.tx.UpdateGame(ctx, m.game); err != nil {
			return err
		}
		m.withHands = true

		players := len(m.members)
		m.afterCommit(func() {
			s.logger.Info("Game started", "game", gameID, "players", players, "cards", len(cards), "topic", picked.Title)
		})
		return nil
	})
}

// ChangeTopic swaps the topic of a running game.
func (s *GameService) ChangeTopic(ctx context.Context, gameID, actorID string) (Result, error) {
	return s.update(ctx, EventTopicChanged, gameID, actorID, func(ctx context.Context, m *mutation) error {
		if m.game.Status != game.StatusPlaying {
			return game.Errorf(game.CodeInvalidState, "cannot change the topic of a %s game", m.game.Status)
		}
		if !m.game.IsCreator(actorID) {
			return game.ErrNotAuthorized
		}
		picked, err := s.pickTopic(ctx, m.game.Topic)
		if err != nil {
			return err
		}
		m.game.Topic = &picked
		s.logger.Debug("Topic changed", "game", gameID, "topic", picked.Title)
		return m.tx.UpdateGame(ctx, m.game)
	})
}

// CancelGame aborts a waiting or running game.
func (s *GameService) CancelGame(ctx context.Context, gameID, actorID string) (Result, error) {
	return s.update(ctx, EventGameEnded, gameID, actorID, func(ctx context.Context, m *mutation) error {
		if !m.game.Status.Active() {
			return game.Errorf(game.CodeInvalidState, "game is already %s", m.game.Status)
		}
		if !m.game.IsCreator(actorID) {
			return game.ErrNotAuthorized
		}
		return s.end(ctx, m, game.StatusCancelled, game.OutcomeNone)
	})
}

// ForceEndGame stops a running game and reveals every card.
func (s *GameService) ForceEndGame(ctx context.Context, gameID, actorID string) (Result, error) {
	return s.update(ctx, EventGameEnded, gameID, actorID, func(ctx context.Context, m *mutation) error {
		if m.game.Status != game.StatusPlaying {
			return game.Errorf(game.CodeInvalidState, "cannot force-end a %s game", m.game.Status)
		}
		if !m.game.IsCreator(actorID) {
			return game.ErrNotAuthorized
		}
		return s.end(ctx, m, game.StatusFinished, game.OutcomeAbandoned)
	})
}

// DeleteGame removes a game and everything attached to it. Only the creator
// may delete a game that is still active.
func (s *GameService) DeleteGame(ctx context.Context, gameID, actorID string) error {
	ctx, span := s.startSpan(ctx, string(EventGameDeleted), gameID, actorID)
	defer span.End()

	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		err = translate(err)
		s.fail(span, err)
		return err
	}
	if g.Status.Active() && !g.IsCreator(actorID) {
		s.fail(span, game.ErrNotAuthorized)
		return game.ErrNotAuthorized
	}
	if err := s.store.DeleteGame(ctx, gameID); err != nil {
		err = translate(err)
		s.fail(span, err)
		return err
	}
	s.dropBinding(gameID)
	s.logger.Info("Game deleted", "game", gameID, "by", actorID)
	s.notify(ctx, Event{Type: EventGameDeleted, GameID: gameID, ActorID: actorID, Result: Result{Game: g}})
	return nil
}

// end moves the game to a terminal state. It captures the full reveal before
// purging cards and memberships; the game record stays as the final snapshot.
func (s *GameService) end(ctx context.Context, m *mutation, status game.Status, outcome game.Outcome) error {
	cards, err := m.tx.FindCards(ctx, store.CardFilter{GameID: m.game.ID})
	if err != nil {
		return err
	}
	if len(cards) > 0 {
		m.game.Revealed = game.NewLedger(cards).Revealed()
	}
	reveal := NewReveal(m.members, cards)
	m.result.Reveal = &reveal
	m.cards = cards
	m.ended = true

	if err := m.tx.DeleteCards(ctx, m.game.ID); err != nil {
		return err
	}
	if err := m.tx.ClearMembers(ctx, m.game.ID); err != nil {
		return err
	}
	m.game.Status = status
	m.game.Outcome = outcome
	m.game.EndedAt = m.now
	if err := m.tx.UpdateGame(ctx, m.game); err != nil {
		return err
	}
	ended := m.game
	m.afterCommit(func() {
		s.logger.Info("Game ended", "game", ended.ID, "status", status, "outcome", outcome,
			"failures", ended.FailureCount, "revealed", len(ended.Revealed))
	})
	return nil
}

func translatePlayer(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return game.Wrap(game.CodeNotFound, "player not found", err)
	}
	return err
}
