package service

import (
	"context"

	"github.com/lox/ito/internal/game"
	"github.com/lox/ito/internal/store"
)

// ProposeCard plays the player's lowest held card and judges the table.
// A verdict ending the game finishes it in the same transaction.
func (s *GameService) ProposeCard(ctx context.Context, gameID, playerID string) (Result, error) {
	return s.update(ctx, EventCardProposed, gameID, playerID, func(ctx context.Context, m *mutation) error {
		if m.game.Status != game.StatusPlaying {
			return game.Errorf(game.CodeInvalidState, "cannot propose in a %s game", m.game.Status)
		}
		if !m.isMember(playerID) {
			return game.ErrNotMember
		}

		cards, err := m.tx.FindCards(ctx, store.CardFilter{GameID: gameID})
		if err != nil {
			return err
		}
		ledger := game.NewLedger(cards)
		res, err := game.Propose(&m.game, ledger, playerID, m.now)
		if err != nil {
			return err
		}
		for _, c := range ledger.Changed() {
			if err := m.tx.UpdateCard(ctx, c); err != nil {
				return err
			}
		}
		m.result.Resolution = &res
		m.withHands = true

		hp := m.game.Config.HP
		m.afterCommit(func() {
			s.logger.Info("Card proposed", "game", gameID, "player", playerID, "number", res.Card.Number,
				"correct", res.Correct, "expected", res.Expected, "cascaded", len(res.Cascaded),
				"failures", res.FailureCount, "hp", hp)
		})

		if res.Verdict.Over {
			return s.end(ctx, m, game.StatusFinished, res.Verdict.Outcome)
		}
		return m.tx.UpdateGame(ctx, m.game)
	})
}
