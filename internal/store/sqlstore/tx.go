package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/ito/internal/game"
	"github.com/lox/ito/internal/store"
)

type tx struct {
	store *Store
	sqlTx *sql.Tx
	id    string
}

func (t *tx) scoped(gameID string) error {
	if gameID != t.id {
		return fmt.Errorf("transaction is scoped to game %s, not %s", t.id, gameID)
	}
	return nil
}

func (t *tx) rebind(query string) string {
	return t.store.dialect.Rebind(query)
}

func (t *tx) GetGame(ctx context.Context, id string) (game.Game, error) {
	if err := t.scoped(id); err != nil {
		return game.Game{}, err
	}
	return getGame(ctx, t.sqlTx, t.store.dialect, id, "")
}

func (t *tx) FindCards(ctx context.Context, filter store.CardFilter) ([]game.Card, error) {
	if filter.GameID == "" {
		filter.GameID = t.id
	}
	if err := t.scoped(filter.GameID); err != nil {
		return nil, err
	}
	return findCards(ctx, t.sqlTx, t.store.dialect, filter)
}

func (t *tx) ListMembers(ctx context.Context, gameID string) ([]store.Member, error) {
	if err := t.scoped(gameID); err != nil {
		return nil, err
	}
	return listMembers(ctx, t.sqlTx, t.store.dialect, gameID)
}

func (t *tx) UpdateGame(ctx context.Context, g game.Game) error {
	if err := t.scoped(g.ID); err != nil {
		return err
	}
	revealed, topicID, topicTitle, topicDesc, err := encodeGame(g)
	if err != nil {
		return err
	}
	res, err := t.sqlTx.ExecContext(ctx, t.rebind(`
		UPDATE games SET
		  channel_id = ?, created_by = ?,
		  min_number = ?, max_number = ?, card_count = ?, hp = ?,
		  status = ?, outcome = ?, failure_count = ?, revealed = ?,
		  topic_id = ?, topic_title = ?, topic_description = ?,
		  created_at = ?, started_at = ?, ended_at = ?
		WHERE id = ?`),
		g.ChannelID, g.CreatedBy,
		g.Config.MinNumber, g.Config.MaxNumber, g.Config.CardCount, g.Config.HP,
		string(g.Status), string(g.Outcome), g.FailureCount, revealed,
		topicID, topicTitle, topicDesc,
		toMillis(g.CreatedAt), toMillis(g.StartedAt), toMillis(g.EndedAt),
		g.ID,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("update game: %w", err)
	}
	return expectOne(res, "update game")
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
		_, err := t.sqlTx.ExecContext(ctx, t.rebind(`
			INSERT INTO cards (id, game_id, player_id, number, state, revealed_at, eliminated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			c.ID, c.GameID, c.PlayerID, c.Number, c.State.String(),
			toMillis(c.RevealedAt), toMillis(c.EliminatedAt),
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return nil, store.ErrConflict
			}
			return nil, fmt.Errorf("create card: %w", err)
		}
		out[i] = c
	}
	return out, nil
}

func (t *tx) UpdateCard(ctx context.Context, c game.Card) error {
	if err := t.scoped(c.GameID); err != nil {
		return err
	}
	res, err := t.sqlTx.ExecContext(ctx, t.rebind(`
		UPDATE cards SET state = ?, revealed_at = ?, eliminated_at = ?
		WHERE id = ? AND game_id = ?`),
		c.State.String(), toMillis(c.RevealedAt), toMillis(c.EliminatedAt), c.ID, c.GameID,
	)
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	return expectOne(res, "update card")
}

func (t *tx) DeleteCards(ctx context.Context, gameID string) error {
	if err := t.scoped(gameID); err != nil {
		return err
	}
	if _, err := t.sqlTx.ExecContext(ctx, t.rebind(`DELETE FROM cards WHERE game_id = ?`), gameID); err != nil {
		return fmt.Errorf("delete cards: %w", err)
	}
	return nil
}

func (t *tx) AddMember(ctx context.Context, gameID, playerID string, joinedAt time.Time) error {
	if err := t.scoped(gameID); err != nil {
		return err
	}
	var found int
	err := t.sqlTx.QueryRowContext(ctx, t.rebind(`SELECT 1 FROM players WHERE id = ?`), playerID).Scan(&found)
	if err != nil {
		if err == sql.ErrNoRows {
			return store.ErrNotFound
		}
		return fmt.Errorf("add member: %w", err)
	}
	_, err = t.sqlTx.ExecContext(ctx, t.rebind(`
		INSERT INTO game_members (game_id, player_id, seat, joined_at)
		SELECT ?, ?, COALESCE(MAX(seat), 0) + 1, ?
		  FROM game_members WHERE game_id = ?`),
		gameID, playerID, toMillis(joinedAt), gameID,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (t *tx) RemoveMember(ctx context.Context, gameID, playerID string) error {
	if err := t.scoped(gameID); err != nil {
		return err
	}
	res, err := t.sqlTx.ExecContext(ctx,
		t.rebind(`DELETE FROM game_members WHERE game_id = ? AND player_id = ?`), gameID, playerID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return expectOne(res, "remove member")
}

func (t *tx) ClearMembers(ctx context.Context, gameID string) error {
	if err := t.scoped(gameID); err != nil {
		return err
	}
	if _, err := t.sqlTx.ExecContext(ctx, t.rebind(`DELETE FROM game_members WHERE game_id = ?`), gameID); err != nil {
		return fmt.Errorf("clear members: %w", err)
	}
	return nil
}

func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
