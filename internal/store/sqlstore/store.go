// Package sqlstore persists games in SQLite (modernc.org/sqlite) or Postgres
// (lib/pq) behind the store.Store contract.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/lox/ito/internal/game"
	"github.com/lox/ito/internal/gameid"
	"github.com/lox/ito/internal/store"
	"github.com/lox/ito/internal/store/sqlstore/migrations"
)

// Store is a database/sql backed store.Store.
type Store struct {
	db      *sql.DB
	dialect Dialect
	newID   func() string
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens a SQLite database file and applies migrations.
func OpenSQLite(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	return Open(context.Background(), SQLite, dsn)
}

// OpenPostgres connects to dsn and applies migrations.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	return Open(ctx, Postgres, dsn)
}

// Open connects with the given dialect, pings, and migrates.
func Open(ctx context.Context, d Dialect, dsn string) (*Store, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", d.Name, err)
	}
	if d.MaxConns > 0 {
		db.SetMaxOpenConns(d.MaxConns)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", d.Name, err)
	}
	if err := ApplyMigrations(ctx, db, d, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, dialect: d, newID: gameid.Generate}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Dialect reports which database the store talks to.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) CreateGame(ctx context.Context, g game.Game, fn func(tx store.Tx) error) (err error) {
	if g.ID == "" {
		return fmt.Errorf("game id is required")
	}
	revealed, topicID, topicTitle, topicDesc, err := encodeGame(g)
	if err != nil {
		return err
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	_, err = sqlTx.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO games (
		  id, channel_id, created_by,
		  min_number, max_number, card_count, hp,
		  status, outcome, failure_count, revealed,
		  topic_id, topic_title, topic_description,
		  created_at, started_at, ended_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		g.ID, g.ChannelID, g.CreatedBy,
		g.Config.MinNumber, g.Config.MaxNumber, g.Config.CardCount, g.Config.HP,
		string(g.Status), string(g.Outcome), g.FailureCount, revealed,
		topicID, topicTitle, topicDesc,
		toMillis(g.CreatedAt), toMillis(g.StartedAt), toMillis(g.EndedAt),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("create game: %w", err)
	}
	if fn != nil {
		if err = fn(&tx{store: s, sqlTx: sqlTx, id: g.ID}); err != nil {
			return err
		}
	}
	if err = sqlTx.Commit(); err != nil {
		if IsUniqueViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) GetGame(ctx context.Context, id string) (game.Game, error) {
	return getGame(ctx, s.db, s.dialect, id, "")
}

func (s *Store) FindActiveGameByChannel(ctx context.Context, channelID string) (game.Game, error) {
	row := s.db.QueryRowContext(ctx,
		s.dialect.Rebind(selectGame+` WHERE channel_id = ? AND status IN ('waiting', 'playing')`),
		channelID,
	)
	return scanGame(row)
}

func (s *Store) DeleteGame(ctx context.Context, id string) error {
	return s.Update(ctx, id, func(t store.Tx) error {
		sqlTx := t.(*tx).sqlTx
		for _, q := range []string{
			`DELETE FROM cards WHERE game_id = ?`,
			`DELETE FROM game_members WHERE game_id = ?`,
			`DELETE FROM games WHERE id = ?`,
		} {
			if _, err := sqlTx.ExecContext(ctx, s.dialect.Rebind(q), id); err != nil {
				return fmt.Errorf("delete game: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) FindCards(ctx context.Context, filter store.CardFilter) ([]game.Card, error) {
	return findCards(ctx, s.db, s.dialect, filter)
}

func (s *Store) ListMembers(ctx context.Context, gameID string) ([]store.Member, error) {
	if _, err := getGame(ctx, s.db, s.dialect, gameID, ""); err != nil {
		return nil, err
	}
	return listMembers(ctx, s.db, s.dialect, gameID)
}

func (s *Store) FindOrCreatePlayer(ctx context.Context, externalID, name string) (game.Player, error) {
	if externalID == "" {
		return game.Player{}, fmt.Errorf("external id is required")
	}
	_, err := s.db.ExecContext(ctx,
		s.dialect.Rebind(`INSERT INTO players (id, external_id, name) VALUES (?, ?, ?)
		  ON CONFLICT (external_id) DO NOTHING`),
		s.newID(), externalID, name,
	)
	if err != nil {
		return game.Player{}, fmt.Errorf("create player: %w", err)
	}
	if name != "" {
		if _, err := s.db.ExecContext(ctx,
			s.dialect.Rebind(`UPDATE players SET name = ? WHERE external_id = ? AND name <> ?`),
			name, externalID, name,
		); err != nil {
			return game.Player{}, fmt.Errorf("rename player: %w", err)
		}
	}
	return scanPlayer(s.db.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT id, external_id, name FROM players WHERE external_id = ?`), externalID))
}

func (s *Store) GetPlayer(ctx context.Context, id string) (game.Player, error) {
	return scanPlayer(s.db.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT id, external_id, name FROM players WHERE id = ?`), id))
}

// Update opens a transaction, locks the game row where the database supports
// it, and commits when fn succeeds.
func (s *Store) Update(ctx context.Context, gameID string, fn func(tx store.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if _, err = getGame(ctx, sqlTx, s.dialect, gameID, s.dialect.LockRow); err != nil {
		return err
	}
	if err = fn(&tx{store: s, sqlTx: sqlTx, id: gameID}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Read runs fn against one consistent snapshot of gameID.
func (s *Store) Read(ctx context.Context, gameID string, fn func(r store.Reader) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: s.dialect.ReadIsolation})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if _, err := getGame(ctx, sqlTx, s.dialect, gameID, ""); err != nil {
		return err
	}
	return fn(&tx{store: s, sqlTx: sqlTx, id: gameID})
}

const selectGame = `
	SELECT id, channel_id, created_by,
	       min_number, max_number, card_count, hp,
	       status, outcome, failure_count, revealed,
	       topic_id, topic_title, topic_description,
	       created_at, started_at, ended_at
	  FROM games`

func getGame(ctx context.Context, q querier, d Dialect, id, suffix string) (game.Game, error) {
	row := q.QueryRowContext(ctx, d.Rebind(selectGame+` WHERE id = ?`+suffix), id)
	return scanGame(row)
}

func scanGame(row *sql.Row) (game.Game, error) {
	var (
		g                              game.Game
		status, outcome, revealed      string
		topicID, topicTitle, topicDesc string
		createdAt, startedAt, endedAt  int64
	)
	err := row.Scan(
		&g.ID, &g.ChannelID, &g.CreatedBy,
		&g.Config.MinNumber, &g.Config.MaxNumber, &g.Config.CardCount, &g.Config.HP,
		&status, &outcome, &g.FailureCount, &revealed,
		&topicID, &topicTitle, &topicDesc,
		&createdAt, &startedAt, &endedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return game.Game{}, store.ErrNotFound
		}
		return game.Game{}, fmt.Errorf("get game: %w", err)
	}
	g.Status = game.Status(status)
	g.Outcome = game.Outcome(outcome)
	if err := json.Unmarshal([]byte(revealed), &g.Revealed); err != nil {
		return game.Game{}, fmt.Errorf("decode revealed cards of game %s: %w", g.ID, err)
	}
	if g.Revealed == nil {
		g.Revealed = []int{}
	}
	if topicID != "" || topicTitle != "" {
		g.Topic = &game.Topic{ID: topicID, Title: topicTitle, Description: topicDesc}
	}
	g.CreatedAt = fromMillis(createdAt)
	g.StartedAt = fromMillis(startedAt)
	g.EndedAt = fromMillis(endedAt)
	return g, nil
}

func encodeGame(g game.Game) (revealed, topicID, topicTitle, topicDesc string, err error) {
	values := g.Revealed
	if values == nil {
		values = []int{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", "", "", "", fmt.Errorf("encode revealed cards: %w", err)
	}
	if g.Topic != nil {
		topicID, topicTitle, topicDesc = g.Topic.ID, g.Topic.Title, g.Topic.Description
	}
	return string(data), topicID, topicTitle, topicDesc, nil
}

func findCards(ctx context.Context, q querier, d Dialect, filter store.CardFilter) ([]game.Card, error) {
	var (
		where []string
		args  []any
	)
	if filter.GameID != "" {
		where = append(where, "game_id = ?")
		args = append(args, filter.GameID)
	}
	if filter.PlayerID != "" {
		where = append(where, "player_id = ?")
		args = append(args, filter.PlayerID)
	}
	if len(filter.States) > 0 {
		marks := make([]string, len(filter.States))
		for i, st := range filter.States {
			marks[i] = "?"
			args = append(args, st.String())
		}
		where = append(where, "state IN ("+strings.Join(marks, ", ")+")")
	}
	query := `SELECT id, game_id, player_id, number, state, revealed_at, eliminated_at FROM cards`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY game_id, number"

	rows, err := q.QueryContext(ctx, d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("find cards: %w", err)
	}
	defer rows.Close()

	var cards []game.Card
	for rows.Next() {
		var (
			c                        game.Card
			state                    string
			revealedAt, eliminatedAt int64
		)
		if err := rows.Scan(&c.ID, &c.GameID, &c.PlayerID, &c.Number, &state, &revealedAt, &eliminatedAt); err != nil {
			return nil, fmt.Errorf("find cards: %w", err)
		}
		if c.State, err = game.ParseCardState(state); err != nil {
			return nil, fmt.Errorf("card %s: %w", c.ID, err)
		}
		c.RevealedAt = fromMillis(revealedAt)
		c.EliminatedAt = fromMillis(eliminatedAt)
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find cards: %w", err)
	}
	return cards, nil
}

func listMembers(ctx context.Context, q querier, d Dialect, gameID string) ([]store.Member, error) {
	rows, err := q.QueryContext(ctx, d.Rebind(`
		SELECT p.id, p.external_id, p.name, m.joined_at
		  FROM game_members m
		  JOIN players p ON p.id = m.player_id
		 WHERE m.game_id = ?
		 ORDER BY m.seat`), gameID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := []store.Member{}
	for rows.Next() {
		var (
			m        store.Member
			joinedAt int64
		)
		if err := rows.Scan(&m.ID, &m.ExternalID, &m.Name, &joinedAt); err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		m.JoinedAt = fromMillis(joinedAt)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

func scanPlayer(row *sql.Row) (game.Player, error) {
	var p game.Player
	if err := row.Scan(&p.ID, &p.ExternalID, &p.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return game.Player{}, store.ErrNotFound
		}
		return game.Player{}, fmt.Errorf("get player: %w", err)
	}
	return p, nil
}

var _ store.Store = (*Store)(nil)
