package sqlstore

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/lib/pq"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Dialect captures the differences between the supported databases.
type Dialect struct {
	Name   string
	Driver string
	// Numbered placeholders ($1, $2) instead of ?.
	Numbered bool
	// LockRow is appended to the game read that opens a transaction.
	LockRow string
	// MaxConns bounds the pool; SQLite needs a single writer.
	MaxConns int
	// ReadIsolation gives Read a single snapshot across its queries.
	ReadIsolation sql.IsolationLevel
}

var (
	SQLite = Dialect{
		Name:     "sqlite",
		Driver:   "sqlite",
		MaxConns: 1,
	}
	Postgres = Dialect{
		Name:     "postgres",
		Driver:   "postgres",
		Numbered:      true,
		LockRow:       " FOR UPDATE",
		ReadIsolation: sql.LevelRepeatableRead,
	}
)

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return SQLite, true
	case "postgres", "postgresql", "pg":
		return Postgres, true
	}
	return Dialect{}, false
}

// Rebind rewrites ? placeholders for the dialect. Queries must not contain
// literal question marks.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsUniqueViolation reports whether err is a uniqueness or primary key
// failure in either database.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
