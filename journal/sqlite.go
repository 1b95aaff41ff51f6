package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tradeops/riskgate/internal/id"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordEvent(e Event) error {
	if e.ID == "" {
		e.ID = id.New()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	_, err := j.db.Exec(`
		INSERT INTO events
		(event_id, category, level, scope_key, code, message, time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Category, e.Level, e.ScopeKey, e.Code, e.Message, e.Time,
	)
	return err
}

// ListEvents returns the most recent events, newest first. A non-empty
// scopeKey restricts the listing to that key.
func (j *SQLite) ListEvents(scopeKey string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		rows *sql.Rows
		err  error
	)
	if scopeKey == "" {
		rows, err = j.db.Query(`
			SELECT event_id, category, level, scope_key, code, message, time
			FROM events ORDER BY time DESC, event_id DESC LIMIT ?`, limit)
	} else {
		rows, err = j.db.Query(`
			SELECT event_id, category, level, scope_key, code, message, time
			FROM events WHERE scope_key = ? ORDER BY time DESC, event_id DESC LIMIT ?`,
			scopeKey, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Category, &e.Level, &e.ScopeKey, &e.Code, &e.Message, &e.Time); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LoadInterval returns the persisted bar interval for a scope key, or 0 when
// none has been stored yet.
func (j *SQLite) LoadInterval(scopeKey string) (int, error) {
	var minutes int
	err := j.db.QueryRow(`SELECT minutes FROM intervals WHERE scope_key = ?`, scopeKey).Scan(&minutes)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load interval: %w", err)
	}
	return minutes, nil
}

func (j *SQLite) SaveInterval(scopeKey string, minutes int) error {
	_, err := j.db.Exec(`
		INSERT INTO intervals (scope_key, minutes, updated) VALUES (?, ?, ?)
		ON CONFLICT(scope_key) DO UPDATE SET minutes = excluded.minutes, updated = excluded.updated`,
		scopeKey, minutes, time.Now().UTC(),
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
