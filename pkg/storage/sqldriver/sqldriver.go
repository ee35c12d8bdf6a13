// Package sqldriver implements storage.Driver on top of database/sql. The
// sqlite and postgres packages open a *sql.DB with their dialect and embed
// the resulting Driver.
package sqldriver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/papercomputeco/parlor/pkg/chat"
	"github.com/papercomputeco/parlor/pkg/storage"
)

// Dialect captures the SQL differences between backends.
type Dialect struct {
	Name string

	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
}

// SQLite binds parameters with "?".
var SQLite = Dialect{
	Name:        "sqlite3",
	Placeholder: func(int) string { return "?" },
}

// Postgres binds parameters with "$n".
var Postgres = Dialect{
	Name:        "postgres",
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
}

const schema = `CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	current_name  TEXT NOT NULL,
	draft         TEXT NOT NULL,
	model         TEXT NOT NULL DEFAULT '',
	conversations TEXT NOT NULL,
	created_at    BIGINT NOT NULL,
	updated_at    BIGINT NOT NULL
)`

// Driver implements storage.Driver over a *sql.DB.
type Driver struct {
	DB      *sql.DB
	Dialect Dialect
}

// New wraps db and creates the sessions table when missing.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Driver, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Driver{DB: db, Dialect: dialect}, nil
}

// bind replaces each "?" in query with the dialect's placeholder.
func (d *Driver) bind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.Dialect.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Save inserts or replaces a session snapshot.
func (d *Driver) Save(ctx context.Context, session *storage.Session) error {
	if err := storage.Validate(session); err != nil {
		return err
	}

	draft, err := json.Marshal(session.Draft)
	if err != nil {
		return fmt.Errorf("encoding draft: %w", err)
	}
	convs, err := json.Marshal(session.Conversations)
	if err != nil {
		return fmt.Errorf("encoding conversations: %w", err)
	}

	created := session.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := session.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	query := d.bind(`INSERT INTO sessions (id, current_name, draft, model, conversations, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	current_name = excluded.current_name,
	draft = excluded.draft,
	model = excluded.model,
	conversations = excluded.conversations,
	updated_at = excluded.updated_at`)

	_, err = d.DB.ExecContext(ctx, query,
		session.ID,
		session.Current,
		string(draft),
		session.Model,
		string(convs),
		created.UnixNano(),
		updated.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", session.ID, err)
	}
	return nil
}

// Load retrieves a session by its ID.
func (d *Driver) Load(ctx context.Context, id string) (*storage.Session, error) {
	row := d.DB.QueryRowContext(ctx, d.bind(
		`SELECT id, current_name, draft, model, conversations, created_at, updated_at FROM sessions WHERE id = ?`,
	), id)

	var (
		s                storage.Session
		draft, convs     string
		created, updated int64
	)
	err := row.Scan(&s.ID, &s.Current, &draft, &s.Model, &convs, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(draft), &s.Draft); err != nil {
		return nil, fmt.Errorf("decoding draft: %w", err)
	}
	var conversations []chat.Conversation
	if err := json.Unmarshal([]byte(convs), &conversations); err != nil {
		return nil, fmt.Errorf("decoding conversations: %w", err)
	}
	s.Conversations = conversations
	s.CreatedAt = time.Unix(0, created).UTC()
	s.UpdatedAt = time.Unix(0, updated).UTC()
	return &s, nil
}

// List returns a summary of every stored session, most recently updated first.
func (d *Driver) List(ctx context.Context) ([]storage.Summary, error) {
	rows, err := d.DB.QueryContext(ctx,
		`SELECT id, current_name, conversations, updated_at FROM sessions ORDER BY updated_at DESC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []storage.Summary
	for rows.Next() {
		var (
			sum     storage.Summary
			convs   string
			updated int64
		)
		if err := rows.Scan(&sum.ID, &sum.Current, &convs, &updated); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}

		var conversations []json.RawMessage
		if err := json.Unmarshal([]byte(convs), &conversations); err != nil {
			return nil, fmt.Errorf("decoding conversations: %w", err)
		}
		sum.Conversations = len(conversations)
		sum.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes a session.
func (d *Driver) Delete(ctx context.Context, id string) error {
	res, err := d.DB.ExecContext(ctx, d.bind(`DELETE FROM sessions WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if n == 0 {
		return storage.NotFoundError{ID: id}
	}
	return nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.DB.Close()
}
