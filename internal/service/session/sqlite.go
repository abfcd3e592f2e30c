package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/axelfernandes/axel/backend/internal/model/chat"
)

// timeFormat is RFC 3339 with fixed-width nanoseconds. RFC3339Nano trims
// trailing zeros, which breaks lexicographic ORDER BY on the text column.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store on SQLite. Timestamps are stored as
// fixed-width RFC 3339 text so UpdatedAt keeps full precision and sorts
// correctly as a string.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			repo TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner, updated_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create inserts the session row and its full turn history in one transaction.
func (s *SQLiteStore) Create(ctx context.Context, session *chat.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, owner, repo, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.Owner, session.Repo,
		session.CreatedAt.Format(timeFormat),
		session.UpdatedAt.Format(timeFormat))
	if err != nil {
		return err
	}

	for _, m := range session.Messages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, role, content) VALUES (?, ?, ?)`,
			session.ID, string(m.Role), m.Content); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Get returns the session and its messages in insertion order.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*chat.Session, error) {
	var session chat.Session
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner, repo, created_at, updated_at FROM sessions WHERE id = ?`, id).
		Scan(&session.ID, &session.Owner, &session.Repo, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	session.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	session.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE session_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, err
		}
		session.Messages = append(session.Messages, chat.Message{Role: chat.Role(role), Content: content})
	}
	return &session, rows.Err()
}

// AppendMessage adds one turn and advances updated_at.
func (s *SQLiteStore) AppendMessage(ctx context.Context, id string, message chat.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(timeFormat), id)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content) VALUES (?, ?, ?)`,
		id, string(message.Role), message.Content); err != nil {
		return err
	}
	return tx.Commit()
}

// ListByOwner returns summaries ordered most-recently-updated first.
func (s *SQLiteStore) ListByOwner(ctx context.Context, owner, repo string, limit int) ([]chat.SessionSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT s.id, s.repo, s.created_at, s.updated_at,
		COALESCE((SELECT content FROM messages WHERE session_id = s.id ORDER BY seq ASC LIMIT 1), '')
		FROM sessions s WHERE s.owner = ?`
	args := []interface{}{owner}
	if repo != "" {
		query += ` AND s.repo = ?`
		args = append(args, repo)
	}
	query += ` ORDER BY s.updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]chat.SessionSummary, 0, limit)
	for rows.Next() {
		var summary chat.SessionSummary
		var createdAt, updatedAt, first string
		if err := rows.Scan(&summary.ID, &summary.Repo, &createdAt, &updatedAt, &first); err != nil {
			return nil, err
		}
		summary.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		summary.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
		summary.Preview = preview(first)
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}
