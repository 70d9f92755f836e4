package sessions

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aisbot/aisbot/internal/observability"
	"github.com/aisbot/aisbot/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	key        TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_key TEXT NOT NULL,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_key, id);
`

// SQLiteStore archives every session in a single database file. It holds the
// same records as the file store, with indexed lookup across sessions.
type SQLiteStore struct {
	db      *sql.DB
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewSQLiteStore opens (and if needed creates) the archive database at path.
func NewSQLiteStore(path string, logger *observability.Logger, metrics *observability.Metrics) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc's sqlite is single-writer; a second connection would fail
	// with SQLITE_BUSY instead of queueing.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger, metrics: metrics}, nil
}

func (s *SQLiteStore) GetOrCreate(ctx context.Context, key string) (*Session, error) {
	session, err := s.Get(ctx, key)
	if err == nil {
		return session, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	session = NewSession(key)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (key, created_at, updated_at) VALUES (?, ?, ?)`,
		key, formatTime(session.Created), formatTime(session.Updated))
	if err != nil {
		return nil, fmt.Errorf("create session %s: %w", key, err)
	}
	return session, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*Session, error) {
	start := time.Now()
	session, err := s.get(ctx, key)
	if err != nil && err != ErrNotFound {
		s.record("load", err, start)
		return nil, err
	}
	if err == nil {
		s.record("load", nil, start)
	}
	return session, err
}

func (s *SQLiteStore) get(ctx context.Context, key string) (*Session, error) {
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM sessions WHERE key = ?`, key).
		Scan(&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", key, err)
	}

	session := &Session{
		Key:     key,
		Created: parseTime(createdAt),
		Updated: parseTime(updatedAt),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM messages WHERE session_key = ? ORDER BY id`, key)
	if err != nil {
		return nil, fmt.Errorf("load messages for %s: %w", key, err)
	}
	defer rows.Close()

	for rows.Next() {
		var role, content, at string
		if err := rows.Scan(&role, &content, &at); err != nil {
			return nil, fmt.Errorf("scan message for %s: %w", key, err)
		}
		session.Messages = append(session.Messages, models.SessionMessage{
			Role:      role,
			Content:   content,
			Timestamp: parseTime(at),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load messages for %s: %w", key, err)
	}
	return session, nil
}

// Save replaces the stored transcript with the session's current one inside
// a transaction.
func (s *SQLiteStore) Save(ctx context.Context, session *Session) error {
	if session == nil || session.Key == "" {
		return fmt.Errorf("session key is required")
	}

	start := time.Now()
	err := s.save(ctx, session)
	s.record("save", err, start)
	return err
}

func (s *SQLiteStore) save(ctx context.Context, session *Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (key, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET updated_at = excluded.updated_at`,
		session.Key, formatTime(session.Created), formatTime(session.Updated))
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", session.Key, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE session_key = ?`, session.Key); err != nil {
		return fmt.Errorf("clear messages for %s: %w", session.Key, err)
	}

	for _, msg := range session.Messages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_key, role, content, created_at) VALUES (?, ?, ?, ?)`,
			session.Key, msg.Role, msg.Content, formatTime(msg.Timestamp)); err != nil {
			return fmt.Errorf("append message for %s: %w", session.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save for %s: %w", session.Key, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM sessions ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_key = ?`, key); err != nil {
		return fmt.Errorf("delete messages for %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) record(op string, err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordStoreOperation(op, "sqlite", status, time.Since(start).Seconds())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
