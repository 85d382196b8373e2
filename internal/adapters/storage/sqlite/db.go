// Package sqlite persists profiles, therapeutic records, goals, the
// sentiment log, journal entries and conversation sessions in a local
// SQLite file.
package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 2

// FileName is the database file created under the base directory.
const FileName = "farum.db"

// Store implements the domain storage ports on top of database/sql.
type Store struct {
	db  *sql.DB
	now func() time.Time

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Open initializes the SQLite database at baseDir/farum.db and applies
// pending migrations.
func Open(ctx context.Context, baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("sqlite: create base directory: %w", err)
	}

	dbPath := filepath.Join(baseDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	_ = os.Chmod(dbPath, 0600)

	return &Store{
		db:      db,
		now:     func() time.Time { return time.Now().UTC() },
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) newID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// migrate applies schema migrations based on user_version.
func migrate(ctx context.Context, db *sql.DB) error {
	version, err := userVersion(ctx, db)
	if err != nil {
		return err
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS profiles (
		  user_id         TEXT PRIMARY KEY,
		  display_name    TEXT NOT NULL DEFAULT '',
		  preferred_style TEXT NOT NULL DEFAULT '',
		  preferred_mode  TEXT NOT NULL DEFAULT '',
		  language        TEXT NOT NULL DEFAULT '',
		  created_at      INTEGER NOT NULL,
		  updated_at      INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS therapeutic_records (
		  user_id             TEXT PRIMARY KEY,
		  last_emotion        TEXT NOT NULL DEFAULT '',
		  last_intensity      INTEGER NOT NULL DEFAULT 0,
		  emotion_counts_json TEXT NOT NULL DEFAULT '{}',
		  techniques_json     TEXT NOT NULL DEFAULT '[]',
		  protocols_json      TEXT NOT NULL DEFAULT '[]',
		  interactions        INTEGER NOT NULL DEFAULT 0,
		  updated_at          INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS goals (
		  id          TEXT PRIMARY KEY,
		  user_id     TEXT NOT NULL,
		  description TEXT NOT NULL,
		  status      TEXT NOT NULL,
		  created_at  INTEGER NOT NULL,
		  updated_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_goals_user ON goals(user_id, created_at);

		CREATE TABLE IF NOT EXISTS sentiment_log (
		  id              TEXT PRIMARY KEY,
		  user_id         TEXT NOT NULL,
		  conversation_id TEXT NOT NULL DEFAULT '',
		  emotion         TEXT NOT NULL,
		  intensity       INTEGER NOT NULL,
		  category        TEXT NOT NULL,
		  topic           TEXT NOT NULL DEFAULT '',
		  protocol        TEXT NOT NULL DEFAULT '',
		  created_at      INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sentiment_user ON sentiment_log(user_id, created_at);

		CREATE TABLE IF NOT EXISTS journal_entries (
		  id               TEXT PRIMARY KEY,
		  user_id          TEXT NOT NULL,
		  session_id       TEXT NOT NULL DEFAULT '',
		  protocol         TEXT NOT NULL DEFAULT '',
		  problem_summary  TEXT NOT NULL DEFAULT '',
		  action_plan_json TEXT NOT NULL DEFAULT '[]',
		  reflection       TEXT NOT NULL DEFAULT '',
		  mood_before      TEXT NOT NULL DEFAULT '',
		  mood_after       TEXT NOT NULL DEFAULT '',
		  created_at       INTEGER NOT NULL,
		  updated_at       INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_journal_user ON journal_entries(user_id, created_at);
		`
		if _, err := db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("sqlite: migration 1 failed: %w", err)
		}
		if err := setUserVersion(ctx, db, 1); err != nil {
			return err
		}
	}

	if version < 2 {
		schema := `
		CREATE TABLE IF NOT EXISTS sessions (
		  id             TEXT PRIMARY KEY,
		  user_id        TEXT NOT NULL,
		  preferred_mode TEXT NOT NULL DEFAULT '',
		  title          TEXT NOT NULL DEFAULT '',
		  created_at     INTEGER NOT NULL,
		  updated_at     INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
		  seq          INTEGER PRIMARY KEY AUTOINCREMENT,
		  id           TEXT NOT NULL UNIQUE,
		  session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		  author       TEXT NOT NULL,
		  text         TEXT NOT NULL,
		  mode         TEXT NOT NULL DEFAULT '',
		  content_type TEXT NOT NULL DEFAULT '',
		  tags_json    TEXT NOT NULL DEFAULT '[]',
		  reply_to     TEXT,
		  created_at   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
		`
		if _, err := db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("sqlite: migration 2 failed: %w", err)
		}
		if err := setUserVersion(ctx, db, 2); err != nil {
			return err
		}
	}

	return nil
}

// UserVersion returns the current schema version (user_version pragma).
func (s *Store) UserVersion(ctx context.Context) (int, error) {
	return userVersion(ctx, s.db)
}

func userVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("sqlite: get user_version: %w", err)
	}
	return version, nil
}

func setUserVersion(ctx context.Context, db *sql.DB, version int) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return fmt.Errorf("sqlite: set user_version: %w", err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
