// Package prefs persists console preferences (tree expansion, filters,
// recent searches) in a small SQLite database.
package prefs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dongho-jung/pwmcfg/internal/logging"
)

// Scope separates values that survive a console restart from those that do not.
type Scope string

const (
	// Local values persist across console runs.
	Local Scope = "local"
	// Session values are cleared when a console starts.
	Session Scope = "session"
)

// MaxRecentEntries caps recent-value lists.
const MaxRecentEntries = 20

// Store is a key/value preference store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create prefs directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open prefs database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	return newStore(db)
}

// OpenMemory opens a store that lives only as long as the process.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open prefs database: %w", err)
	}
	// every pooled connection would otherwise get its own empty database
	db.SetMaxOpenConns(1)
	return newStore(db)
}

func newStore(db *sql.DB) (*Store, error) {
	schema := `
		CREATE TABLE IF NOT EXISTS prefs (
			scope      TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (scope, key)
		);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create prefs schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get decodes the value stored under key into v. found is false when the key
// is absent.
func (s *Store) Get(ctx context.Context, scope Scope, key string, v any) (found bool, err error) {
	var raw string
	err = s.db.QueryRowContext(ctx,
		`SELECT value FROM prefs WHERE scope = ? AND key = ?`, string(scope), key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read pref %s/%s: %w", scope, key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		logging.Warn("prefs: dropping corrupt value for %s/%s: %v", scope, key, err)
		_ = s.Delete(ctx, scope, key)
		return false, nil
	}
	return true, nil
}

// Set stores v under key.
func (s *Store) Set(ctx context.Context, scope Scope, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode pref %s/%s: %w", scope, key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prefs (scope, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(scope, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, string(scope), key, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write pref %s/%s: %w", scope, key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, scope Scope, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM prefs WHERE scope = ? AND key = ?`, string(scope), key); err != nil {
		return fmt.Errorf("failed to delete pref %s/%s: %w", scope, key, err)
	}
	return nil
}

// ClearSession removes every session-scoped value.
func (s *Store) ClearSession(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM prefs WHERE scope = ?`, string(Session))
	if err != nil {
		return fmt.Errorf("failed to clear session prefs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		logging.Debug("prefs: cleared %d session values", n)
	}
	return nil
}

// GetBool returns a boolean value or def.
func (s *Store) GetBool(ctx context.Context, scope Scope, key string, def bool) bool {
	var v bool
	if found, err := s.Get(ctx, scope, key, &v); err != nil || !found {
		return def
	}
	return v
}

// SetBool stores a boolean value.
func (s *Store) SetBool(ctx context.Context, scope Scope, key string, v bool) error {
	return s.Set(ctx, scope, key, v)
}

// GetInt returns an integer value or def.
func (s *Store) GetInt(ctx context.Context, scope Scope, key string, def int) int {
	var v int
	if found, err := s.Get(ctx, scope, key, &v); err != nil || !found {
		return def
	}
	return v
}

// SetInt stores an integer value.
func (s *Store) SetInt(ctx context.Context, scope Scope, key string, v int) error {
	return s.Set(ctx, scope, key, v)
}

// GetString returns a string value or def.
func (s *Store) GetString(ctx context.Context, scope Scope, key, def string) string {
	var v string
	if found, err := s.Get(ctx, scope, key, &v); err != nil || !found {
		return def
	}
	return v
}

// SetString stores a string value.
func (s *Store) SetString(ctx context.Context, scope Scope, key, v string) error {
	return s.Set(ctx, scope, key, v)
}

// GetStrings returns a string list, or nil.
func (s *Store) GetStrings(ctx context.Context, scope Scope, key string) []string {
	var v []string
	if found, err := s.Get(ctx, scope, key, &v); err != nil || !found {
		return nil
	}
	return v
}

// SetStrings stores a string list.
func (s *Store) SetStrings(ctx context.Context, scope Scope, key string, v []string) error {
	return s.Set(ctx, scope, key, v)
}

// AddRecent moves value to the front of the local list under key, removing
// duplicates and keeping at most MaxRecentEntries entries.
func (s *Store) AddRecent(ctx context.Context, key, value string) error {
	if value == "" {
		return nil
	}
	entries := s.GetStrings(ctx, Local, key)
	out := make([]string, 0, len(entries)+1)
	out = append(out, value)
	for _, e := range entries {
		if e != value {
			out = append(out, e)
		}
	}
	if len(out) > MaxRecentEntries {
		out = out[:MaxRecentEntries]
	}
	return s.SetStrings(ctx, Local, key, out)
}

// Recent returns the local list under key, most recent first.
func (s *Store) Recent(ctx context.Context, key string) []string {
	return s.GetStrings(ctx, Local, key)
}
