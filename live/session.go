package live

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
)

// Session is a nil-safe view of the browser's scs session for one request.
// Every method is a no-op when the server has no session manager or the
// context was not created from a request.
type Session struct {
	ctx     context.Context
	manager *scs.SessionManager
}

func (s *Session) ok() bool {
	return s.manager != nil && s.ctx != nil
}

// Get retrieves a value from the session.
func (s *Session) Get(key string) any {
	if !s.ok() {
		return nil
	}
	return s.manager.Get(s.ctx, key)
}

// GetString retrieves a string value from the session.
func (s *Session) GetString(key string) string {
	if !s.ok() {
		return ""
	}
	return s.manager.GetString(s.ctx, key)
}

// GetInt retrieves an int value from the session.
func (s *Session) GetInt(key string) int {
	if !s.ok() {
		return 0
	}
	return s.manager.GetInt(s.ctx, key)
}

// Set stores a value in the session.
func (s *Session) Set(key string, val any) {
	if !s.ok() {
		return
	}
	s.manager.Put(s.ctx, key, val)
}

// Delete removes a value from the session.
func (s *Session) Delete(key string) {
	if !s.ok() {
		return
	}
	s.manager.Remove(s.ctx, key)
}

// Exists returns true if the key exists in the session.
func (s *Session) Exists(key string) bool {
	if !s.ok() {
		return false
	}
	return s.manager.Exists(s.ctx, key)
}

// ID returns the session token (cookie value).
func (s *Session) ID() string {
	if !s.ok() {
		return ""
	}
	return s.manager.Token(s.ctx)
}

const sqliteSessionSchema = `CREATE TABLE IF NOT EXISTS sessions (
	token TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	expiry REAL NOT NULL
)`

const sqliteSessionIndex = `CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry)`

// NewSQLiteSessionManager creates the sessions table in db when missing and
// returns a session manager backed by it. The caller owns db and must keep it
// open for the lifetime of the server.
func NewSQLiteSessionManager(db *sql.DB) (*scs.SessionManager, error) {
	if db == nil {
		return nil, fmt.Errorf("live: sqlite session store: nil db")
	}
	if _, err := db.Exec(sqliteSessionSchema); err != nil {
		return nil, fmt.Errorf("live: create sessions table: %w", err)
	}
	if _, err := db.Exec(sqliteSessionIndex); err != nil {
		return nil, fmt.Errorf("live: create sessions index: %w", err)
	}
	sm := scs.New()
	sm.Store = sqlite3store.New(db)
	return sm, nil
}
