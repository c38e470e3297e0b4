package portalclient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bobbygour30/admitcard/internal/adminauth"
	"github.com/bobbygour30/admitcard/internal/domain"
)

// ErrNoToken is returned when a session without a token is saved. Passwords are never written to disk.
var ErrNoToken = errors.New("portalclient: session has no token to persist")

const tokenSchema = `
CREATE TABLE IF NOT EXISTS admin_sessions (
	base_url   TEXT PRIMARY KEY,
	username   TEXT NOT NULL,
	token      TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS flow_sessions (
	name               TEXT PRIMARY KEY,
	application_number TEXT NOT NULL,
	union_name         TEXT NOT NULL DEFAULT '',
	updated_at         INTEGER NOT NULL
);`

// FlowRecord remembers the application a candidate was last working on.
type FlowRecord struct {
	Name              string
	ApplicationNumber string
	Union             domain.Union
	UpdatedAt         time.Time
}

// TokenStore keeps admin session tokens and candidate flow pointers in a
// local SQLite file.
type TokenStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenTokenStore opens (creating if needed) the store at path. ":memory:" is accepted.
func OpenTokenStore(path string) (*TokenStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("portalclient: token store path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("portalclient: create state directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("portalclient: open token store: %w", err)
	}
	// one connection so ":memory:" stays a single database
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(tokenSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("portalclient: migrate token store: %w", err)
	}
	return &TokenStore{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *TokenStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSession stores the admin session for baseURL, replacing any earlier one.
func (s *TokenStore) SaveSession(ctx context.Context, baseURL string, session adminauth.Session) error {
	if session.Token == "" {
		return ErrNoToken
	}
	var expires int64
	if !session.ExpiresAt.IsZero() {
		expires = session.ExpiresAt.UTC().Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_sessions (base_url, username, token, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(base_url) DO UPDATE SET username = excluded.username, token = excluded.token, expires_at = excluded.expires_at`,
		baseURL, session.Username, session.Token, expires)
	if err != nil {
		return fmt.Errorf("portalclient: save session: %w", err)
	}
	return nil
}

// LoadSession returns the stored session for baseURL. Expired sessions are
// deleted and reported as absent.
func (s *TokenStore) LoadSession(ctx context.Context, baseURL string) (adminauth.Session, bool, error) {
	var (
		session adminauth.Session
		expires int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT username, token, expires_at FROM admin_sessions WHERE base_url = ?`, baseURL).
		Scan(&session.Username, &session.Token, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return adminauth.Session{}, false, nil
	}
	if err != nil {
		return adminauth.Session{}, false, fmt.Errorf("portalclient: load session: %w", err)
	}
	if expires > 0 {
		session.ExpiresAt = time.Unix(expires, 0).UTC()
	}
	if !session.Valid(s.now()) {
		if err := s.ClearSession(ctx, baseURL); err != nil {
			return adminauth.Session{}, false, err
		}
		return adminauth.Session{}, false, nil
	}
	return session, true, nil
}

// ClearSession forgets the session for baseURL.
func (s *TokenStore) ClearSession(ctx context.Context, baseURL string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE base_url = ?`, baseURL); err != nil {
		return fmt.Errorf("portalclient: clear session: %w", err)
	}
	return nil
}

// SaveFlow records the application behind a named flow.
func (s *TokenStore) SaveFlow(ctx context.Context, record FlowRecord) error {
	appNo := domain.NormalizeApplicationNumber(record.ApplicationNumber)
	if record.Name == "" || appNo == "" {
		return errors.New("portalclient: flow name and application number are required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_sessions (name, application_number, union_name, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET application_number = excluded.application_number,
			union_name = excluded.union_name, updated_at = excluded.updated_at`,
		record.Name, appNo, string(record.Union), s.now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("portalclient: save flow: %w", err)
	}
	return nil
}

// LoadFlow returns the named flow record.
func (s *TokenStore) LoadFlow(ctx context.Context, name string) (FlowRecord, bool, error) {
	record := FlowRecord{Name: name}
	var (
		union   string
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT application_number, union_name, updated_at FROM flow_sessions WHERE name = ?`, name).
		Scan(&record.ApplicationNumber, &union, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return FlowRecord{}, false, nil
	}
	if err != nil {
		return FlowRecord{}, false, fmt.Errorf("portalclient: load flow: %w", err)
	}
	record.Union = domain.Union(union)
	record.UpdatedAt = time.Unix(updated, 0).UTC()
	return record, true, nil
}
