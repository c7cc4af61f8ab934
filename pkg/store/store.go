// Package store persists sessions as one JSON file each under a state
// directory. Writes are atomic (tmp + fsync + rename); readers never observe
// a partially written session. The store assumes serial access per session id
// — the request handler holds a per-session lock across each audit cycle.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codeready-toolchain/ganaudit/pkg/models"
)

// Store is a file-per-session store rooted at a state directory.
type Store struct {
	dir string
}

// New creates the state directory if needed and returns a Store.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// GetOrCreate loads the session with the given id, creating a fresh one when
// no file exists. A new session created with a loop id starts with an active
// codex context bound to it.
func (s *Store) GetOrCreate(id, loopID string) (*models.Session, error) {
	session, err := s.load(id)
	if err == nil {
		return session, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}

	now := time.Now().UTC()
	session = &models.Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if loopID != "" {
		session.CodexContextID = loopID
		session.CodexContextActive = true
	}
	if err := s.Update(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Append adds an iteration record to the session and persists it.
// Fails when the session is already complete.
func (s *Store) Append(id string, rec models.IterationRecord) (*models.Session, error) {
	session, err := s.load(id)
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}
	if err := session.AppendIteration(rec); err != nil {
		return nil, err
	}
	if err := s.Update(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Update persists the session atomically: write id.tmp, fsync, rename over id.
func (s *Store) Update(session *models.Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", session.ID, err)
	}

	final := s.path(session.ID)
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to fsync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}

// Get loads a session without creating it.
func (s *Store) Get(id string) (*models.Session, error) {
	return s.load(id)
}

// List returns all persisted sessions. Used by the ops endpoint and the
// reaper; unreadable files are skipped with a warning.
func (s *Store) List() ([]*models.Session, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list state directory: %w", err)
	}

	var sessions []*models.Session
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		session, err := s.loadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			slog.Warn("Skipping unreadable session file", "file", entry.Name(), "error", err)
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// Reap deletes sessions whose UpdatedAt is older than maxAge relative to now.
// Returns how many were removed.
func (s *Store) Reap(now time.Time, maxAge time.Duration) (int, error) {
	sessions, err := s.List()
	if err != nil {
		return 0, err
	}

	removed := 0
	cutoff := now.Add(-maxAge)
	for _, session := range sessions {
		if session.UpdatedAt.After(cutoff) {
			continue
		}
		if err := os.Remove(s.path(session.ID)); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to reap session", "session_id", session.ID, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *Store) load(id string) (*models.Session, error) {
	return s.loadFile(s.path(id))
}

func (s *Store) loadFile(path string) (*models.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("corrupt session file %s: %w", filepath.Base(path), err)
	}
	return &session, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, sanitizeID(id)+".json")
}

// sanitizeID maps a session id to a safe filename component. Anything outside
// [A-Za-z0-9._-] becomes '_', a dot directly after another dot becomes '_' so
// ".." never appears, and a leading dot is escaped so ids can never produce
// hidden files or traverse directories.
func sanitizeID(id string) string {
	var b strings.Builder
	prevDot := false
	for _, r := range id {
		switch {
		case r == '.' && prevDot:
			b.WriteByte('_')
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		prevDot = r == '.' && !prevDot
	}
	out := b.String()
	if out == "" || out[0] == '.' {
		out = "_" + out
	}
	return out
}
