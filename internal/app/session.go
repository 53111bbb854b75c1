package app

import (
	"path/filepath"
	"sync"
	"time"

	"askthedocs/internal/model"
	"askthedocs/internal/vectorstore"
)

// Session is one user's isolated workspace: credential, uploaded files,
// chunk index and conversation history. The workspace directory and the
// index belong to exactly one session; the API key lives only here, in
// memory.
type Session struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
	WorkDir   string

	// queryMu serializes queries: at most one in-flight answer per
	// session keeps history order aligned with real time.
	queryMu sync.Mutex
	// ingestMu enforces single-writer discipline on the index.
	ingestMu sync.Mutex

	mu      sync.Mutex
	apiKey  string
	history []model.HistoryEntry
	index   *vectorstore.Index
}

// IndexDir is the subtree of the workspace holding the persisted index.
func (s *Session) IndexDir() string {
	return filepath.Join(s.WorkDir, "index")
}

// Expired reports whether the session's TTL has elapsed at the given time.
func (s *Session) Expired(at time.Time) bool {
	return at.After(s.ExpiresAt)
}

func (s *Session) SetAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = key
}

func (s *Session) APIKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiKey
}

func (s *Session) Index() *vectorstore.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func (s *Session) SetIndex(ix *vectorstore.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = ix
}

func (s *Session) AppendHistory(entry model.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entry)
}

// History returns a copy of the most recent entries, all of them when
// limit <= 0.
func (s *Session) History(limit int) []model.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.history
	if limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}
	out := make([]model.HistoryEntry, len(entries))
	copy(out, entries)
	return out
}

// clear drops volatile state on deletion.
func (s *Session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = ""
	s.history = nil
	s.index = nil
}
