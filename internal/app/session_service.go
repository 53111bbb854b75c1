package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"askthedocs/internal/ai"
	"askthedocs/internal/model"
	"askthedocs/internal/repository"
	"askthedocs/internal/vectorstore"
)

// SessionServiceConfig bundles the lifecycle knobs.
type SessionServiceConfig struct {
	DataDir         string
	TTL             time.Duration
	LLMBaseURL      string
	ValidateTimeout time.Duration
}

// SessionService owns every live session: creation, credential validation,
// expiry and deletion. Sessions never share a workspace directory or an
// index.
type SessionService struct {
	cfg         SessionServiceConfig
	aiClient    *ai.Client
	sessionRepo *repository.SessionRepository
	historyRepo *repository.HistoryRepository
	cache       HistoryCache // may be nil
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionService(
	cfg SessionServiceConfig,
	aiClient *ai.Client,
	sessionRepo *repository.SessionRepository,
	historyRepo *repository.HistoryRepository,
	cache HistoryCache,
	logger *zap.Logger,
) *SessionService {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.ValidateTimeout <= 0 {
		cfg.ValidateTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		cfg:         cfg,
		aiClient:    aiClient,
		sessionRepo: sessionRepo,
		historyRepo: historyRepo,
		cache:       cache,
		logger:      logger,
		sessions:    make(map[string]*Session),
	}
}

// Create allocates a new session: a v4 UUID identifier (122 bits of
// entropy) and an empty workspace directory scoped to it. A workspace
// creation failure is fatal to the call.
func (s *SessionService) Create(ctx context.Context) (*Session, error) {
	s.Sweep(ctx)

	id := uuid.NewString()
	now := time.Now()
	workDir := filepath.Join(s.cfg.DataDir, id)
	if err := os.MkdirAll(workDir, 0o700); err != nil {
		return nil, fmt.Errorf("create session workspace failed: %w", err)
	}

	sess := &Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
		WorkDir:   workDir,
	}

	if err := s.sessionRepo.Create(&model.SessionRecord{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: sess.ExpiresAt,
	}); err != nil {
		_ = os.RemoveAll(workDir)
		return nil, err
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.logger.Info("session created", zap.String("session_id", id))
	return sess, nil
}

// Get resolves a session id. An expired session is deleted on sight and
// reported as ErrSessionExpired. A session known to the archive but not in
// memory (process restart) is resurrected: its history reloads from the
// archive and its index restores from the workspace; the credential is gone
// for good and must be supplied again.
func (s *SessionService) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()

	if ok {
		if sess.Expired(time.Now()) {
			_ = s.Delete(ctx, id)
			return nil, ErrSessionExpired
		}
		return sess, nil
	}
	return s.resurrect(ctx, id)
}

func (s *SessionService) resurrect(ctx context.Context, id string) (*Session, error) {
	rec, err := s.sessionRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrSessionNotFound
	}
	if time.Now().After(rec.ExpiresAt) {
		_ = s.Delete(ctx, id)
		return nil, ErrSessionExpired
	}

	sess := &Session{
		ID:        rec.ID,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
		WorkDir:   filepath.Join(s.cfg.DataDir, rec.ID),
	}

	entries, err := s.loadHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.history = entries

	if ix, err := vectorstore.Load(sess.IndexDir()); err == nil {
		sess.index = ix
	} else if !errors.Is(err, vectorstore.ErrIndexNotFound) {
		s.logger.Warn("restore index failed", zap.String("session_id", id), zap.Error(err))
	}

	s.mu.Lock()
	if existing, ok := s.sessions[id]; ok {
		// Lost a race with another resurrect; keep the first one.
		s.mu.Unlock()
		return existing, nil
	}
	s.sessions[id] = sess
	s.mu.Unlock()

	s.logger.Info("session resurrected",
		zap.String("session_id", id),
		zap.Int("history_entries", len(entries)),
		zap.Bool("index_restored", sess.index != nil))
	return sess, nil
}

func (s *SessionService) loadHistory(ctx context.Context, id string) ([]model.HistoryEntry, error) {
	if s.cache != nil {
		if dirty, err := s.cache.IsDirty(ctx, id); err == nil && !dirty {
			if cached, hit, err := s.cache.GetHistory(ctx, id); err == nil && hit {
				return cached, nil
			}
		}
	}

	recs, err := s.historyRepo.ListBySessionID(id)
	if err != nil {
		return nil, err
	}
	entries := make([]model.HistoryEntry, len(recs))
	for i := range recs {
		entries[i] = recs[i].Entry()
	}
	if s.cache != nil {
		if dirty, err := s.cache.IsDirty(ctx, id); err == nil && !dirty {
			_ = s.cache.SetHistory(ctx, id, entries)
		}
	}
	return entries, nil
}

// ValidateCredential confirms the key against the provider with a bounded
// wait and, on success, installs it on the session. The key is never
// persisted or logged.
func (s *SessionService) ValidateCredential(ctx context.Context, id, rawKey string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	validateCtx, cancel := context.WithTimeout(ctx, s.cfg.ValidateTimeout)
	defer cancel()
	if err := s.aiClient.ValidateKey(validateCtx, s.cfg.LLMBaseURL, rawKey); err != nil {
		return err
	}

	sess.SetAPIKey(rawKey)
	s.logger.Info("credential validated", zap.String("session_id", id))
	return nil
}

// Touch is the refresh point for a future sliding-expiry policy. The
// current policy is fixed TTL, so it does nothing.
func (s *SessionService) Touch(*Session) {}

// Delete removes the session completely: workspace subtree, archive rows,
// cache keys and in-memory state. Idempotent; an already-removed workspace
// is not an error.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		sess.clear()
	}

	var firstErr error
	if err := os.RemoveAll(filepath.Join(s.cfg.DataDir, id)); err != nil {
		firstErr = fmt.Errorf("remove session workspace failed: %w", err)
	}
	if err := s.historyRepo.DeleteBySessionID(id); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.sessionRepo.DeleteByID(id); err != nil && firstErr == nil {
		firstErr = err
	}
	if s.cache != nil {
		if err := s.cache.DeleteHistory(ctx, id); err != nil {
			s.logger.Warn("delete cached history failed", zap.String("session_id", id), zap.Error(err))
		}
	}

	if firstErr != nil {
		s.logger.Error("session delete incomplete", zap.String("session_id", id), zap.Error(firstErr))
		return firstErr
	}
	s.logger.Info("session deleted", zap.String("session_id", id))
	return nil
}

// Sweep deletes every expired session, including ones only the archive
// still knows about after a restart.
func (s *SessionService) Sweep(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	var expired []string
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()

	recs, err := s.sessionRepo.ListExpired(now)
	if err != nil {
		s.logger.Warn("list expired sessions failed", zap.Error(err))
	}
	seen := make(map[string]bool, len(expired))
	for _, id := range expired {
		seen[id] = true
	}
	for _, rec := range recs {
		if !seen[rec.ID] {
			expired = append(expired, rec.ID)
		}
	}

	for _, id := range expired {
		if err := s.Delete(ctx, id); err != nil {
			s.logger.Warn("sweep delete failed", zap.String("session_id", id), zap.Error(err))
		}
	}
}

// RunSweeper sweeps on the given interval until ctx is cancelled.
func (s *SessionService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
