package incode

import (
	"context"
	"fmt"
	"sync"

	"onboarding/internal/vendors/incode/models"
	"onboarding/internal/verification"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
)

// InMemoryStore serializes transactions behind one lock and applies staged writes only when
// the transaction function succeeds.
type InMemoryStore struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	sessions map[id.SessionID]models.Session
	uploads  []models.Upload
	verif    verification.Store
}

func NewInMemoryStore(verif verification.Store) *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[id.SessionID]models.Session),
		verif:    verif,
	}
}

func (s *InMemoryStore) CreateSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.WorkflowID == session.WorkflowID {
			return sentinel.ErrConflict
		}
	}
	s.sessions[session.ID] = cloneSession(*session)
	return nil
}

func (s *InMemoryStore) FindSession(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := cloneSession(session)
	return &out, nil
}

func (s *InMemoryStore) FindSessionByWorkflow(_ context.Context, workflowID id.WorkflowID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.WorkflowID == workflowID {
			out := cloneSession(session)
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) LatestFinishedSession(_ context.Context, sv id.ScopedVaultID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Session
	for _, session := range s.sessions {
		if session.ScopedVaultID != sv || !session.Finished() {
			continue
		}
		if latest == nil || session.UpdatedAt.After(latest.UpdatedAt) {
			out := cloneSession(session)
			latest = &out
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return latest, nil
}

func (s *InMemoryStore) AddUpload(_ context.Context, upload *models.Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[upload.SessionID]; !ok {
		return sentinel.ErrNotFound
	}
	s.uploads = append(s.uploads, *upload)
	return nil
}

func (s *InMemoryStore) LatestUpload(_ context.Context, sessionID id.SessionID, side models.Side) (*models.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.uploads) - 1; i >= 0; i-- {
		u := s.uploads[i]
		if u.SessionID == sessionID && u.Side == side {
			return &u, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(tx TxStore) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memoryTx{store: s, updates: make(map[id.SessionID]models.Session)}
	if err := fn(tx); err != nil {
		return err
	}

	for _, rec := range tx.records {
		if err := s.verif.Append(ctx, rec); err != nil {
			return fmt.Errorf("append verification record: %w", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for sid, session := range tx.updates {
		s.sessions[sid] = session
	}
	return nil
}

type memoryTx struct {
	store   *InMemoryStore
	updates map[id.SessionID]models.Session
	records []verification.Record
}

func (t *memoryTx) LockSession(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	if staged, ok := t.updates[sessionID]; ok {
		out := cloneSession(staged)
		return &out, nil
	}
	return t.store.FindSession(ctx, sessionID)
}

func (t *memoryTx) UpdateSession(_ context.Context, session *models.Session) error {
	t.store.mu.RLock()
	_, ok := t.store.sessions[session.ID]
	t.store.mu.RUnlock()
	if !ok {
		return sentinel.ErrNotFound
	}
	t.updates[session.ID] = cloneSession(*session)
	return nil
}

func (t *memoryTx) AppendVerification(_ context.Context, rec verification.Record) error {
	t.records = append(t.records, rec)
	return nil
}

func cloneSession(s models.Session) models.Session {
	out := s
	if s.FailureReason != nil {
		reason := *s.FailureReason
		out.FailureReason = &reason
	}
	if s.Scores != nil {
		scores := *s.Scores
		scores.Flags = append([]string(nil), s.Scores.Flags...)
		out.Scores = &scores
	}
	out.Signals = append(out.Signals[:0:0], s.Signals...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
