package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"onboarding/internal/outbox"
	"onboarding/internal/risk"
	"onboarding/internal/workflow/models"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
)

type intentKey struct {
	workflow id.WorkflowID
	kind     models.IntentKind
}

// InMemoryStore runs one transaction at a time and applies its staged writes on success.
type InMemoryStore struct {
	txMu sync.Mutex

	mu        sync.RWMutex
	workflows map[id.WorkflowID]models.Workflow
	signals   map[id.WorkflowID][]risk.Signal
	decisions []models.Decision
	results   []models.RuleSetResultRecord
	reviews   []models.ManualReview
	documents []models.DocumentRequest
	intents   map[intentKey]models.DecisionIntent
	outbox    outbox.Store
}

func NewInMemoryStore(ob outbox.Store) *InMemoryStore {
	return &InMemoryStore{
		workflows: make(map[id.WorkflowID]models.Workflow),
		signals:   make(map[id.WorkflowID][]risk.Signal),
		intents:   make(map[intentKey]models.DecisionIntent),
		outbox:    ob,
	}
}

func (s *InMemoryStore) Create(_ context.Context, w *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[w.ID]; ok {
		return sentinel.ErrConflict
	}
	s.workflows[w.ID] = cloneWorkflow(*w)
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, wid id.WorkflowID) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(wid)
}

func (s *InMemoryStore) find(wid id.WorkflowID) (*models.Workflow, error) {
	w, ok := s.workflows[wid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := cloneWorkflow(w)
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *InMemoryStore) ListChildren(_ context.Context, parent id.WorkflowID) ([]*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Workflow
	for _, w := range s.workflows {
		if w.ParentID != nil && *w.ParentID == parent {
			c := cloneWorkflow(w)
			out = append(out, &c)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *InMemoryStore) ListRunnable(_ context.Context, states []models.State, due time.Time, limit int) ([]*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Workflow
	for _, w := range s.workflows {
		if w.NextRunAt.After(due) || w.Validate() != nil {
			continue
		}
		for _, st := range states {
			if models.SameState(w.State, st) {
				c := cloneWorkflow(w)
				out = append(out, &c)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextRunAt.Equal(out[j].NextRunAt) {
			return out[i].NextRunAt.Before(out[j].NextRunAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) RiskSignals(_ context.Context, wid id.WorkflowID) ([]risk.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]risk.Signal(nil), s.signals[wid]...), nil
}

func (s *InMemoryStore) LatestDecision(_ context.Context, wid id.WorkflowID) (*models.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.decisions) - 1; i >= 0; i-- {
		if s.decisions[i].WorkflowID == wid {
			d := s.decisions[i]
			return &d, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) RuleSetResults(_ context.Context, wid id.WorkflowID) ([]models.RuleSetResultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.RuleSetResultRecord
	for _, r := range s.results {
		if r.WorkflowID == wid {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ManualReviews(_ context.Context, wid id.WorkflowID) ([]models.ManualReview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ManualReview
	for _, r := range s.reviews {
		if r.WorkflowID == wid {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *InMemoryStore) DocumentRequests(_ context.Context, wid id.WorkflowID) ([]models.DocumentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.DocumentRequest
	for _, r := range s.documents {
		if r.WorkflowID == wid {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *InMemoryStore) DecisionIntent(_ context.Context, wid id.WorkflowID, kind models.IntentKind) (*models.DecisionIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := intentKey{workflow: wid, kind: kind}
	if intent, ok := s.intents[key]; ok {
		return &intent, nil
	}
	intent := models.DecisionIntent{
		ID:         id.NewDecisionIntentID(),
		WorkflowID: wid,
		Kind:       kind,
		CreatedAt:  time.Now(),
	}
	s.intents[key] = intent
	return &intent, nil
}

func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(tx TxStore) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memoryTx{store: s, updates: make(map[id.WorkflowID]models.Workflow)}
	if err := fn(tx); err != nil {
		return err
	}

	for _, entry := range tx.outbox {
		if err := s.outbox.Append(ctx, entry); err != nil {
			return fmt.Errorf("append outbox entry: %w", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for wid, w := range tx.updates {
		s.workflows[wid] = w
	}
	for wid, signals := range tx.signals {
		s.signals[wid] = append(s.signals[wid], signals...)
	}
	s.results = append(s.results, tx.results...)
	s.decisions = append(s.decisions, tx.decisions...)
	s.reviews = append(s.reviews, tx.reviews...)
	s.documents = append(s.documents, tx.documents...)
	return nil
}

type memoryTx struct {
	store     *InMemoryStore
	updates   map[id.WorkflowID]models.Workflow
	signals   map[id.WorkflowID][]risk.Signal
	results   []models.RuleSetResultRecord
	decisions []models.Decision
	reviews   []models.ManualReview
	documents []models.DocumentRequest
	outbox    []outbox.Entry
}

func (t *memoryTx) LockWorkflow(_ context.Context, wid id.WorkflowID) (*models.Workflow, error) {
	if staged, ok := t.updates[wid]; ok {
		out := cloneWorkflow(staged)
		return &out, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.find(wid)
}

func (t *memoryTx) UpdateState(ctx context.Context, wid id.WorkflowID, state models.State, at time.Time) error {
	w, err := t.LockWorkflow(ctx, wid)
	if err != nil {
		return err
	}
	w.State = state
	w.UpdatedAt = at
	w.NextRunAt = at
	if models.IsComplete(state) {
		completed := at
		w.CompletedAt = &completed
	}
	t.updates[wid] = *w
	return nil
}

func (t *memoryTx) Reschedule(ctx context.Context, wid id.WorkflowID, next time.Time) error {
	w, err := t.LockWorkflow(ctx, wid)
	if err != nil {
		return err
	}
	w.NextRunAt = next
	t.updates[wid] = *w
	return nil
}

func (t *memoryTx) CreateWorkflow(_ context.Context, w *models.Workflow) error {
	t.store.mu.RLock()
	_, exists := t.store.workflows[w.ID]
	t.store.mu.RUnlock()
	if _, staged := t.updates[w.ID]; exists || staged {
		return sentinel.ErrConflict
	}
	t.updates[w.ID] = cloneWorkflow(*w)
	return nil
}

func (t *memoryTx) SaveRiskSignals(_ context.Context, wid id.WorkflowID, signals []risk.Signal, _ time.Time) error {
	if t.signals == nil {
		t.signals = make(map[id.WorkflowID][]risk.Signal)
	}
	t.signals[wid] = append(t.signals[wid], signals...)
	return nil
}

func (t *memoryTx) SaveRuleSetResults(_ context.Context, results []models.RuleSetResultRecord) error {
	t.results = append(t.results, results...)
	return nil
}

func (t *memoryTx) SaveDecision(_ context.Context, d models.Decision) error {
	t.decisions = append(t.decisions, d)
	return nil
}

func (t *memoryTx) CreateManualReview(_ context.Context, review models.ManualReview) error {
	t.reviews = append(t.reviews, review)
	return nil
}

func (t *memoryTx) CreateDocumentRequests(_ context.Context, requests []models.DocumentRequest) error {
	t.documents = append(t.documents, requests...)
	return nil
}

func (t *memoryTx) AppendOutbox(_ context.Context, entry outbox.Entry) error {
	t.outbox = append(t.outbox, entry)
	return nil
}

func cloneWorkflow(w models.Workflow) models.Workflow {
	out := w
	if w.ParentID != nil {
		parent := *w.ParentID
		out.ParentID = &parent
	}
	if w.CompletedAt != nil {
		completed := *w.CompletedAt
		out.CompletedAt = &completed
	}
	return out
}

func sortByCreated(ws []*models.Workflow) {
	sort.Slice(ws, func(i, j int) bool { return ws[i].CreatedAt.Before(ws[j].CreatedAt) })
}
