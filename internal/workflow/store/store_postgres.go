package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"onboarding/internal/decision"
	"onboarding/internal/outbox"
	"onboarding/internal/risk"
	"onboarding/internal/workflow/metrics"
	"onboarding/internal/workflow/models"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/sentinel"
	txcontext "onboarding/pkg/platform/tx"
)

const workflowColumns = `
	id, kind, state, config, tenant_id, scoped_vault_id, onboarding_id, parent_id,
	created_at, updated_at, completed_at, next_run_at
`

// PostgresStore persists workflows in PostgreSQL. Transactions lock the workflow row with
// SELECT ... FOR UPDATE and compare states in Go before writing.
type PostgresStore struct {
	db      *sql.DB
	outbox  outbox.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type PostgresOption func(*PostgresStore)

func WithLogger(logger *slog.Logger) PostgresOption {
	return func(s *PostgresStore) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) PostgresOption {
	return func(s *PostgresStore) {
		s.metrics = m
	}
}

func NewPostgresStore(db *sql.DB, ob outbox.Store, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, outbox: ob}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		w                                 models.Workflow
		wid, tenant, scopedVault, onboard uuid.UUID
		kind, state                       string
		config                            []byte
		parent                            uuid.NullUUID
		completedAt                       sql.NullTime
	)
	err := row.Scan(&wid, &kind, &state, &config, &tenant, &scopedVault, &onboard, &parent,
		&w.CreatedAt, &w.UpdatedAt, &completedAt, &w.NextRunAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan workflow: %w", err)
	}
	w.ID = id.WorkflowID(wid)
	w.Kind = models.Kind(kind)
	w.TenantID = id.TenantID(tenant)
	w.ScopedVaultID = id.ScopedVaultID(scopedVault)
	w.OnboardingID = id.OnboardingID(onboard)
	if parent.Valid {
		p := id.WorkflowID(parent.UUID)
		w.ParentID = &p
	}
	if completedAt.Valid {
		t := completedAt.Time
		w.CompletedAt = &t
	}

	// State is stored as "kind.name"; a prefix that disagrees with the kind column fails Validate.
	stateKind, stateName, ok := strings.Cut(state, ".")
	if !ok {
		return nil, models.UnexpectedStateForWorkflow(w.ID, w.Kind, nil)
	}
	if w.State, err = models.ParseState(models.Kind(stateKind), stateName); err != nil {
		return nil, models.UnexpectedStateForWorkflow(w.ID, w.Kind, nil)
	}
	if w.Config, err = models.UnmarshalConfig(w.Kind, config); err != nil {
		return nil, models.UnexpectedConfigForWorkflow(w.ID, w.Kind, nil)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

func insertWorkflow(ctx context.Context, q queryer, w *models.Workflow) error {
	config, err := models.MarshalConfig(w.Config)
	if err != nil {
		return fmt.Errorf("encode workflow config: %w", err)
	}
	var parent uuid.NullUUID
	if w.ParentID != nil {
		parent = uuid.NullUUID{UUID: uuid.UUID(*w.ParentID), Valid: true}
	}
	query := `
		INSERT INTO workflow (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = q.ExecContext(ctx, query,
		uuid.UUID(w.ID),
		string(w.Kind),
		models.StateString(w.State),
		config,
		uuid.UUID(w.TenantID),
		uuid.UUID(w.ScopedVaultID),
		uuid.UUID(w.OnboardingID),
		parent,
		w.CreatedAt,
		w.UpdatedAt,
		w.CompletedAt,
		w.NextRunAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, w *models.Workflow) error {
	return insertWorkflow(ctx, s.db, w)
}

func (s *PostgresStore) Find(ctx context.Context, wid id.WorkflowID) (*models.Workflow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflow WHERE id = $1`, uuid.UUID(wid))
	return scanWorkflow(row)
}

func (s *PostgresStore) listWorkflows(ctx context.Context, query string, args ...any) ([]*models.Workflow, error) {
	return s.scanWorkflows(ctx, false, query, args...)
}

// scanWorkflows runs query and scans every row. With skipCorrupt, rows whose state or
// config does not match their kind are logged, counted and left out.
func (s *PostgresStore) scanWorkflows(ctx context.Context, skipCorrupt bool, query string, args ...any) ([]*models.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query workflows: %w", err)
	}
	defer rows.Close()
	var out []*models.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			if skipCorrupt && dErrors.HasCode(err, dErrors.CodeDataIntegrity) {
				s.metrics.IncrementCorruptWorkflow()
				if s.logger != nil {
					s.logger.ErrorContext(ctx, "skipping corrupt workflow row", "error", err)
				}
				continue
			}
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListChildren(ctx context.Context, parent id.WorkflowID) ([]*models.Workflow, error) {
	return s.listWorkflows(ctx,
		`SELECT `+workflowColumns+` FROM workflow WHERE parent_id = $1 ORDER BY created_at`,
		uuid.UUID(parent))
}

func (s *PostgresStore) ListRunnable(ctx context.Context, states []models.State, due time.Time, limit int) ([]*models.Workflow, error) {
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = models.StateString(st)
	}
	query := `
		SELECT ` + workflowColumns + `
		FROM workflow
		WHERE state = ANY($1) AND completed_at IS NULL AND next_run_at <= $2
		ORDER BY next_run_at, id
		LIMIT $3
	`
	return s.scanWorkflows(ctx, true, query, pq.Array(names), due, limit)
}

func (s *PostgresStore) RiskSignals(ctx context.Context, wid id.WorkflowID) ([]risk.Signal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, vendor, scope FROM risk_signal WHERE workflow_id = $1 ORDER BY created_at, seq`,
		uuid.UUID(wid))
	if err != nil {
		return nil, fmt.Errorf("query risk signals: %w", err)
	}
	defer rows.Close()
	var out []risk.Signal
	for rows.Next() {
		var code, vendor, scope string
		if err := rows.Scan(&code, &vendor, &scope); err != nil {
			return nil, fmt.Errorf("scan risk signal: %w", err)
		}
		out = append(out, risk.Signal{Code: risk.ReasonCode(code), Vendor: vendor, Scope: risk.Scope(scope)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate risk signals: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) LatestDecision(ctx context.Context, wid id.WorkflowID) (*models.Decision, error) {
	query := `
		SELECT id, workflow_id, status, manual_review, action, created_at
		FROM onboarding_decision
		WHERE workflow_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var (
		d          models.Decision
		workflowID uuid.UUID
		status     string
		action     sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(wid)).
		Scan(&d.ID, &workflowID, &status, &d.ManualReview, &action, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find decision: %w", err)
	}
	d.WorkflowID = id.WorkflowID(workflowID)
	d.Status = models.DecisionStatus(status)
	if action.Valid {
		a, err := decision.ParseAction(action.String)
		if err != nil {
			return nil, fmt.Errorf("decode decision action: %w", err)
		}
		d.Action = &a
	}
	return &d, nil
}

func (s *PostgresStore) RuleSetResults(ctx context.Context, wid id.WorkflowID) ([]models.RuleSetResultRecord, error) {
	query := `
		SELECT id, workflow_id, rule_set_name, vendor, selected, rules_triggered, rules_not_triggered,
		       action_triggered, created_at
		FROM rule_set_result
		WHERE workflow_id = $1
		ORDER BY created_at, seq
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(wid))
	if err != nil {
		return nil, fmt.Errorf("query rule set results: %w", err)
	}
	defer rows.Close()
	var out []models.RuleSetResultRecord
	for rows.Next() {
		var (
			r                     models.RuleSetResultRecord
			workflowID            uuid.UUID
			triggered, notTrigger []byte
			action                sql.NullString
		)
		if err := rows.Scan(&r.ID, &workflowID, &r.Result.RuleSetName, &r.Vendor, &r.Selected,
			&triggered, &notTrigger, &action, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rule set result: %w", err)
		}
		r.WorkflowID = id.WorkflowID(workflowID)
		if err := json.Unmarshal(triggered, &r.Result.RulesTriggered); err != nil {
			return nil, fmt.Errorf("decode triggered rules: %w", err)
		}
		if err := json.Unmarshal(notTrigger, &r.Result.RulesNotTriggered); err != nil {
			return nil, fmt.Errorf("decode rules not triggered: %w", err)
		}
		if action.Valid {
			a, err := decision.ParseAction(action.String)
			if err != nil {
				return nil, fmt.Errorf("decode triggered action: %w", err)
			}
			r.Result.ActionTriggered = &a
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rule set results: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ManualReviews(ctx context.Context, wid id.WorkflowID) ([]models.ManualReview, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, reason, created_at FROM manual_review WHERE workflow_id = $1 ORDER BY created_at`,
		uuid.UUID(wid))
	if err != nil {
		return nil, fmt.Errorf("query manual reviews: %w", err)
	}
	defer rows.Close()
	var out []models.ManualReview
	for rows.Next() {
		r := models.ManualReview{WorkflowID: wid}
		if err := rows.Scan(&r.ID, &r.Reason, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan manual review: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manual reviews: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DocumentRequests(ctx context.Context, wid id.WorkflowID) ([]models.DocumentRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, created_at FROM document_request WHERE workflow_id = $1 ORDER BY created_at, seq`,
		uuid.UUID(wid))
	if err != nil {
		return nil, fmt.Errorf("query document requests: %w", err)
	}
	defer rows.Close()
	var out []models.DocumentRequest
	for rows.Next() {
		var (
			r    = models.DocumentRequest{WorkflowID: wid}
			kind string
		)
		if err := rows.Scan(&r.ID, &kind, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document request: %w", err)
		}
		r.Kind = decision.DocumentKind(kind)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document requests: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DecisionIntent(ctx context.Context, wid id.WorkflowID, kind models.IntentKind) (*models.DecisionIntent, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decision_intent (id, workflow_id, kind, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workflow_id, kind) DO NOTHING
	`, uuid.New(), uuid.UUID(wid), string(kind), time.Now())
	if err != nil {
		return nil, fmt.Errorf("insert decision intent: %w", err)
	}
	var (
		intent   = models.DecisionIntent{WorkflowID: wid, Kind: kind}
		intentID uuid.UUID
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM decision_intent WHERE workflow_id = $1 AND kind = $2`,
		uuid.UUID(wid), string(kind)).Scan(&intentID, &intent.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("find decision intent: %w", err)
	}
	intent.ID = id.DecisionIntentID(intentID)
	return &intent, nil
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx TxStore) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin workflow tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&postgresTx{tx: tx, outbox: s.outbox}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit workflow tx: %w", err)
	}
	return nil
}

type postgresTx struct {
	tx     *sql.Tx
	outbox outbox.Store
}

func (t *postgresTx) LockWorkflow(ctx context.Context, wid id.WorkflowID) (*models.Workflow, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflow WHERE id = $1 FOR UPDATE`, uuid.UUID(wid))
	return scanWorkflow(row)
}

func (t *postgresTx) UpdateState(ctx context.Context, wid id.WorkflowID, state models.State, at time.Time) error {
	var completedAt *time.Time
	if models.IsComplete(state) {
		completedAt = &at
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE workflow SET state = $2, updated_at = $3, next_run_at = $3, completed_at = COALESCE($4, completed_at) WHERE id = $1`,
		uuid.UUID(wid), models.StateString(state), at, completedAt)
	if err != nil {
		return fmt.Errorf("update workflow state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (t *postgresTx) Reschedule(ctx context.Context, wid id.WorkflowID, next time.Time) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE workflow SET next_run_at = $2 WHERE id = $1`, uuid.UUID(wid), next)
	if err != nil {
		return fmt.Errorf("reschedule workflow: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (t *postgresTx) CreateWorkflow(ctx context.Context, w *models.Workflow) error {
	return insertWorkflow(ctx, t.tx, w)
}

func (t *postgresTx) SaveRiskSignals(ctx context.Context, wid id.WorkflowID, signals []risk.Signal, at time.Time) error {
	if len(signals) == 0 {
		return nil
	}
	codes := make([]string, len(signals))
	vendors := make([]string, len(signals))
	scopes := make([]string, len(signals))
	for i, sig := range signals {
		codes[i] = string(sig.Code)
		vendors[i] = sig.Vendor
		scopes[i] = string(sig.Scope)
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO risk_signal (workflow_id, code, vendor, scope, created_at)
		SELECT $1, code, vendor, scope, $5
		FROM unnest($2::text[], $3::text[], $4::text[]) AS s(code, vendor, scope)
	`, uuid.UUID(wid), pq.Array(codes), pq.Array(vendors), pq.Array(scopes), at)
	if err != nil {
		return fmt.Errorf("insert risk signals: %w", err)
	}
	return nil
}

func (t *postgresTx) SaveRuleSetResults(ctx context.Context, results []models.RuleSetResultRecord) error {
	for _, r := range results {
		triggered, err := json.Marshal(r.Result.RulesTriggered)
		if err != nil {
			return fmt.Errorf("encode triggered rules: %w", err)
		}
		notTriggered, err := json.Marshal(r.Result.RulesNotTriggered)
		if err != nil {
			return fmt.Errorf("encode rules not triggered: %w", err)
		}
		var action sql.NullString
		if r.Result.ActionTriggered != nil {
			action = sql.NullString{String: r.Result.ActionTriggered.String(), Valid: true}
		}
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO rule_set_result (
				id, workflow_id, rule_set_name, vendor, selected, rules_triggered, rules_not_triggered,
				action_triggered, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, r.ID, uuid.UUID(r.WorkflowID), r.Result.RuleSetName, r.Vendor, r.Selected,
			triggered, notTriggered, action, r.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert rule set result: %w", err)
		}
	}
	return nil
}

func (t *postgresTx) SaveDecision(ctx context.Context, d models.Decision) error {
	var action sql.NullString
	if d.Action != nil {
		action = sql.NullString{String: d.Action.String(), Valid: true}
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO onboarding_decision (id, workflow_id, status, manual_review, action, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.ID, uuid.UUID(d.WorkflowID), string(d.Status), d.ManualReview, action, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (t *postgresTx) CreateManualReview(ctx context.Context, review models.ManualReview) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO manual_review (id, workflow_id, reason, created_at) VALUES ($1, $2, $3, $4)`,
		review.ID, uuid.UUID(review.WorkflowID), review.Reason, review.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert manual review: %w", err)
	}
	return nil
}

func (t *postgresTx) CreateDocumentRequests(ctx context.Context, requests []models.DocumentRequest) error {
	for _, r := range requests {
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO document_request (id, workflow_id, kind, created_at) VALUES ($1, $2, $3, $4)`,
			r.ID, uuid.UUID(r.WorkflowID), string(r.Kind), r.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert document request: %w", err)
		}
	}
	return nil
}

func (t *postgresTx) AppendOutbox(ctx context.Context, entry outbox.Entry) error {
	return t.outbox.Append(txcontext.WithTx(ctx, t.tx), entry)
}
