package incode

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"onboarding/internal/risk"
	"onboarding/internal/vendors/incode/models"
	"onboarding/internal/verification"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
	txcontext "onboarding/pkg/platform/tx"
)

// PostgresStore persists sessions in PostgreSQL. Verification records written inside a
// transaction share it through the context.
type PostgresStore struct {
	db    *sql.DB
	verif verification.Store
}

func NewPostgresStore(db *sql.DB, verif verification.Store) *PostgresStore {
	return &PostgresStore{db: db, verif: verif}
}

const sessionColumns = `
	id, workflow_id, tenant_id, scoped_vault_id, document_type, state, token, interview_id,
	failure_reason, failed_attempts, terminal, scores, signals, created_at, updated_at, completed_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s                                      models.Session
		sid, workflowID, tenantID, scopedVault uuid.UUID
		docType, state                         string
		failure                                sql.NullString
		scores                                 []byte
		signals                                []string
		completedAt                            sql.NullTime
	)
	err := row.Scan(
		&sid, &workflowID, &tenantID, &scopedVault, &docType, &state,
		&s.Credentials.Token, &s.Credentials.InterviewID,
		&failure, &s.FailedAttempts, &s.Terminal, &scores, pq.Array(&signals),
		&s.CreatedAt, &s.UpdatedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan incode session: %w", err)
	}
	s.ID = id.SessionID(sid)
	s.WorkflowID = id.WorkflowID(workflowID)
	s.TenantID = id.TenantID(tenantID)
	s.ScopedVaultID = id.ScopedVaultID(scopedVault)
	s.DocumentType = models.DocumentType(docType)
	if s.State, err = models.ParseState(state); err != nil {
		return nil, err
	}
	if failure.Valid {
		reason := models.FailureReason(failure.String)
		s.FailureReason = &reason
	}
	if len(scores) > 0 {
		s.Scores = &models.Scores{}
		if err := json.Unmarshal(scores, s.Scores); err != nil {
			return nil, fmt.Errorf("decode incode scores: %w", err)
		}
	}
	for _, code := range signals {
		s.Signals = append(s.Signals, risk.ReasonCode(code))
	}
	if completedAt.Valid {
		t := completedAt.Time
		s.CompletedAt = &t
	}
	return &s, nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO incode_session (
			id, workflow_id, tenant_id, scoped_vault_id, document_type, state, token, interview_id,
			failed_attempts, terminal, signals, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, FALSE, '{}', $9, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(session.ID),
		uuid.UUID(session.WorkflowID),
		uuid.UUID(session.TenantID),
		uuid.UUID(session.ScopedVaultID),
		string(session.DocumentType),
		string(session.State),
		session.Credentials.Token,
		session.Credentials.InterviewID,
		session.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert incode session: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindSession(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM incode_session WHERE id = $1`, uuid.UUID(sessionID))
	return scanSession(row)
}

func (s *PostgresStore) FindSessionByWorkflow(ctx context.Context, workflowID id.WorkflowID) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM incode_session WHERE workflow_id = $1`, uuid.UUID(workflowID))
	return scanSession(row)
}

func (s *PostgresStore) LatestFinishedSession(ctx context.Context, sv id.ScopedVaultID) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM incode_session
		WHERE scoped_vault_id = $1 AND (state = $2 OR terminal)
		ORDER BY updated_at DESC
		LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, uuid.UUID(sv), string(models.StateComplete))
	return scanSession(row)
}

func (s *PostgresStore) AddUpload(ctx context.Context, upload *models.Upload) error {
	query := `
		INSERT INTO incode_upload (id, session_id, side, image_ref, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(upload.ID),
		uuid.UUID(upload.SessionID),
		string(upload.Side),
		upload.ImageRef,
		upload.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert incode upload: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestUpload(ctx context.Context, sessionID id.SessionID, side models.Side) (*models.Upload, error) {
	query := `
		SELECT id, session_id, side, image_ref, created_at
		FROM incode_upload
		WHERE session_id = $1 AND side = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var (
		u          models.Upload
		uid, sid   uuid.UUID
		uploadSide string
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(sessionID), string(side)).
		Scan(&uid, &sid, &uploadSide, &u.ImageRef, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find incode upload: %w", err)
	}
	u.ID = id.DocumentID(uid)
	u.SessionID = id.SessionID(sid)
	u.Side = models.Side(uploadSide)
	return &u, nil
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx TxStore) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin incode tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&postgresTx{tx: tx, verif: s.verif}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit incode tx: %w", err)
	}
	return nil
}

type postgresTx struct {
	tx    *sql.Tx
	verif verification.Store
}

func (t *postgresTx) LockSession(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM incode_session WHERE id = $1 FOR UPDATE`, uuid.UUID(sessionID))
	return scanSession(row)
}

func (t *postgresTx) UpdateSession(ctx context.Context, session *models.Session) error {
	var scores []byte
	if session.Scores != nil {
		var err error
		if scores, err = json.Marshal(session.Scores); err != nil {
			return fmt.Errorf("encode incode scores: %w", err)
		}
	}
	var failure sql.NullString
	if session.FailureReason != nil {
		failure = sql.NullString{String: string(*session.FailureReason), Valid: true}
	}
	signals := make([]string, 0, len(session.Signals))
	for _, code := range session.Signals {
		signals = append(signals, string(code))
	}
	query := `
		UPDATE incode_session
		SET state = $2, failure_reason = $3, failed_attempts = $4, terminal = $5,
		    scores = $6, signals = $7, updated_at = $8, completed_at = $9,
		    token = $10, interview_id = $11
		WHERE id = $1
	`
	res, err := t.tx.ExecContext(ctx, query,
		uuid.UUID(session.ID),
		string(session.State),
		failure,
		session.FailedAttempts,
		session.Terminal,
		scores,
		pq.Array(signals),
		session.UpdatedAt,
		session.CompletedAt,
		session.Credentials.Token,
		session.Credentials.InterviewID,
	)
	if err != nil {
		return fmt.Errorf("update incode session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (t *postgresTx) AppendVerification(ctx context.Context, rec verification.Record) error {
	return t.verif.Append(txcontext.WithTx(ctx, t.tx), rec)
}
