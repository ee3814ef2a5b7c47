package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"onboarding/internal/vendors"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
	txcontext "onboarding/pkg/platform/tx"
)

// PostgresStore persists verification records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.Executor {
	return txcontext.Pick(ctx, s.db)
}

const (
	insertRequestQuery = `
		INSERT INTO verification_request (id, vendor, vendor_api, owner_id, workflow_id, input_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	insertResultQuery = `
		INSERT INTO verification_result (id, request_id, response, is_error, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	selectRecordColumns = `
		SELECT r.id, r.vendor, r.vendor_api, r.owner_id, r.workflow_id, r.input_key, r.created_at,
		       s.id, s.response, s.is_error, s.created_at
		FROM verification_request r
		LEFT JOIN verification_result s ON s.request_id = r.id
	`
)

// Append writes the request and result in the caller's transaction, or in its own when the
// context carries none.
func (s *PostgresStore) Append(ctx context.Context, rec Record) error {
	if _, ok := txcontext.From(ctx); ok {
		return s.insert(ctx, rec)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin verification tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.insert(txcontext.WithTx(ctx, tx), rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit verification tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) insert(ctx context.Context, rec Record) error {
	req := rec.Request
	_, err := s.execer(ctx).ExecContext(ctx, insertRequestQuery,
		uuid.UUID(req.ID),
		string(req.Vendor),
		string(req.API),
		uuid.UUID(req.Owner),
		uuid.UUID(req.WorkflowID),
		req.InputKey,
		req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verification request: %w", err)
	}
	if rec.Result == nil {
		return nil
	}
	_, err = s.execer(ctx).ExecContext(ctx, insertResultQuery,
		rec.Result.ID,
		uuid.UUID(req.ID),
		rec.Result.Response,
		rec.Result.IsError,
		rec.Result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verification result: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestSuccessful(ctx context.Context, lookup Lookup) (*Record, error) {
	query := selectRecordColumns + `
		WHERE r.owner_id = $1 AND r.vendor_api = $2 AND r.input_key = $3
		  AND s.id IS NOT NULL AND NOT s.is_error
		ORDER BY r.created_at DESC
		LIMIT 1
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(lookup.Owner), string(lookup.API), lookup.InputKey)
	if err != nil {
		return nil, fmt.Errorf("query verification result: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return &records[0], nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner Owner) ([]Record, error) {
	query := selectRecordColumns + `
		WHERE r.owner_id = $1
		ORDER BY r.created_at ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(owner))
	if err != nil {
		return nil, fmt.Errorf("query verification records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var (
			reqID, ownerID, workflowID uuid.UUID
			vendorName, api            string
			rec                        Record
			resultID                   uuid.NullUUID
			response                   []byte
			isError                    sql.NullBool
			resultCreatedAt            sql.NullTime
		)
		if err := rows.Scan(
			&reqID, &vendorName, &api, &ownerID, &workflowID, &rec.Request.InputKey, &rec.Request.CreatedAt,
			&resultID, &response, &isError, &resultCreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan verification record: %w", err)
		}
		rec.Request.ID = id.VerificationRequestID(reqID)
		rec.Request.Vendor = vendors.Name(vendorName)
		rec.Request.API = vendors.API(api)
		rec.Request.Owner = Owner(ownerID)
		rec.Request.WorkflowID = id.WorkflowID(workflowID)
		if resultID.Valid {
			rec.Result = &Result{
				ID:        resultID.UUID,
				RequestID: rec.Request.ID,
				Response:  response,
				IsError:   isError.Bool,
				CreatedAt: resultCreatedAt.Time,
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("iterate verification records: %w", err)
	}
	return out, nil
}
