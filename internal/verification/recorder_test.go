package verification

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding/internal/vendors"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
)

func testSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := NewSealer([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return s
}

func TestSealer(t *testing.T) {
	s := testSealer(t)

	t.Run("round trip", func(t *testing.T) {
		sealed, err := s.Seal([]byte(`{"score":0.93}`))
		require.NoError(t, err)
		assert.NotContains(t, string(sealed), "score")

		opened, err := s.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, `{"score":0.93}`, string(opened))
	})

	t.Run("tampered box is rejected", func(t *testing.T) {
		sealed, err := s.Seal([]byte("payload"))
		require.NoError(t, err)
		sealed[len(sealed)-1] ^= 0xff
		_, err = s.Open(sealed)
		assert.ErrorIs(t, err, ErrUnseal)
	})

	t.Run("short input is rejected", func(t *testing.T) {
		_, err := s.Open([]byte("short"))
		assert.ErrorIs(t, err, ErrUnseal)
	})

	t.Run("key size is enforced", func(t *testing.T) {
		_, err := NewSealer([]byte("short"))
		assert.Error(t, err)
	})
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	owner := SessionOwner(id.NewSessionID())
	lookup := Lookup{Owner: owner, API: vendors.IncodeAddFront, InputKey: "upload-1"}
	request := func() Request {
		return Request{Vendor: vendors.Incode, API: vendors.IncodeAddFront, Owner: owner, InputKey: "upload-1"}
	}

	t.Run("successful call writes request and result", func(t *testing.T) {
		store := NewInMemoryStore()
		rec := NewRecorder(store, testSealer(t))

		require.NoError(t, rec.Record(ctx, request(), []byte(`{"ok":true}`), nil))

		records, err := store.ListByOwner(ctx, owner)
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.NotNil(t, records[0].Result)
		assert.False(t, records[0].Result.IsError)
		assert.Equal(t, records[0].Request.ID, records[0].Result.RequestID)

		raw, ok, err := rec.Reusable(ctx, lookup)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `{"ok":true}`, string(raw))
	})

	t.Run("call that never reached the vendor writes only the request", func(t *testing.T) {
		store := NewInMemoryStore()
		rec := NewRecorder(store, testSealer(t))
		callErr := vendors.NewError(vendors.ErrorTimeout, vendors.Incode, "timed out", errors.New("deadline"))

		require.NoError(t, rec.Record(ctx, request(), nil, callErr))

		records, err := store.ListByOwner(ctx, owner)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Nil(t, records[0].Result)

		_, ok, err := rec.Reusable(ctx, lookup)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("vendor error response is recorded but not reusable", func(t *testing.T) {
		store := NewInMemoryStore()
		rec := NewRecorder(store, testSealer(t))
		callErr := vendors.NewError(vendors.ErrorBadData, vendors.Incode, "malformed", nil)

		require.NoError(t, rec.Record(ctx, request(), nil, callErr))

		records, err := store.ListByOwner(ctx, owner)
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.NotNil(t, records[0].Result)
		assert.True(t, records[0].Result.IsError)

		_, ok, err := rec.Reusable(ctx, lookup)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("different input key is not reused", func(t *testing.T) {
		store := NewInMemoryStore()
		rec := NewRecorder(store, testSealer(t))
		require.NoError(t, rec.Record(ctx, request(), []byte(`{}`), nil))

		other := lookup
		other.InputKey = "upload-2"
		_, ok, err := rec.Reusable(ctx, other)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestPostgresStore_AppendOpensOwnTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	rec, err := NewRecorder(store, testSealer(t)).Build(context.Background(), Request{
		Vendor: vendors.Idology,
		API:    vendors.IdologyExpectID,
		Owner:  IntentOwner(id.NewDecisionIntentID()),
	}, []byte(`{}`), nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO verification_request")).
		WithArgs(sqlmock.AnyArg(), "idology", "idology_expectid", sqlmock.AnyArg(), sqlmock.AnyArg(), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO verification_result")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Append(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestSuccessfulNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM verification_request r")).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "vendor", "vendor_api", "owner_id", "workflow_id", "input_key", "created_at",
			"result_id", "response", "is_error", "result_created_at",
		}))

	_, err = NewPostgresStore(db).LatestSuccessful(context.Background(), Lookup{API: vendors.IncodeFetchOCR})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
