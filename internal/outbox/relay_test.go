package outbox

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	txcontext "onboarding/pkg/platform/tx"
	"onboarding/pkg/requestcontext"
)

type recordingPublisher struct {
	batches [][]Entry
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, entries []Entry) error {
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, entries)
	return nil
}

func entry(aggregate string) Entry {
	return Entry{
		ID:            uuid.New(),
		AggregateType: "workflow",
		AggregateID:   aggregate,
		EventType:     "workflow.transitioned",
		Payload:       []byte(`{}`),
		CreatedAt:     time.Now(),
	}
}

func TestRelayOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	t.Run("publishes pending entries in batches and marks them", func(t *testing.T) {
		store := NewInMemoryStore()
		for _, agg := range []string{"a", "b", "c"} {
			require.NoError(t, store.Append(ctx, entry(agg)))
		}
		pub := &recordingPublisher{}
		relay := NewRelay(store, pub, WithBatchSize(2))

		n, err := relay.RelayOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		n, err = relay.RelayOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		n, err = relay.RelayOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		require.Len(t, pub.batches, 2)
		assert.Equal(t, "c", pub.batches[1][0].AggregateID)
		for _, e := range store.All() {
			require.NotNil(t, e.PublishedAt)
			assert.Equal(t, now, *e.PublishedAt)
		}
	})

	t.Run("failed publish leaves entries pending", func(t *testing.T) {
		store := NewInMemoryStore()
		require.NoError(t, store.Append(ctx, entry("a")))
		pub := &recordingPublisher{err: errors.New("broker down")}
		relay := NewRelay(store, pub)

		_, err := relay.RelayOnce(ctx)
		require.Error(t, err)

		pending, err := store.Pending(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, pending, 1)

		pub.err = nil
		n, err := relay.RelayOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestRelayRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := NewInMemoryStore()
	require.NoError(t, store.Append(ctx, entry("a")))
	pub := &recordingPublisher{}
	relay := NewRelay(store, pub, WithInterval(5*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		pending, _ := store.Pending(context.Background(), 10)
		return len(pending) == 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestPostgresStore_AppendUsesContextTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	e := entry("wf-1")
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox")).
		WithArgs(e.ID, "workflow", "wf-1", "workflow.transitioned", e.Payload, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	store := NewPostgresStore(db)
	require.NoError(t, store.Append(txcontext.WithTx(context.Background(), tx), e))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkPublished(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	require.NoError(t, store.MarkPublished(context.Background(), nil, time.Now()), "empty batch is a no-op")

	mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox SET published_at")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, store.MarkPublished(context.Background(), []uuid.UUID{uuid.New(), uuid.New()}, time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
