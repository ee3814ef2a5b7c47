package tx

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	_, ok := From(ctx)
	assert.False(t, ok)

	assert.Equal(t, ctx, WithTx(ctx, nil), "nil tx leaves context untouched")

	sqlTx := &sql.Tx{}
	got, ok := From(WithTx(ctx, sqlTx))
	assert.True(t, ok)
	assert.Same(t, sqlTx, got)
}

func TestPick(t *testing.T) {
	db := &sql.DB{}
	assert.Same(t, db, Pick(context.Background(), db))

	sqlTx := &sql.Tx{}
	assert.Same(t, sqlTx, Pick(WithTx(context.Background(), sqlTx), db))
}
