// Package outbox implements the transactional outbox for workflow notifications. Entries are
// written in the same transaction as the state change they describe and relayed to Kafka
// afterwards, so a notification is never lost and never precedes its commit.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entry is one pending notification.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// Store persists outbox entries. Append joins the caller's transaction when one is on the context.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	// Pending returns unpublished entries oldest first.
	Pending(ctx context.Context, limit int) ([]Entry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Publisher delivers entries downstream. Delivery is at least once.
type Publisher interface {
	Publish(ctx context.Context, entries []Entry) error
}
