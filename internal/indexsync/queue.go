// Package indexsync keeps the search index consistent with the clip store:
// a durable operation queue, a single-consumer dispatcher with bounded
// retry/backoff, a periodic reconciliation sweeper, and the bulk reindexer.
package indexsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/clipvault/internal/storage"
)

// recoverBatchSize bounds the startup requeue pass.
const recoverBatchSize = 100

// Item is the in-memory companion of a persisted operation row. It carries
// only the dispatch key; the row remains the source of truth.
type Item struct {
	Kind      storage.OperationKind
	SubjectID string
}

// OperationStore is the slice of storage the queue needs.
type OperationStore interface {
	InsertOperation(op storage.Operation) error
	ListPendingOperations(maxRetries, limit int) ([]storage.Operation, error)
	CountOperations() (int, error)
}

// Queue persists index operations and feeds them to the single dispatcher
// consumer through an unbounded in-memory channel. Persistence happens
// before the in-memory publish, so a crash between the two leaves the
// operation recoverable via RecoverPending. Producers never block: the
// durability guarantee rests on the persisted row, not on channel capacity.
type Queue struct {
	store  OperationStore
	logger *slog.Logger

	in   chan Item
	out  chan Item
	done chan struct{}
}

// NewQueue creates a queue and starts its pump goroutine. Call Close once
// all producers have stopped.
func NewQueue(store OperationStore) *Queue {
	q := &Queue{
		store:  store,
		logger: slog.Default(),
		in:     make(chan Item),
		out:    make(chan Item),
		done:   make(chan struct{}),
	}
	go q.pump()
	return q
}

// pump moves items from in to out through an unbounded buffer, decoupling
// producers from the single consumer.
func (q *Queue) pump() {
	defer close(q.done)

	var buf []Item
	for {
		var out chan Item
		var next Item
		if len(buf) > 0 {
			out = q.out
			next = buf[0]
		}

		select {
		case item, ok := <-q.in:
			if !ok {
				close(q.out)
				return
			}
			buf = append(buf, item)
		case out <- next:
			buf = buf[1:]
		}
	}
}

// Enqueue persists a new operation row and publishes it for dispatch.
// Persistence failures are logged, never returned: indexing is best-effort
// relative to the primary write, and record mutation paths must not be
// blocked by indexing trouble.
func (q *Queue) Enqueue(kind storage.OperationKind, subjectID string) {
	op := storage.Operation{
		ID:        uuid.New().String(),
		Kind:      kind,
		SubjectID: subjectID,
		CreatedAt: time.Now().UTC(),
	}
	if err := q.store.InsertOperation(op); err != nil {
		q.logger.Error("failed to persist index operation",
			"kind", kind, "subject_id", subjectID, "error", err)
		return
	}

	q.Republish(Item{Kind: kind, SubjectID: subjectID})
	q.logger.Debug("enqueued index operation", "kind", kind, "subject_id", subjectID)
}

// Republish puts an item back on the in-memory channel without touching
// storage. Used for retry after backoff, where the failed row (with its
// incremented retry count) is already the durable record.
func (q *Queue) Republish(item Item) {
	q.in <- item
}

// Dequeue blocks the single consumer until an item is available or ctx is
// canceled. It reports false on cancellation or after Close.
func (q *Queue) Dequeue(ctx context.Context) (Item, bool) {
	select {
	case <-ctx.Done():
		return Item{}, false
	case item, ok := <-q.out:
		if !ok {
			return Item{}, false
		}
		return item, true
	}
}

// RecoverPending republishes persisted operations below the retry cap,
// oldest first, up to a bounded batch. Run once at startup to repair the
// gap between "persisted" and "in-memory lost on crash".
func (q *Queue) RecoverPending() (int, error) {
	ops, err := q.store.ListPendingOperations(storage.MaxRetries, recoverBatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing pending operations: %w", err)
	}
	for _, op := range ops {
		q.Republish(Item{Kind: op.Kind, SubjectID: op.SubjectID})
	}
	return len(ops), nil
}

// PendingCount reports the number of persisted operation rows.
func (q *Queue) PendingCount() (int, error) {
	return q.store.CountOperations()
}

// Close stops the pump. Undelivered buffered items are dropped; their rows
// remain in storage and are recovered on the next start. Producers must
// have stopped before calling Close.
func (q *Queue) Close() {
	close(q.in)
	<-q.done
}
