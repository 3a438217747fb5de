package indexsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/clipvault/internal/index"
	"github.com/kalambet/clipvault/internal/storage"
)

// DispatchStore is the slice of storage the dispatcher needs. Every row
// mutation (retry increment, deletion) happens inside the dispatcher's
// single-consumer context, so no locking beyond the store's own row-level
// guarantees is required.
type DispatchStore interface {
	GetOperationBySubject(subjectID string, kind storage.OperationKind) (storage.Operation, error)
	DeleteOperation(id string) error
	MarkOperationFailed(id, errMsg string) (int, error)
	GetClip(subjectID string) (storage.Clip, error)
}

// SearchIndex is the write side of the search engine contract.
type SearchIndex interface {
	IndexClip(ctx context.Context, doc index.Document) error
	DeleteClip(ctx context.Context, subjectID string) error
}

// Dispatcher drains the queue and applies operations to the search index
// with bounded retry and exponential backoff. It is the sole writer to the
// index during normal operation.
type Dispatcher struct {
	queue  *Queue
	store  DispatchStore
	search SearchIndex
	logger *slog.Logger

	backoffUnit time.Duration // multiplied by 2^retryCount; 1s in production
	faultDelay  time.Duration // pause after a fault in the loop itself
}

// NewDispatcher creates a dispatcher with production delays.
func NewDispatcher(queue *Queue, store DispatchStore, search SearchIndex) *Dispatcher {
	return &Dispatcher{
		queue:       queue,
		store:       store,
		search:      search,
		logger:      slog.Default(),
		backoffUnit: time.Second,
		faultDelay:  5 * time.Second,
	}
}

// Run consumes the queue until ctx is canceled. It first republishes
// persisted operations that were lost from memory by a previous crash.
// Faults in the loop itself are logged and followed by a fixed delay; the
// loop never terminates except on cancellation.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("index dispatcher started")

	if n, err := d.queue.RecoverPending(); err != nil {
		d.logger.Error("failed to recover pending operations", "error", err)
	} else if n > 0 {
		d.logger.Info("recovered pending operations", "count", n)
	}

	for {
		item, ok := d.queue.Dequeue(ctx)
		if !ok {
			d.logger.Info("index dispatcher stopped")
			return
		}

		if err := d.processItem(ctx, item); err != nil {
			if ctx.Err() != nil {
				d.logger.Info("index dispatcher stopped")
				return
			}
			d.logger.Error("dispatch fault",
				"kind", item.Kind, "subject_id", item.SubjectID, "error", err)
			if !sleepCtx(ctx, d.faultDelay) {
				d.logger.Info("index dispatcher stopped")
				return
			}
		}
	}
}

// processItem applies one dequeued item. Apply failures are consumed here
// (retry bookkeeping); only unexpected storage faults are returned to the
// loop.
func (d *Dispatcher) processItem(ctx context.Context, item Item) error {
	op, err := d.store.GetOperationBySubject(item.SubjectID, item.Kind)
	if errors.Is(err, storage.ErrNotFound) {
		// Already applied by an earlier delivery. Duplicate enqueues for the
		// same (subject, kind) pair collapse to no-ops here.
		d.logger.Debug("operation already applied",
			"kind", item.Kind, "subject_id", item.SubjectID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up operation: %w", err)
	}

	if applyErr := d.apply(ctx, item); applyErr != nil {
		if ctx.Err() != nil {
			// Canceled mid-attempt: the row is untouched and will be
			// recovered on the next start.
			return nil
		}
		return d.handleFailure(ctx, op, item, applyErr)
	}

	if err := d.store.DeleteOperation(op.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("removing completed operation: %w", err)
	}
	return nil
}

func (d *Dispatcher) apply(ctx context.Context, item Item) error {
	switch item.Kind {
	case storage.KindIndex:
		clip, err := d.store.GetClip(item.SubjectID)
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted after the operation was queued; the delete operation,
			// if any, reconciles the index.
			d.logger.Warn("clip no longer exists, skipping index", "subject_id", item.SubjectID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("loading clip: %w", err)
		}
		return d.search.IndexClip(ctx, index.NewDocument(clip))

	case storage.KindDelete:
		return d.search.DeleteClip(ctx, item.SubjectID)

	default:
		return fmt.Errorf("unknown operation kind %q", item.Kind)
	}
}

// handleFailure records the attempt, then either waits 2^retryCount backoff
// units and republishes, or dead-letters once the retry cap is reached. All
// apply failures are treated uniformly as transient.
func (d *Dispatcher) handleFailure(ctx context.Context, op storage.Operation, item Item, applyErr error) error {
	d.logger.Error("index operation failed",
		"kind", item.Kind, "subject_id", item.SubjectID, "error", applyErr)

	retries, err := d.store.MarkOperationFailed(op.ID, applyErr.Error())
	if err != nil {
		return fmt.Errorf("recording failed attempt: %w", err)
	}

	if retries >= storage.MaxRetries {
		d.logger.Error("retry budget exhausted, operation dead-lettered",
			"kind", item.Kind, "subject_id", item.SubjectID, "retries", retries)
		return nil
	}

	if !sleepCtx(ctx, time.Duration(1<<retries)*d.backoffUnit) {
		return nil
	}
	d.queue.Republish(item)
	return nil
}

// sleepCtx waits for d, reporting false if ctx is canceled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
