package indexsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/clipvault/internal/storage"
)

// SweepStore is the slice of storage the sweeper needs.
type SweepStore interface {
	GetSyncConfig() (storage.SyncConfig, error)
	ListClipSubjectIDs() ([]string, error)
}

// IDLister exposes the full indexed id set.
type IDLister interface {
	ListIndexedIDs(ctx context.Context) ([]string, error)
}

// Enqueuer is the queue's producer side.
type Enqueuer interface {
	Enqueue(kind storage.OperationKind, subjectID string)
}

// Sweeper periodically diffs the clip store's subject ids against the
// search index and enqueues corrective operations for the drift the
// event-driven path missed. It is a full-catalog diff: correctness over
// efficiency, acceptable while the id sets fit comfortably in memory.
type Sweeper struct {
	store  SweepStore
	search IDLister
	queue  Enqueuer
	logger *slog.Logger

	initialDelay  time.Duration // quiet period before the first sweep
	fallbackDelay time.Duration // retry delay when the interval can't be read
}

// NewSweeper creates a sweeper with production delays (1 minute initial
// quiet period, 5 minute fallback).
func NewSweeper(store SweepStore, search IDLister, queue Enqueuer) *Sweeper {
	return &Sweeper{
		store:         store,
		search:        search,
		queue:         queue,
		logger:        slog.Default(),
		initialDelay:  time.Minute,
		fallbackDelay: 5 * time.Minute,
	}
}

// Run sweeps on the configured interval until ctx is canceled. Failures are
// logged and retried on the next cycle; the loop never terminates except on
// cancellation.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("reconciliation sweeper started")

	if !sleepCtx(ctx, s.initialDelay) {
		s.logger.Info("reconciliation sweeper stopped")
		return
	}

	for {
		cfg, err := s.store.GetSyncConfig()
		if err != nil {
			s.logger.Error("failed to read sync config", "error", err)
			if !sleepCtx(ctx, s.fallbackDelay) {
				break
			}
			continue
		}

		if err := s.SweepOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.Error("reconciliation sweep failed", "error", err)
		}

		if !sleepCtx(ctx, time.Duration(cfg.SyncIntervalMinutes)*time.Minute) {
			break
		}
	}

	s.logger.Info("reconciliation sweeper stopped")
}

// SweepOnce computes the symmetric difference between the clip store's and
// the index's subject id sets and enqueues an index operation for every id
// missing from the index and a delete for every orphan.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	recordIDs, err := s.store.ListClipSubjectIDs()
	if err != nil {
		return fmt.Errorf("listing clip ids: %w", err)
	}
	indexIDs, err := s.search.ListIndexedIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing indexed ids: %w", err)
	}

	missing, orphaned := diffIDs(recordIDs, indexIDs)

	for _, id := range missing {
		s.queue.Enqueue(storage.KindIndex, id)
	}
	for _, id := range orphaned {
		s.queue.Enqueue(storage.KindDelete, id)
	}

	s.logger.Info("reconciliation sweep completed",
		"missing_from_index", len(missing), "orphaned_in_index", len(orphaned))
	return nil
}

// diffIDs returns recordIDs − indexIDs and indexIDs − recordIDs, preserving
// input order within each set.
func diffIDs(recordIDs, indexIDs []string) (missing, orphaned []string) {
	inRecords := make(map[string]struct{}, len(recordIDs))
	for _, id := range recordIDs {
		inRecords[id] = struct{}{}
	}
	inIndex := make(map[string]struct{}, len(indexIDs))
	for _, id := range indexIDs {
		inIndex[id] = struct{}{}
	}

	for _, id := range recordIDs {
		if _, ok := inIndex[id]; !ok {
			missing = append(missing, id)
		}
	}
	for _, id := range indexIDs {
		if _, ok := inRecords[id]; !ok {
			orphaned = append(orphaned, id)
		}
	}
	return missing, orphaned
}
