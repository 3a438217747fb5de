package indexsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/clipvault/internal/index"
	"github.com/kalambet/clipvault/internal/storage"
)

// reindexPageSize is the clip store read batch during a bulk reindex.
const reindexPageSize = 100

// ReindexStore is the slice of storage the reindexer needs.
type ReindexStore interface {
	CountClips() (int, error)
	ListClipsPage(limit, offset int) ([]storage.Clip, error)
}

// BulkIndexer is the bulk write side of the search engine contract.
type BulkIndexer interface {
	BulkIndex(ctx context.Context, docs []index.Document, progress func(processed int)) error
}

// ReindexProgress is a snapshot of one bulk reindex session.
type ReindexProgress struct {
	Running     bool
	Processed   int
	Total       int
	StartedAt   time.Time
	CompletedAt time.Time // zero while running
	Error       string
}

// Percentage reports completion as processed*100/total, or 0 for an empty
// catalog.
func (p ReindexProgress) Percentage() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Processed) * 100 / float64(p.Total)
}

// Reindexer runs full-catalog reindex sessions and tracks their progress in
// a keyed map owned by this long-lived object. Completed sessions are
// evicted after a retention window so the map cannot grow without bound. A
// running session does not coordinate with the live queue; a clip mutated
// mid-reindex may be indexed twice with two snapshots, which is acceptable
// because indexing is an idempotent full overwrite.
type Reindexer struct {
	store  ReindexStore
	search BulkIndexer
	logger *slog.Logger

	retention time.Duration

	mu       sync.Mutex
	sessions map[string]*ReindexProgress
}

// NewReindexer creates a reindexer that keeps completed sessions for one hour.
func NewReindexer(store ReindexStore, search BulkIndexer) *Reindexer {
	return &Reindexer{
		store:     store,
		search:    search,
		logger:    slog.Default(),
		retention: time.Hour,
		sessions:  make(map[string]*ReindexProgress),
	}
}

// Start begins a reindex session in the background and returns its token.
func (r *Reindexer) Start(ctx context.Context) (string, error) {
	total, err := r.store.CountClips()
	if err != nil {
		return "", fmt.Errorf("counting clips: %w", err)
	}

	session := uuid.New().String()
	r.mu.Lock()
	r.evictLocked()
	r.sessions[session] = &ReindexProgress{
		Running:   true,
		Total:     total,
		StartedAt: time.Now().UTC(),
	}
	r.mu.Unlock()

	go r.run(ctx, session, total)
	return session, nil
}

// Progress returns a snapshot of a session, reporting false for unknown or
// evicted tokens.
func (r *Reindexer) Progress(session string) (ReindexProgress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked()
	p, ok := r.sessions[session]
	if !ok {
		return ReindexProgress{}, false
	}
	return *p, true
}

func (r *Reindexer) run(ctx context.Context, session string, total int) {
	r.logger.Info("bulk reindex started", "session", session, "total", total)

	err := r.reindex(ctx, session, total)

	r.mu.Lock()
	if p, ok := r.sessions[session]; ok {
		p.Running = false
		p.CompletedAt = time.Now().UTC()
		if err != nil {
			p.Error = err.Error()
		}
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("bulk reindex failed", "session", session, "error", err)
		return
	}
	r.logger.Info("bulk reindex completed", "session", session, "total", total)
}

func (r *Reindexer) reindex(ctx context.Context, session string, total int) error {
	docs := make([]index.Document, 0, total)
	for offset := 0; offset < total; offset += reindexPageSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		clips, err := r.store.ListClipsPage(reindexPageSize, offset)
		if err != nil {
			return fmt.Errorf("reading clips at offset %d: %w", offset, err)
		}
		for _, c := range clips {
			docs = append(docs, index.NewDocument(c))
		}
	}

	return r.search.BulkIndex(ctx, docs, func(processed int) {
		r.mu.Lock()
		if p, ok := r.sessions[session]; ok {
			p.Processed = processed
		}
		r.mu.Unlock()
	})
}

// evictLocked drops completed sessions older than the retention window.
// Callers must hold mu.
func (r *Reindexer) evictLocked() {
	for token, p := range r.sessions {
		if !p.Running && !p.CompletedAt.IsZero() && time.Since(p.CompletedAt) > r.retention {
			delete(r.sessions, token)
		}
	}
}
