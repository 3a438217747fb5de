// Package search translates free-text queries into ranked, paginated clip
// results: the engine supplies an ordered id list, the clip store supplies
// the records, and the engine's ordering always wins.
package search

import (
	"context"
	"log/slog"

	"github.com/kalambet/clipvault/internal/index"
	"github.com/kalambet/clipvault/internal/storage"
)

// DefaultPageSize bounds a result page when the caller does not.
const DefaultPageSize = 20

// Index is the read side of the search engine contract.
type Index interface {
	Query(ctx context.Context, text string, fields []string, size, from int) ([]string, int, error)
}

// ClipStore hydrates result pages in one batch.
type ClipStore interface {
	GetClipsBySubjectIDs(ids []string) ([]storage.Clip, error)
}

// Searcher is the read-only query engine. It never touches the operation
// queue.
type Searcher struct {
	index  Index
	store  ClipStore
	logger *slog.Logger
}

// NewSearcher creates a query engine over the given index and clip store.
func NewSearcher(idx Index, store ClipStore) *Searcher {
	return &Searcher{index: idx, store: store, logger: slog.Default()}
}

var defaultFields = []string{index.FieldDescription, index.FieldCreator, index.FieldTags}

// Search runs a ranked multi-field query and returns one hydrated page plus
// the engine's total match count. page is 1-indexed; fields defaults to
// {description, creator, tags} when empty or containing "all".
//
// Failures degrade to an empty page with zero total rather than surfacing
// an error: a broken engine must read as "no results" in a user-facing
// search box. Ids the engine returns that are missing from the clip store
// (late drift) are silently dropped; the reported total is the engine's.
func (s *Searcher) Search(ctx context.Context, query string, page, pageSize int, fields []string) ([]storage.Clip, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	from := (page - 1) * pageSize

	ids, total, err := s.index.Query(ctx, query, normalizeFields(fields), pageSize, from)
	if err != nil {
		s.logger.Error("search query failed", "query", query, "error", err)
		return []storage.Clip{}, 0
	}

	clips, err := s.store.GetClipsBySubjectIDs(ids)
	if err != nil {
		s.logger.Error("hydrating search results failed", "query", query, "error", err)
		return []storage.Clip{}, 0
	}

	// Reorder to the engine's ranking; the store's ordering is never
	// trusted for final output.
	byID := make(map[string]storage.Clip, len(clips))
	for _, c := range clips {
		byID[c.SubjectID] = c
	}
	ordered := make([]storage.Clip, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}

	return ordered, total
}

func normalizeFields(fields []string) []string {
	if len(fields) == 0 {
		return defaultFields
	}
	for _, f := range fields {
		if f == index.FieldAll {
			return defaultFields
		}
	}
	return fields
}
