package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Search field names understood by Query. "all" is a sentinel for the full
// default set.
const (
	FieldDescription = "description"
	FieldCreator     = "creator"
	FieldTags        = "tags"
	FieldAll         = "all"
)

// listAllSize bounds ListIndexedIDs. At larger catalog sizes the full-id
// listing (and the sweep built on it) needs a changed-since cursor instead.
const listAllSize = 10000

// bulkBatchSize is the number of documents per bulk indexing batch.
const bulkBatchSize = 100

// Bleve is the on-disk bleve index holding clip projections. The dispatcher
// is the only writer during normal operation; bulk reindex runs as an
// independent writer and last-write-wins is acceptable because indexing is a
// full overwrite.
type Bleve struct {
	idx    bleve.Index
	logger *slog.Logger
}

// Open opens the index at path, creating it with the clip mapping when it
// does not exist yet. Repeated calls against an existing index are safe; the
// stored mapping is reused. Pass an empty path for an in-memory index (tests).
func Open(path string) (*Bleve, error) {
	m, err := buildMapping()
	if err != nil {
		return nil, fmt.Errorf("building index mapping: %w", err)
	}

	if path == "" {
		idx, err := bleve.NewMemOnly(m)
		if err != nil {
			return nil, fmt.Errorf("creating in-memory index: %w", err)
		}
		return &Bleve{idx: idx, logger: slog.Default()}, nil
	}

	if _, err := os.Stat(path); err == nil {
		idx, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening index at %s: %w", path, err)
		}
		return &Bleve{idx: idx, logger: slog.Default()}, nil
	}

	idx, err := bleve.New(path, m)
	if err != nil {
		return nil, fmt.Errorf("creating index at %s: %w", path, err)
	}
	return &Bleve{idx: idx, logger: slog.Default()}, nil
}

// Close flushes and closes the underlying index.
func (b *Bleve) Close() error {
	return b.idx.Close()
}

func buildMapping() (mapping.IndexMapping, error) {
	m := bleve.NewIndexMapping()

	// Whole-value lowercased terms, so wildcard substring queries against
	// handles and tags are case-insensitive.
	if err := m.AddCustomAnalyzer("keyword_lower", map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, err
	}

	clip := bleve.NewDocumentMapping()

	clip.AddFieldMappingsAt("description", bleve.NewTextFieldMapping())
	clip.AddFieldMappingsAt("creator_name", bleve.NewTextFieldMapping())

	handle := bleve.NewTextFieldMapping()
	handle.Analyzer = "keyword_lower"
	clip.AddFieldMappingsAt("creator_handle", handle)

	tags := bleve.NewTextFieldMapping()
	tags.Analyzer = "keyword_lower"
	clip.AddFieldMappingsAt("tags", tags)

	subject := bleve.NewTextFieldMapping()
	subject.Analyzer = "keyword_lower"
	subject.IncludeInAll = false
	clip.AddFieldMappingsAt("subject_id", subject)

	clip.AddFieldMappingsAt("created_at", bleve.NewDateTimeFieldMapping())
	clip.AddFieldMappingsAt("added_at", bleve.NewDateTimeFieldMapping())

	m.DefaultMapping = clip
	return m, nil
}

// IndexClip writes the projection under its subject id, replacing any
// previous version of the document.
func (b *Bleve) IndexClip(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.idx.Index(doc.SubjectID, doc); err != nil {
		return fmt.Errorf("indexing clip %s: %w", doc.SubjectID, err)
	}
	return nil
}

// DeleteClip removes the document for subjectID. Deleting an id that is not
// indexed is a success.
func (b *Bleve) DeleteClip(ctx context.Context, subjectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.idx.Delete(subjectID); err != nil {
		return fmt.Errorf("deleting clip %s from index: %w", subjectID, err)
	}
	return nil
}

// Query runs a ranked multi-field search and returns the matching subject
// ids in engine order plus the total match count. Results are ordered by
// added_at descending: recency beats textual relevance for default browsing
// of a personal archive.
//
// fields must already be normalized to the known field names; unknown names
// are ignored. With no usable field the query matches nothing.
func (b *Bleve) Query(ctx context.Context, text string, fields []string, size, from int) ([]string, int, error) {
	var subqueries []query.Query

	for _, f := range fields {
		switch f {
		case FieldDescription:
			q := bleve.NewMatchQuery(text)
			q.SetField("description")
			q.SetFuzziness(1)
			q.SetBoost(2.0)
			subqueries = append(subqueries, q)
		case FieldCreator:
			name := bleve.NewMatchQuery(text)
			name.SetField("creator_name")
			name.SetFuzziness(1)
			name.SetBoost(1.5)
			subqueries = append(subqueries, name)

			handle := bleve.NewWildcardQuery("*" + strings.ToLower(text) + "*")
			handle.SetField("creator_handle")
			subqueries = append(subqueries, handle)
		case FieldTags:
			q := bleve.NewWildcardQuery("*" + strings.ToLower(text) + "*")
			q.SetField("tags")
			q.SetBoost(1.0)
			subqueries = append(subqueries, q)
		}
	}

	if len(subqueries) == 0 {
		return nil, 0, nil
	}

	dq := bleve.NewDisjunctionQuery(subqueries...)
	dq.SetMin(1)

	req := bleve.NewSearchRequestOptions(dq, size, from, false)
	req.SortBy([]string{"-added_at"})

	res, err := b.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("searching index: %w", err)
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, int(res.Total), nil
}

// ListIndexedIDs returns the subject ids of every indexed document, for the
// reconciliation sweep.
func (b *Bleve) ListIndexedIDs(ctx context.Context) ([]string, error) {
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), listAllSize, 0, false)
	res, err := b.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("listing indexed ids: %w", err)
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// DocCount returns the number of indexed documents.
func (b *Bleve) DocCount() (uint64, error) {
	return b.idx.DocCount()
}

// BulkIndex writes docs in fixed-size batches, invoking progress with the
// cumulative document count after each batch. Bleve commits each batch
// synchronously, so no separate refresh step is needed after the final one.
func (b *Bleve) BulkIndex(ctx context.Context, docs []Document, progress func(processed int)) error {
	processed := 0
	for start := 0; start < len(docs); start += bulkBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + bulkBatchSize
		if end > len(docs) {
			end = len(docs)
		}

		batch := b.idx.NewBatch()
		for _, doc := range docs[start:end] {
			if err := batch.Index(doc.SubjectID, doc); err != nil {
				return fmt.Errorf("adding clip %s to batch: %w", doc.SubjectID, err)
			}
		}
		if err := b.idx.Batch(batch); err != nil {
			return fmt.Errorf("committing batch at offset %d: %w", start, err)
		}

		processed = end
		if progress != nil {
			progress(processed)
		}
	}
	return nil
}
