// Package index wraps the embedded bleve full-text engine behind the small
// contract the rest of the system depends on: index a clip projection,
// delete by subject id, run a ranked query, list indexed ids, bulk reindex.
package index

import (
	"strings"
	"time"

	"github.com/kalambet/clipvault/internal/storage"
)

// Document is the denormalized projection of a clip held by the search
// engine. It is rebuilt in full on every (re)index; there are no partial
// updates. Handle and tags are lowercased at projection time to match the
// lowercasing analyzer on those fields.
type Document struct {
	SubjectID     string    `json:"subject_id"`
	Description   string    `json:"description"`
	CreatorName   string    `json:"creator_name"`
	CreatorHandle string    `json:"creator_handle"`
	Tags          []string  `json:"tags"`
	CreatedAt     time.Time `json:"created_at"`
	AddedAt       time.Time `json:"added_at"`
}

// NewDocument builds the index projection of a clip.
func NewDocument(c storage.Clip) Document {
	tags := make([]string, len(c.Tags))
	for i, t := range c.Tags {
		tags[i] = strings.ToLower(t)
	}
	return Document{
		SubjectID:     c.SubjectID,
		Description:   c.Description,
		CreatorName:   c.Creator.DisplayName,
		CreatorHandle: strings.ToLower(c.Creator.Handle),
		Tags:          tags,
		CreatedAt:     c.CreatedAt.UTC(),
		AddedAt:       c.AddedAt.UTC(),
	}
}
