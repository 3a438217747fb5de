package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// OperationKind is the type of pending index work.
type OperationKind string

const (
	KindIndex  OperationKind = "index"
	KindDelete OperationKind = "delete"
)

// MaxRetries is the retry budget for index operations. An operation whose
// retry count reaches this value is kept as a dead letter and is no longer
// retried automatically.
const MaxRetries = 3

// Operation is a persisted unit of pending index work. The row outlives the
// in-memory queue entry so that a crash between persist and dispatch leaves
// the operation recoverable.
type Operation struct {
	ID            string
	Kind          OperationKind
	SubjectID     string
	RetryCount    int
	CreatedAt     time.Time
	LastAttemptAt time.Time // zero until the first failed attempt
	LastError     string
}

// SyncConfig is the singleton row controlling the reconciliation sweeper.
type SyncConfig struct {
	SyncIntervalMinutes int
	LastModified        time.Time
}

// DefaultSyncIntervalMinutes is applied when the config row is created lazily.
const DefaultSyncIntervalMinutes = 30

// Creator is the author of an archived clip.
type Creator struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
}

// Clip is an archived short video. SubjectID is the stable platform id and
// the join key between the record store and the search index.
type Clip struct {
	SubjectID   string    `json:"subject_id"`
	Description string    `json:"description"`
	Creator     Creator   `json:"creator"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	AddedAt     time.Time `json:"added_at"`

	rowID int64 // autoincrement key, internal to this package
}
