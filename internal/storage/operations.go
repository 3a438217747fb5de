package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// InsertOperation persists a new index operation row. CreatedAt defaults to
// the current time when zero.
func (s *Store) InsertOperation(op Operation) error {
	createdAt := op.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO index_operations (id, kind, subject_id, retry_count, created_at)
		VALUES (?, ?, ?, 0, ?)`,
		op.ID, string(op.Kind), op.SubjectID, createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetOperationBySubject returns the oldest live operation for a
// (subject id, kind) pair. Duplicate enqueues can leave more than one row;
// the dispatcher applies against the oldest and later duplicates become
// no-ops once it is deleted.
func (s *Store) GetOperationBySubject(subjectID string, kind OperationKind) (Operation, error) {
	row := s.db.QueryRow(`
		SELECT id, kind, subject_id, retry_count, created_at, last_attempt_at, last_error
		FROM index_operations
		WHERE subject_id = ? AND kind = ?
		ORDER BY created_at ASC LIMIT 1`,
		subjectID, string(kind),
	)
	op, err := scanOperation(row)
	if err == sql.ErrNoRows {
		return Operation{}, ErrNotFound
	}
	return op, err
}

// DeleteOperation removes an operation row after successful application.
func (s *Store) DeleteOperation(id string) error {
	res, err := s.db.Exec(`DELETE FROM index_operations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkOperationFailed increments the retry count and records the attempt
// time and error text. It returns the new retry count so the caller can
// decide between backoff-and-retry and dead-lettering.
func (s *Store) MarkOperationFailed(id, errMsg string) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var retries int
	err = tx.QueryRow(`SELECT retry_count FROM index_operations WHERE id = ?`, id).Scan(&retries)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	retries++
	if _, err := tx.Exec(`
		UPDATE index_operations SET retry_count = ?, last_attempt_at = ?, last_error = ? WHERE id = ?`,
		retries, now, errMsg, id,
	); err != nil {
		return 0, err
	}

	return retries, tx.Commit()
}

// ListPendingOperations returns operations still under the retry cap,
// oldest first, bounded by limit. Used by the startup requeue pass.
func (s *Store) ListPendingOperations(maxRetries, limit int) ([]Operation, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, subject_id, retry_count, created_at, last_attempt_at, last_error
		FROM index_operations
		WHERE retry_count < ?
		ORDER BY created_at ASC LIMIT ?`,
		maxRetries, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOperations(rows)
}

// ListDeadLetters returns operations at or above the retry cap, most recent
// attempt first, bounded by limit.
func (s *Store) ListDeadLetters(minRetries, limit int) ([]Operation, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, subject_id, retry_count, created_at, last_attempt_at, last_error
		FROM index_operations
		WHERE retry_count >= ?
		ORDER BY last_attempt_at DESC LIMIT ?`,
		minRetries, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOperations(rows)
}

// CountOperations returns the number of operation rows, dead letters included.
func (s *Store) CountOperations() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM index_operations`).Scan(&n)
	return n, err
}

func scanOperation(row interface{ Scan(...any) error }) (Operation, error) {
	var op Operation
	var kind, createdAt string
	var lastAttempt, lastError sql.NullString
	err := row.Scan(&op.ID, &kind, &op.SubjectID, &op.RetryCount, &createdAt, &lastAttempt, &lastError)
	if err != nil {
		return Operation{}, err
	}
	op.Kind = OperationKind(kind)
	if op.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Operation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if lastAttempt.Valid {
		if op.LastAttemptAt, err = time.Parse(time.RFC3339, lastAttempt.String); err != nil {
			return Operation{}, fmt.Errorf("parsing last_attempt_at: %w", err)
		}
	}
	op.LastError = lastError.String
	return op, nil
}

func collectOperations(rows *sql.Rows) ([]Operation, error) {
	var ops []Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
