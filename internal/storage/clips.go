package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SaveClip inserts or fully replaces a clip, upserting its creator and tag
// rows. The tag set of an existing clip is replaced, not merged.
func (s *Store) SaveClip(c Clip) error {
	if c.AddedAt.IsZero() {
		c.AddedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning save transaction: %w", err)
	}
	defer tx.Rollback()

	var creatorID int64
	err = tx.QueryRow(`
		INSERT INTO creators (handle, display_name) VALUES (?, ?)
		ON CONFLICT(handle) DO UPDATE SET display_name = excluded.display_name
		RETURNING id`,
		c.Creator.Handle, c.Creator.DisplayName,
	).Scan(&creatorID)
	if err != nil {
		return fmt.Errorf("upserting creator %q: %w", c.Creator.Handle, err)
	}

	var clipID int64
	err = tx.QueryRow(`
		INSERT INTO clips (subject_id, description, creator_id, created_at, added_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(subject_id) DO UPDATE SET
			description = excluded.description,
			creator_id = excluded.creator_id,
			created_at = excluded.created_at
		RETURNING id`,
		c.SubjectID, c.Description, creatorID,
		c.CreatedAt.UTC().Format(time.RFC3339), c.AddedAt.UTC().Format(time.RFC3339),
	).Scan(&clipID)
	if err != nil {
		return fmt.Errorf("upserting clip %s: %w", c.SubjectID, err)
	}

	if _, err := tx.Exec(`DELETE FROM clip_tags WHERE clip_id = ?`, clipID); err != nil {
		return fmt.Errorf("clearing tags for clip %s: %w", c.SubjectID, err)
	}
	for _, tag := range c.Tags {
		var tagID int64
		err = tx.QueryRow(`
			INSERT INTO tags (name) VALUES (?)
			ON CONFLICT(name) DO UPDATE SET name = excluded.name
			RETURNING id`, tag,
		).Scan(&tagID)
		if err != nil {
			return fmt.Errorf("upserting tag %q: %w", tag, err)
		}
		if _, err := tx.Exec(`INSERT INTO clip_tags (clip_id, tag_id) VALUES (?, ?)`, clipID, tagID); err != nil {
			return fmt.Errorf("linking tag %q to clip %s: %w", tag, c.SubjectID, err)
		}
	}

	return tx.Commit()
}

const clipColumns = `c.id, c.subject_id, c.description, cr.handle, cr.display_name, c.created_at, c.added_at`

const clipSelect = `SELECT ` + clipColumns + `
	FROM clips c JOIN creators cr ON cr.id = c.creator_id`

func scanClip(row interface{ Scan(...any) error }) (Clip, error) {
	var c Clip
	var createdAt, addedAt string
	err := row.Scan(&c.rowID, &c.SubjectID, &c.Description, &c.Creator.Handle, &c.Creator.DisplayName, &createdAt, &addedAt)
	if err != nil {
		return Clip{}, err
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Clip{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.AddedAt, err = time.Parse(time.RFC3339, addedAt); err != nil {
		return Clip{}, fmt.Errorf("parsing added_at: %w", err)
	}
	return c, nil
}

// GetClip returns a clip with its creator and tags by subject id.
func (s *Store) GetClip(subjectID string) (Clip, error) {
	c, err := scanClip(s.db.QueryRow(clipSelect+` WHERE c.subject_id = ?`, subjectID))
	if err == sql.ErrNoRows {
		return Clip{}, ErrNotFound
	}
	if err != nil {
		return Clip{}, err
	}
	if err := s.attachTags(map[int64]*Clip{c.rowID: &c}); err != nil {
		return Clip{}, err
	}
	return c, nil
}

// GetClipsBySubjectIDs returns all clips whose subject id appears in ids, in
// a single batch. Missing ids are skipped; callers own the output ordering.
func (s *Store) GetClipsBySubjectIDs(ids []string) ([]Clip, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat(",?", len(ids)-1)
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.Query(clipSelect+` WHERE c.subject_id IN (?`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clips, err := collectClips(rows)
	if err != nil {
		return nil, err
	}
	return clips, s.attachTagsSlice(clips)
}

// DeleteClip removes a clip and its tag links by subject id.
func (s *Store) DeleteClip(subjectID string) error {
	res, err := s.db.Exec(`DELETE FROM clips WHERE subject_id = ?`, subjectID)
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

// ListClipSubjectIDs returns the subject ids of every stored clip. Used by
// the reconciliation sweep; the full id set is cheap to hold in memory at
// catalog scale.
func (s *Store) ListClipSubjectIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT subject_id FROM clips`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListClips returns one page of clips ordered by added_at descending, with
// the total count before paging. When tag is non-empty only clips carrying
// that tag are returned.
func (s *Store) ListClips(limit, offset int, tag string) ([]Clip, int, error) {
	where := ""
	var args []any
	if tag != "" {
		where = ` WHERE c.id IN (
			SELECT ct.clip_id FROM clip_tags ct JOIN tags t ON t.id = ct.tag_id WHERE t.name = ?)`
		args = append(args, tag)
	}

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM clips c`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(clipSelect+where+` ORDER BY c.added_at DESC, c.id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	clips, err := collectClips(rows)
	if err != nil {
		return nil, 0, err
	}
	return clips, total, s.attachTagsSlice(clips)
}

// ListClipsPage returns clips in stable insertion order for batch scans
// (bulk reindex). Ordering by rowid keeps pages disjoint while rows are
// inserted concurrently at the tail.
func (s *Store) ListClipsPage(limit, offset int) ([]Clip, error) {
	rows, err := s.db.Query(clipSelect+` ORDER BY c.id ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clips, err := collectClips(rows)
	if err != nil {
		return nil, err
	}
	return clips, s.attachTagsSlice(clips)
}

// CountClips returns the number of stored clips.
func (s *Store) CountClips() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM clips`).Scan(&n)
	return n, err
}

func collectClips(rows *sql.Rows) ([]Clip, error) {
	var clips []Clip
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		clips = append(clips, c)
	}
	return clips, rows.Err()
}

func (s *Store) attachTagsSlice(clips []Clip) error {
	if len(clips) == 0 {
		return nil
	}
	byRow := make(map[int64]*Clip, len(clips))
	for i := range clips {
		byRow[clips[i].rowID] = &clips[i]
	}
	return s.attachTags(byRow)
}

func (s *Store) attachTags(byRow map[int64]*Clip) error {
	args := make([]any, 0, len(byRow))
	for rowID := range byRow {
		args = append(args, rowID)
	}
	placeholders := strings.Repeat(",?", len(args)-1)

	rows, err := s.db.Query(`
		SELECT ct.clip_id, t.name
		FROM clip_tags ct JOIN tags t ON t.id = ct.tag_id
		WHERE ct.clip_id IN (?`+placeholders+`)
		ORDER BY t.name ASC`, args...)
	if err != nil {
		return fmt.Errorf("loading tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var clipID int64
		var name string
		if err := rows.Scan(&clipID, &name); err != nil {
			return err
		}
		if c, ok := byRow[clipID]; ok {
			c.Tags = append(c.Tags, name)
		}
	}
	return rows.Err()
}
