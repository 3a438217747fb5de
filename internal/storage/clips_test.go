package storage

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeClip(subjectID string, addedAt time.Time) Clip {
	return Clip{
		SubjectID:   subjectID,
		Description: "description for " + subjectID,
		Creator:     Creator{Handle: "maker", DisplayName: "The Maker"},
		Tags:        []string{"cooking", "pasta"},
		CreatedAt:   addedAt.Add(-24 * time.Hour),
		AddedAt:     addedAt,
	}
}

func TestSaveAndGetClip(t *testing.T) {
	s := openTestStore(t)

	added := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	in := makeClip("v100", added)
	if err := s.SaveClip(in); err != nil {
		t.Fatalf("SaveClip: %v", err)
	}

	got, err := s.GetClip("v100")
	if err != nil {
		t.Fatalf("GetClip: %v", err)
	}
	if got.SubjectID != "v100" {
		t.Errorf("SubjectID = %q, want %q", got.SubjectID, "v100")
	}
	if got.Description != in.Description {
		t.Errorf("Description = %q, want %q", got.Description, in.Description)
	}
	if got.Creator != in.Creator {
		t.Errorf("Creator = %+v, want %+v", got.Creator, in.Creator)
	}
	if !reflect.DeepEqual(got.Tags, []string{"cooking", "pasta"}) {
		t.Errorf("Tags = %v, want [cooking pasta]", got.Tags)
	}
	if !got.AddedAt.Equal(added) {
		t.Errorf("AddedAt = %v, want %v", got.AddedAt, added)
	}
}

func TestGetClip_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetClip("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetClip error = %v, want ErrNotFound", err)
	}
}

func TestSaveClip_UpsertReplacesTagsKeepsAddedAt(t *testing.T) {
	s := openTestStore(t)

	added := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.SaveClip(makeClip("v1", added)); err != nil {
		t.Fatalf("SaveClip: %v", err)
	}

	updated := makeClip("v1", added.Add(48*time.Hour))
	updated.Description = "updated description"
	updated.Tags = []string{"travel"}
	if err := s.SaveClip(updated); err != nil {
		t.Fatalf("SaveClip (update): %v", err)
	}

	got, err := s.GetClip("v1")
	if err != nil {
		t.Fatalf("GetClip: %v", err)
	}
	if got.Description != "updated description" {
		t.Errorf("Description = %q, want %q", got.Description, "updated description")
	}
	if !reflect.DeepEqual(got.Tags, []string{"travel"}) {
		t.Errorf("Tags = %v, want [travel]", got.Tags)
	}
	// The first save wins for added_at.
	if !got.AddedAt.Equal(added) {
		t.Errorf("AddedAt = %v, want original %v", got.AddedAt, added)
	}

	n, err := s.CountClips()
	if err != nil {
		t.Fatalf("CountClips: %v", err)
	}
	if n != 1 {
		t.Errorf("CountClips = %d, want 1", n)
	}
}

func TestDeleteClip(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveClip(makeClip("v1", time.Now().UTC())); err != nil {
		t.Fatalf("SaveClip: %v", err)
	}
	if err := s.DeleteClip("v1"); err != nil {
		t.Fatalf("DeleteClip: %v", err)
	}
	if _, err := s.GetClip("v1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetClip after delete = %v, want ErrNotFound", err)
	}
	if err := s.DeleteClip("v1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteClip (missing) = %v, want ErrNotFound", err)
	}
}

func TestGetClipsBySubjectIDs(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		c := makeClip(fmt.Sprintf("v%d", i), base.Add(time.Duration(i)*time.Hour))
		if err := s.SaveClip(c); err != nil {
			t.Fatalf("SaveClip v%d: %v", i, err)
		}
	}

	clips, err := s.GetClipsBySubjectIDs([]string{"v3", "v0", "missing"})
	if err != nil {
		t.Fatalf("GetClipsBySubjectIDs: %v", err)
	}
	if len(clips) != 2 {
		t.Fatalf("got %d clips, want 2", len(clips))
	}
	seen := map[string]bool{}
	for _, c := range clips {
		seen[c.SubjectID] = true
		if len(c.Tags) == 0 {
			t.Errorf("clip %s returned without tags", c.SubjectID)
		}
	}
	if !seen["v3"] || !seen["v0"] {
		t.Errorf("got clips %v, want v0 and v3", seen)
	}

	empty, err := s.GetClipsBySubjectIDs(nil)
	if err != nil {
		t.Fatalf("GetClipsBySubjectIDs(nil): %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("got %d clips for empty input, want 0", len(empty))
	}
}

func TestListClips_TagFilterAndOrder(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		c := makeClip(fmt.Sprintf("v%d", i), base.Add(time.Duration(i)*time.Hour))
		if i == 1 {
			c.Tags = []string{"travel"}
		}
		if err := s.SaveClip(c); err != nil {
			t.Fatalf("SaveClip v%d: %v", i, err)
		}
	}

	clips, total, err := s.ListClips(10, 0, "")
	if err != nil {
		t.Fatalf("ListClips: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	// Newest added first.
	wantOrder := []string{"v2", "v1", "v0"}
	for i, c := range clips {
		if c.SubjectID != wantOrder[i] {
			t.Errorf("clips[%d] = %s, want %s", i, c.SubjectID, wantOrder[i])
		}
	}

	tagged, total, err := s.ListClips(10, 0, "travel")
	if err != nil {
		t.Fatalf("ListClips(travel): %v", err)
	}
	if total != 1 || len(tagged) != 1 || tagged[0].SubjectID != "v1" {
		t.Errorf("ListClips(travel) = %d clips total %d, want just v1", len(tagged), total)
	}
}

func TestListClipsPage_StableOrder(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		if err := s.SaveClip(makeClip(fmt.Sprintf("v%d", i), now)); err != nil {
			t.Fatalf("SaveClip v%d: %v", i, err)
		}
	}

	first, err := s.ListClipsPage(2, 0)
	if err != nil {
		t.Fatalf("ListClipsPage: %v", err)
	}
	second, err := s.ListClipsPage(2, 2)
	if err != nil {
		t.Fatalf("ListClipsPage (offset): %v", err)
	}
	got := []string{}
	for _, c := range append(first, second...) {
		got = append(got, c.SubjectID)
	}
	want := []string{"v0", "v1", "v2", "v3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("paged ids = %v, want %v", got, want)
	}
}

func TestListClipSubjectIDs(t *testing.T) {
	s := openTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := s.SaveClip(makeClip(id, time.Now().UTC())); err != nil {
			t.Fatalf("SaveClip %s: %v", id, err)
		}
	}

	ids, err := s.ListClipSubjectIDs()
	if err != nil {
		t.Fatalf("ListClipSubjectIDs: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("got %d ids, want 3", len(ids))
	}
}
