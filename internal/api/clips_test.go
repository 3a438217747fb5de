package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/clipvault/internal/index"
	"github.com/kalambet/clipvault/internal/indexsync"
	"github.com/kalambet/clipvault/internal/storage"
)

const testToken = "test-token-12345"

type fakeSearcher struct {
	clips []storage.Clip
	total int

	gotQuery  string
	gotPage   int
	gotSize   int
	gotFields []string
}

func (f *fakeSearcher) Search(ctx context.Context, query string, page, pageSize int, fields []string) ([]storage.Clip, int) {
	f.gotQuery = query
	f.gotPage = page
	f.gotSize = pageSize
	f.gotFields = fields
	return f.clips, f.total
}

func setupHandler(t *testing.T, token string) (http.Handler, *storage.Store, *fakeSearcher) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	idx, err := index.Open("")
	if err != nil {
		t.Fatalf("opening in-memory index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	queue := indexsync.NewQueue(store)
	t.Cleanup(queue.Close)

	searcher := &fakeSearcher{}
	handler := NewHandler(AppDeps{
		Store:   store,
		Queue:   queue,
		Search:  searcher,
		Reindex: indexsync.NewReindexer(store, idx),
		Token:   token,
	})
	return handler, store, searcher
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func doJSON(t *testing.T, handler http.Handler, req *http.Request, wantStatus int) map[string]any {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != wantStatus {
		t.Fatalf("%s %s = %d, want %d; body: %s", req.Method, req.URL, rec.Code, wantStatus, rec.Body)
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response: %v; body: %s", err, rec.Body)
	}
	return out
}

const saveBody = `{
	"subject_id": "v1",
	"description": "homemade carbonara",
	"creator": {"handle": "pastaqueen", "display_name": "Pasta Queen"},
	"tags": ["cooking", "pasta"],
	"created_at": "2026-03-01T12:00:00Z"
}`

func TestHealth(t *testing.T) {
	handler, _, _ := setupHandler(t, "")
	out := doJSON(t, handler, httptest.NewRequest("GET", "/health", nil), http.StatusOK)
	if out["status"] != "ok" {
		t.Errorf("status = %v, want ok", out["status"])
	}
}

func TestSaveClip_PersistsAndQueues(t *testing.T) {
	handler, store, _ := setupHandler(t, "")

	out := doJSON(t, handler, authReq("POST", "/api/clips", saveBody, ""), http.StatusCreated)
	if out["status"] != "queued" {
		t.Errorf("status = %v, want queued", out["status"])
	}

	clip, err := store.GetClip("v1")
	if err != nil {
		t.Fatalf("clip not persisted: %v", err)
	}
	if clip.Description != "homemade carbonara" {
		t.Errorf("Description = %q", clip.Description)
	}

	op, err := store.GetOperationBySubject("v1", storage.KindIndex)
	if err != nil {
		t.Fatalf("index operation not persisted: %v", err)
	}
	if op.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", op.RetryCount)
	}
}

func TestSaveClip_Validation(t *testing.T) {
	handler, _, _ := setupHandler(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"missing subject_id", `{"creator": {"handle": "x"}}`},
		{"missing creator handle", `{"subject_id": "v1"}`},
		{"malformed json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doJSON(t, handler, authReq("POST", "/api/clips", tt.body, ""), http.StatusBadRequest)
		})
	}
}

func TestGetClip(t *testing.T) {
	handler, _, _ := setupHandler(t, "")

	doJSON(t, handler, authReq("POST", "/api/clips", saveBody, ""), http.StatusCreated)

	out := doJSON(t, handler, httptest.NewRequest("GET", "/api/clips/v1", nil), http.StatusOK)
	if out["subject_id"] != "v1" {
		t.Errorf("subject_id = %v, want v1", out["subject_id"])
	}

	doJSON(t, handler, httptest.NewRequest("GET", "/api/clips/missing", nil), http.StatusNotFound)
}

func TestDeleteClip_QueuesDelete(t *testing.T) {
	handler, store, _ := setupHandler(t, "")

	doJSON(t, handler, authReq("POST", "/api/clips", saveBody, ""), http.StatusCreated)
	doJSON(t, handler, httptest.NewRequest("DELETE", "/api/clips/v1", nil), http.StatusOK)

	if _, err := store.GetClip("v1"); err != storage.ErrNotFound {
		t.Errorf("clip still present after delete: %v", err)
	}
	if _, err := store.GetOperationBySubject("v1", storage.KindDelete); err != nil {
		t.Errorf("delete operation not persisted: %v", err)
	}

	doJSON(t, handler, httptest.NewRequest("DELETE", "/api/clips/v1", nil), http.StatusNotFound)
}

func TestListClips(t *testing.T) {
	handler, store, _ := setupHandler(t, "")

	for _, id := range []string{"v1", "v2", "v3"} {
		clip := storage.Clip{
			SubjectID: id,
			Creator:   storage.Creator{Handle: "maker"},
			Tags:      []string{"cooking"},
			AddedAt:   time.Now().UTC(),
		}
		if err := store.SaveClip(clip); err != nil {
			t.Fatalf("SaveClip %s: %v", id, err)
		}
	}

	out := doJSON(t, handler, httptest.NewRequest("GET", "/api/clips?page_size=2", nil), http.StatusOK)
	if out["total_count"].(float64) != 3 {
		t.Errorf("total_count = %v, want 3", out["total_count"])
	}
	if clips := out["clips"].([]any); len(clips) != 2 {
		t.Errorf("got %d clips, want page of 2", len(clips))
	}

	out = doJSON(t, handler, httptest.NewRequest("GET", "/api/clips?tag=nope", nil), http.StatusOK)
	if out["total_count"].(float64) != 0 {
		t.Errorf("total_count for unknown tag = %v, want 0", out["total_count"])
	}
}

func TestSearch(t *testing.T) {
	handler, _, searcher := setupHandler(t, "")
	searcher.clips = []storage.Clip{{SubjectID: "v1"}}
	searcher.total = 41

	out := doJSON(t, handler,
		httptest.NewRequest("GET", "/api/clips/search?q=pasta&page=2&page_size=5&fields=tags,creator", nil),
		http.StatusOK)

	if out["total_count"].(float64) != 41 {
		t.Errorf("total_count = %v, want 41", out["total_count"])
	}
	if searcher.gotQuery != "pasta" {
		t.Errorf("query = %q, want pasta", searcher.gotQuery)
	}
	if searcher.gotPage != 2 || searcher.gotSize != 5 {
		t.Errorf("page/size = %d/%d, want 2/5", searcher.gotPage, searcher.gotSize)
	}
	if len(searcher.gotFields) != 2 || searcher.gotFields[0] != "tags" {
		t.Errorf("fields = %v, want [tags creator]", searcher.gotFields)
	}
}

func TestSearch_RequiresQuery(t *testing.T) {
	handler, _, _ := setupHandler(t, "")
	doJSON(t, handler, httptest.NewRequest("GET", "/api/clips/search", nil), http.StatusBadRequest)
}
