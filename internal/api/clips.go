package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/clipvault/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// ClipStore is the record store surface the handlers need.
type ClipStore interface {
	SaveClip(c storage.Clip) error
	GetClip(subjectID string) (storage.Clip, error)
	DeleteClip(subjectID string) error
	ListClips(limit, offset int, tag string) ([]storage.Clip, int, error)
	GetSyncConfig() (storage.SyncConfig, error)
	UpdateSyncConfig(intervalMinutes int) error
	ListDeadLetters(minRetries, limit int) ([]storage.Operation, error)
}

// Enqueuer is the operation queue's producer side.
type Enqueuer interface {
	Enqueue(kind storage.OperationKind, subjectID string)
	PendingCount() (int, error)
}

// Searcher serves ranked clip queries.
type Searcher interface {
	Search(ctx context.Context, query string, page, pageSize int, fields []string) ([]storage.Clip, int)
}

// AppDeps bundles the collaborators the HTTP layer is wired with.
type AppDeps struct {
	Store   ClipStore
	Queue   Enqueuer
	Search  Searcher
	Reindex Reindexer
	Token   string // admin bearer token; empty leaves admin routes open
}

// NewHandler builds the full clipvault router.
func NewHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Route("/api/clips", func(r chi.Router) {
		r.Get("/", handleListClips(deps))
		r.Post("/", handleSaveClip(deps))
		r.Get("/search", handleSearch(deps))
		r.Get("/{id}", handleGetClip(deps))
		r.Delete("/{id}", handleDeleteClip(deps))
	})

	r.Route("/api/admin", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Get("/config", handleGetConfig(deps))
		r.Post("/config", handleUpdateConfig(deps))
		r.Post("/reindex", handleStartReindex(deps))
		r.Get("/reindex/progress/{session}", handleReindexProgress(deps))
		r.Get("/queue/status", handleQueueStatus(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// SaveClipRequest is the body of POST /api/clips.
type SaveClipRequest struct {
	SubjectID   string    `json:"subject_id"`
	Description string    `json:"description"`
	Creator     creatorIn `json:"creator"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
}

type creatorIn struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
}

func handleSaveClip(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req SaveClipRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.SubjectID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "subject_id is required")
			return
		}
		if req.Creator.Handle == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "creator.handle is required")
			return
		}

		clip := storage.Clip{
			SubjectID:   req.SubjectID,
			Description: req.Description,
			Creator:     storage.Creator{Handle: req.Creator.Handle, DisplayName: req.Creator.DisplayName},
			Tags:        req.Tags,
			CreatedAt:   req.CreatedAt,
		}
		if err := deps.Store.SaveClip(clip); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save clip: %v", err)
			return
		}

		// Best-effort: the clip is saved even when the indexing operation
		// cannot be queued; the sweeper repairs the gap.
		deps.Queue.Enqueue(storage.KindIndex, req.SubjectID)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"subject_id": req.SubjectID,
			"status":     "queued",
		})
	}
}

func handleGetClip(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		clip, err := deps.Store.GetClip(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "clip not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get clip: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(clip)
	}
}

func handleDeleteClip(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteClip(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "clip not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete clip: %v", err)
			return
		}

		deps.Queue.Enqueue(storage.KindDelete, id)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

// ClipListResponse is one page of clips plus the pre-paging total.
type ClipListResponse struct {
	Clips      []storage.Clip `json:"clips"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
}

func handleListClips(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := parseIntParam(r, "page", 1, 0)
		pageSize := parseIntParam(r, "page_size", 20, 100)
		tag := r.URL.Query().Get("tag")
		if page < 1 {
			page = 1
		}

		clips, total, err := deps.Store.ListClips(pageSize, (page-1)*pageSize, tag)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list clips: %v", err)
			return
		}
		if clips == nil {
			clips = []storage.Clip{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ClipListResponse{
			Clips:      clips,
			TotalCount: total,
			Page:       page,
			PageSize:   pageSize,
		})
	}
}

func handleSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		page := parseIntParam(r, "page", 1, 0)
		pageSize := parseIntParam(r, "page_size", 20, 100)

		var fields []string
		if raw := r.URL.Query().Get("fields"); raw != "" {
			for _, f := range strings.Split(raw, ",") {
				if f = strings.TrimSpace(f); f != "" {
					fields = append(fields, f)
				}
			}
		}

		clips, total := deps.Search.Search(r.Context(), query, page, pageSize, fields)
		if clips == nil {
			clips = []storage.Clip{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ClipListResponse{
			Clips:      clips,
			TotalCount: total,
			Page:       page,
			PageSize:   pageSize,
		})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
