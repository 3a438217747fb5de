package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/clipvault/internal/indexsync"
	"github.com/kalambet/clipvault/internal/storage"
)

// deadLetterLimit caps the dead-letter report in the queue status response.
const deadLetterLimit = 10

// Reindexer runs bulk reindex sessions.
type Reindexer interface {
	Start(ctx context.Context) (string, error)
	Progress(session string) (indexsync.ReindexProgress, bool)
}

func handleGetConfig(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := deps.Store.GetSyncConfig()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get sync config: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"sync_interval_minutes": cfg.SyncIntervalMinutes,
			"last_modified":         cfg.LastModified,
		})
	}
}

func handleUpdateConfig(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			SyncIntervalMinutes int `json:"sync_interval_minutes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.SyncIntervalMinutes <= 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "sync_interval_minutes must be positive")
			return
		}

		if err := deps.Store.UpdateSyncConfig(req.SyncIntervalMinutes); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update sync config: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "updated"})
	}
}

func handleStartReindex(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := deps.Reindex.Start(context.WithoutCancel(r.Context()))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to start reindex: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"session_id": session})
	}
}

func handleReindexProgress(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := chi.URLParam(r, "session")

		p, ok := deps.Reindex.Progress(session)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "unknown reindex session")
			return
		}

		resp := map[string]any{
			"is_running":      p.Running,
			"processed_count": p.Processed,
			"total_count":     p.Total,
			"percentage":      p.Percentage(),
			"started_at":      p.StartedAt,
		}
		if !p.CompletedAt.IsZero() {
			resp["completed_at"] = p.CompletedAt
		}
		if p.Error != "" {
			resp["error_message"] = p.Error
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// deadLetterOut is one dead-lettered operation in the queue status report.
type deadLetterOut struct {
	SubjectID     string    `json:"subject_id"`
	Kind          string    `json:"kind"`
	RetryCount    int       `json:"retry_count"`
	LastError     string    `json:"last_error"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
}

func handleQueueStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := deps.Queue.PendingCount()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count pending operations: %v", err)
			return
		}

		dead, err := deps.Store.ListDeadLetters(storage.MaxRetries, deadLetterLimit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list dead letters: %v", err)
			return
		}

		out := make([]deadLetterOut, 0, len(dead))
		for _, op := range dead {
			out = append(out, deadLetterOut{
				SubjectID:     op.SubjectID,
				Kind:          string(op.Kind),
				RetryCount:    op.RetryCount,
				LastError:     op.LastError,
				LastAttemptAt: op.LastAttemptAt,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"pending_count": pending,
			"dead_letters":  out,
		})
	}
}
