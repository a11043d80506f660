package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/room-calendar-sync/backend/internal/api/middleware"
	"github.com/room-calendar-sync/backend/internal/calendar"
	"github.com/room-calendar-sync/backend/internal/storage/models"
)

// SyncTrigger starts passes on demand.
type SyncTrigger interface {
	TriggerSync() error
	NextRun() *time.Time
}

// SyncState exposes the progress of the sync service.
type SyncState interface {
	Running() bool
	LastResult() (models.SyncResult, bool)
}

// SyncStatusResponse describes the sync service.
type SyncStatusResponse struct {
	Running    bool               `json:"running"`
	NextSyncAt *time.Time         `json:"next_sync_at,omitempty"`
	LastResult *models.SyncResult `json:"last_result,omitempty"`
}

// TriggerSync starts a sync pass in the background.
func TriggerSync(trigger SyncTrigger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := trigger.TriggerSync(); err != nil {
			if errors.Is(err, calendar.ErrSyncInProgress) {
				middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "A sync is already in progress")
				return
			}
			logger.Error("manual sync failed to start", zap.Error(err))
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to start sync")
			return
		}

		logger.Info("manual sync started")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "syncing"})
	}
}

// SyncStatus reports whether a pass is running and how the last one went.
func SyncStatus(state SyncState, trigger SyncTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := SyncStatusResponse{Running: state.Running()}
		if trigger != nil {
			resp.NextSyncAt = trigger.NextRun()
		}
		if last, ok := state.LastResult(); ok {
			resp.LastResult = &last
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
