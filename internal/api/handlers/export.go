package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/room-calendar-sync/backend/internal/api/middleware"
)

// Exporter renders a room's bookings as calendar text.
type Exporter interface {
	Export(ctx context.Context, roomID int) (string, error)
}

// ExportRoom serves the occupancy calendar of the room named in the path.
func ExportRoom(exporter Exporter, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := mux.Vars(r)["room"]
		roomID, err := strconv.Atoi(raw)
		if err != nil || roomID < 1 {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Room must be a positive number")
			return
		}

		body, err := exporter.Export(r.Context(), roomID)
		if err != nil {
			logger.Error("export failed", zap.Int("room_id", roomID), zap.Error(err))
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to render calendar")
			return
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="room-%d.ics"`, roomID))
		w.Write([]byte(body))
	}
}
