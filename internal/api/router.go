// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/room-calendar-sync/backend/internal/api/handlers"
	"github.com/room-calendar-sync/backend/internal/api/middleware"
	"github.com/room-calendar-sync/backend/internal/websocket"
)

// Services are the collaborators the router dispatches to. Sync, Scheduler
// and Hub are optional; their routes are not registered when nil.
type Services struct {
	Store     handlers.Pinger
	Exporter  handlers.Exporter
	Sync      handlers.SyncState
	Scheduler handlers.SyncTrigger
	Hub       *websocket.Hub
	Logger    *zap.Logger

	// ExportRatePerMin limits export requests per client. Zero disables it.
	ExportRatePerMin int
}

// NewRouter creates and configures the HTTP router with all routes.
func NewRouter(s Services) *mux.Router {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging(logger))
	r.Use(middleware.ErrorRecovery(logger))

	limiter := middleware.NewRateLimiter(s.ExportRatePerMin)
	export := limiter.Limit(handlers.ExportRoom(s.Exporter, logger))

	r.HandleFunc("/", handlers.Root).Methods("GET", "HEAD")
	r.HandleFunc("/ping", handlers.Ping).Methods("GET", "HEAD")
	r.Handle("/{room}.ics", export).Methods("GET", "HEAD")

	// API subrouter
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", handlers.HealthCheck(s.Store)).Methods("GET")
	api.Handle("/ical/room/{room}.ics", export).Methods("GET", "HEAD")

	if s.Scheduler != nil {
		api.HandleFunc("/sync", handlers.TriggerSync(s.Scheduler, logger)).Methods("POST")
	}
	if s.Sync != nil {
		api.HandleFunc("/sync/status", handlers.SyncStatus(s.Sync, s.Scheduler)).Methods("GET")
	}
	if s.Hub != nil {
		api.HandleFunc("/ws", handlers.WebSocketUpgrade(s.Hub, logger)).Methods("GET")
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Not found")
	})

	return r
}
