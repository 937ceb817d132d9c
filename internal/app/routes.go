package app

import (
	"net/http"

	"github.com/campusflow/campusflow/internal/config"
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies, cfg config.Application) {

	// Events
	r.HandleFunc("/events", deps.CalendarHandler.GetEvents).Methods("GET")
	r.HandleFunc("/events", deps.EventHandler.CreateEvent).Methods("POST")
	r.HandleFunc("/events/{id}", deps.EventHandler.UpdateEvent).Methods("PUT")
	r.HandleFunc("/events/{id}", deps.EventHandler.DeleteEvent).Methods("DELETE")

	// Sync configuration
	r.HandleFunc("/sync/config", deps.SyncConfigHandler.GetConfig).Methods("GET")
	r.HandleFunc("/sync/config", deps.SyncConfigHandler.UpdateConfig).Methods("PUT")

	// Provider sync, bounded by the operation timeout
	syncRoutes := r.PathPrefix("/sync").Subrouter()
	syncRoutes.Use(operationTimeout(cfg.Sync.OperationTimeout))
	syncRoutes.HandleFunc("/google/connect", deps.SyncHandler.ConnectGoogle).Methods("POST")
	syncRoutes.HandleFunc("/google/calendars", deps.GoogleHandler.ListCalendars).Methods("GET")
	syncRoutes.HandleFunc("/apple/connect", deps.SyncHandler.ConnectApple).Methods("POST")
	syncRoutes.HandleFunc("/disconnect", deps.SyncHandler.Disconnect).Methods("POST")
	syncRoutes.HandleFunc("/push", deps.SyncHandler.Push).Methods("POST")
	syncRoutes.HandleFunc("/pull", deps.SyncHandler.Pull).Methods("POST")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")
}
