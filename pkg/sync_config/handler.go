package sync_config

import (
	"errors"
	"net/http"
	"time"

	"github.com/campusflow/campusflow/internal/database"
	"github.com/campusflow/campusflow/internal/rest"
	"github.com/campusflow/campusflow/pkg/user"
	log "github.com/sirupsen/logrus"
)

type GoogleCalendarDTO struct {
	Connected   bool       `json:"connected"`
	CalendarId  string     `json:"calendarId,omitempty"`
	LastSync    *time.Time `json:"lastSync,omitempty"`
	SyncEnabled bool       `json:"syncEnabled"`
}

type AppleCalendarDTO struct {
	Connected    bool       `json:"connected"`
	ServerUrl    string     `json:"serverUrl,omitempty"`
	CalendarName string     `json:"calendarName,omitempty"`
	LastSync     *time.Time `json:"lastSync,omitempty"`
	SyncEnabled  bool       `json:"syncEnabled"`
}

type EventSourcesDTO struct {
	Assignments bool `json:"assignments"`
	Workouts    bool `json:"workouts"`
	Meals       bool `json:"meals"`
	Sleep       bool `json:"sleep"`
}

// SafeConfig is the only outward shape of a sync config. It has no credential fields.
type SafeConfig struct {
	GoogleCalendar GoogleCalendarDTO `json:"googleCalendar"`
	AppleCalendar  AppleCalendarDTO  `json:"appleCalendar"`
	EventSources   EventSourcesDTO   `json:"eventSources"`
	SyncFrequency  string            `json:"syncFrequency"`
}

type EventSourcesPatchDTO struct {
	Assignments *bool `json:"assignments"`
	Workouts    *bool `json:"workouts"`
	Meals       *bool `json:"meals"`
	Sleep       *bool `json:"sleep"`
}

type UpdateConfigRequest struct {
	EventSources  *EventSourcesPatchDTO `json:"eventSources"`
	SyncFrequency *string               `json:"syncFrequency"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service}
}

// GetConfig godoc
// @Summary Get the calendar sync configuration of the current user
// @Tags Sync
// @Produce json
// @Success 200 {object} SafeConfig
// @Failure 401 {object} rest.ErrorResponse "No authenticated user"
// @Router /sync/config [get]
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	cfg, err := h.service.GetSyncConfig(r.Context(), userId)
	if err != nil {
		WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, ToSafeConfig(cfg))
}

// UpdateConfig godoc
// @Summary Update event sources and sync frequency
// @Tags Sync
// @Accept json
// @Produce json
// @Param config body UpdateConfigRequest true "Fields to change"
// @Success 200 {object} SafeConfig
// @Failure 400 {object} rest.ErrorResponse "Unknown field or invalid frequency"
// @Failure 401 {object} rest.ErrorResponse "No authenticated user"
// @Router /sync/config [put]
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	var req UpdateConfigRequest
	if err := rest.DecodeStrict(r, &req); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", err.Error())
		return
	}

	cfg, err := h.service.UpdateSyncConfig(r.Context(), userId, req.toPatch())
	if err != nil {
		WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, ToSafeConfig(cfg))
}

func (req UpdateConfigRequest) toPatch() Patch {
	var patch Patch
	if req.EventSources != nil {
		patch.EventSources = &EventSourcesPatch{
			Assignments: req.EventSources.Assignments,
			Workouts:    req.EventSources.Workouts,
			Meals:       req.EventSources.Meals,
			Sleep:       req.EventSources.Sleep,
		}
	}
	if req.SyncFrequency != nil {
		f := SyncFrequency(*req.SyncFrequency)
		patch.SyncFrequency = &f
	}
	return patch
}

func ToSafeConfig(cfg CalendarSyncConfig) SafeConfig {
	return SafeConfig{
		GoogleCalendar: GoogleCalendarDTO{
			Connected:   cfg.GoogleCalendar.Connected,
			CalendarId:  cfg.GoogleCalendar.CalendarId,
			LastSync:    cfg.GoogleCalendar.LastSync,
			SyncEnabled: cfg.GoogleCalendar.SyncEnabled,
		},
		AppleCalendar: AppleCalendarDTO{
			Connected:    cfg.AppleCalendar.Connected,
			ServerUrl:    cfg.AppleCalendar.ServerUrl,
			CalendarName: cfg.AppleCalendar.CalendarName,
			LastSync:     cfg.AppleCalendar.LastSync,
			SyncEnabled:  cfg.AppleCalendar.SyncEnabled,
		},
		EventSources: EventSourcesDTO{
			Assignments: cfg.EventSources.Assignments,
			Workouts:    cfg.EventSources.Workouts,
			Meals:       cfg.EventSources.Meals,
			Sleep:       cfg.EventSources.Sleep,
		},
		SyncFrequency: string(cfg.SyncFrequency),
	}
}

func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, user.ErrNoUser):
		rest.WriteError(w, http.StatusUnauthorized, "Unauthorized", "")
	case errors.Is(err, ErrInvalidFrequency):
		rest.WriteError(w, http.StatusBadRequest, "Invalid sync config", err.Error())
	case errors.Is(err, database.ErrStoreUnavailable):
		log.Errorf("sync config store failure: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Store unavailable", "")
	default:
		log.Errorf("sync config request failed: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Internal server error", "")
	}
}
