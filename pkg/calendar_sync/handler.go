package calendar_sync

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/campusflow/campusflow/internal/database"
	"github.com/campusflow/campusflow/internal/rest"
	"github.com/campusflow/campusflow/pkg/connector"
	"github.com/campusflow/campusflow/pkg/event"
	"github.com/campusflow/campusflow/pkg/user"
	log "github.com/sirupsen/logrus"
)

type GoogleConnectRequest struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	Expiry       *time.Time `json:"expiry,omitempty"`
	CalendarId   string     `json:"calendarId,omitempty"`
}

type AppleConnectRequest struct {
	ServerUrl    string `json:"serverUrl"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	CalendarName string `json:"calendarName,omitempty"`
}

type ServiceRequest struct {
	Service string `json:"service"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type EventErrorDTO struct {
	EventId string `json:"eventId"`
	Error   string `json:"error"`
}

type PushResponse struct {
	Success      bool            `json:"success"`
	SyncedCount  int             `json:"syncedCount"`
	FailedCount  int             `json:"failedCount"`
	PendingCount int             `json:"pendingCount"`
	Errors       []EventErrorDTO `json:"errors,omitempty"`
}

type PullResponse struct {
	Success      bool             `json:"success"`
	PulledCount  int              `json:"pulledCount"`
	CreatedCount int              `json:"createdCount"`
	UpdatedCount int              `json:"updatedCount"`
	SkippedCount int              `json:"skippedCount"`
	Errors       []EventErrorDTO  `json:"errors,omitempty"`
	Events       []event.EventDTO `json:"events"`
}

type Handler struct {
	orchestrator *Orchestrator
}

func NewHandler(orchestrator *Orchestrator) *Handler {
	return &Handler{orchestrator}
}

// ConnectGoogle godoc
// @Summary Store the Google token pair of the current user
// @Tags Sync
// @Accept json
// @Produce json
// @Param credentials body GoogleConnectRequest true "Google OAuth tokens"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} rest.ErrorResponse "Missing token"
// @Router /sync/google/connect [post]
func (h *Handler) ConnectGoogle(w http.ResponseWriter, r *http.Request) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	var req GoogleConnectRequest
	if err := rest.DecodeStrict(r, &req); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", err.Error())
		return
	}
	creds := connector.Credentials{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		CalendarId:   req.CalendarId,
	}
	if req.Expiry != nil {
		creds.Expiry = *req.Expiry
	}
	if err := h.orchestrator.Connect(r.Context(), userId, connector.Google, creds); err != nil {
		WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// ConnectApple godoc
// @Summary Store the CalDAV credentials of the current user
// @Tags Sync
// @Accept json
// @Produce json
// @Param credentials body AppleConnectRequest true "CalDAV server and app-specific password"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} rest.ErrorResponse "Missing field"
// @Router /sync/apple/connect [post]
func (h *Handler) ConnectApple(w http.ResponseWriter, r *http.Request) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	var req AppleConnectRequest
	if err := rest.DecodeStrict(r, &req); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", err.Error())
		return
	}
	creds := connector.Credentials{
		ServerUrl:    req.ServerUrl,
		Username:     req.Username,
		Password:     req.Password,
		CalendarName: req.CalendarName,
	}
	if err := h.orchestrator.Connect(r.Context(), userId, connector.Apple, creds); err != nil {
		WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// Disconnect godoc
// @Summary Disconnect a calendar provider
// @Tags Sync
// @Accept json
// @Produce json
// @Param service body ServiceRequest true "google or apple"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} rest.ErrorResponse "Invalid service"
// @Router /sync/disconnect [post]
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userId, provider, ok := h.serviceRequest(w, r)
	if !ok {
		return
	}
	if err := h.orchestrator.Disconnect(r.Context(), userId, provider); err != nil {
		WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// Push godoc
// @Summary Push manual events to a calendar provider
// @Tags Sync
// @Accept json
// @Produce json
// @Param service body ServiceRequest true "google or apple"
// @Success 200 {object} PushResponse
// @Failure 400 {object} rest.ErrorResponse "Invalid or disconnected service"
// @Failure 500 {object} rest.ErrorResponse "Provider failure"
// @Router /sync/push [post]
func (h *Handler) Push(w http.ResponseWriter, r *http.Request) {
	userId, provider, ok := h.serviceRequest(w, r)
	if !ok {
		return
	}
	result, err := h.orchestrator.PushEvents(r.Context(), userId, provider)
	if err != nil {
		WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, PushResponse{
		Success:      true,
		SyncedCount:  result.Synced,
		FailedCount:  result.Failed,
		PendingCount: result.Pending,
		Errors:       errorDTOs(result.Errors),
	})
}

// Pull godoc
// @Summary Import events from a calendar provider
// @Tags Sync
// @Accept json
// @Produce json
// @Param service body ServiceRequest true "google or apple"
// @Success 200 {object} PullResponse
// @Failure 400 {object} rest.ErrorResponse "Invalid or disconnected service"
// @Failure 500 {object} rest.ErrorResponse "Provider failure"
// @Router /sync/pull [post]
func (h *Handler) Pull(w http.ResponseWriter, r *http.Request) {
	userId, provider, ok := h.serviceRequest(w, r)
	if !ok {
		return
	}
	result, err := h.orchestrator.PullEvents(r.Context(), userId, provider)
	if err != nil {
		WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, PullResponse{
		Success:      true,
		PulledCount:  result.Pulled(),
		CreatedCount: result.Created,
		UpdatedCount: result.Updated,
		SkippedCount: result.Skipped,
		Errors:       errorDTOs(result.Errors),
		Events:       event.ToDTOs(result.Events),
	})
}

func (h *Handler) serviceRequest(w http.ResponseWriter, r *http.Request) (string, connector.Provider, bool) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		WriteError(w, err)
		return "", "", false
	}
	var req ServiceRequest
	if err := rest.DecodeStrict(r, &req); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", err.Error())
		return "", "", false
	}
	provider, err := connector.ParseProvider(req.Service)
	if err != nil {
		WriteError(w, err)
		return "", "", false
	}
	return userId, provider, true
}

func errorDTOs(errs []connector.EventError) []EventErrorDTO {
	if len(errs) == 0 {
		return nil
	}
	dtos := make([]EventErrorDTO, 0, len(errs))
	for _, e := range errs {
		dtos = append(dtos, EventErrorDTO{EventId: e.EventId, Error: e.Err.Error()})
	}
	return dtos
}

func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, user.ErrNoUser):
		rest.WriteError(w, http.StatusUnauthorized, "Unauthorized", "")
	case errors.Is(err, connector.ErrInvalidProvider):
		rest.WriteError(w, http.StatusBadRequest, "Invalid service", err.Error())
	case errors.Is(err, connector.ErrMissingCredentials):
		rest.WriteError(w, http.StatusBadRequest, "Missing credentials", err.Error())
	case errors.Is(err, connector.ErrNotConnected):
		rest.WriteError(w, http.StatusBadRequest, "Calendar is not connected", err.Error())
	case errors.Is(err, connector.ErrExternalService):
		log.Errorf("calendar provider failure: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "External calendar service failure", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		rest.WriteError(w, http.StatusGatewayTimeout, "Sync timed out", err.Error())
	case errors.Is(err, database.ErrStoreUnavailable):
		log.Errorf("sync store failure: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Store unavailable", "")
	default:
		log.Errorf("sync request failed: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Internal server error", "")
	}
}
