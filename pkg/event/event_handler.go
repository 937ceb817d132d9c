package event

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/campusflow/campusflow/internal/database"
	"github.com/campusflow/campusflow/internal/rest"
	"github.com/campusflow/campusflow/pkg/user"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type SyncLinkDTO struct {
	Provider   string     `json:"provider"`
	ExternalId string     `json:"externalId,omitempty"`
	SyncStatus string     `json:"syncStatus"`
	LastError  string     `json:"lastError,omitempty"`
	SyncedAt   *time.Time `json:"syncedAt,omitempty"`
}

type EventDTO struct {
	Id          string        `json:"id"`
	UserId      string        `json:"userId"`
	Title       string        `json:"title"`
	Date        string        `json:"date"`
	Time        string        `json:"time,omitempty"`
	Category    string        `json:"category"`
	Description string        `json:"description"`
	Source      string        `json:"source"`
	SourceId    string        `json:"sourceId,omitempty"`
	ExternalId  string        `json:"externalId,omitempty"`
	SyncStatus  string        `json:"syncStatus,omitempty"`
	SyncLinks   []SyncLinkDTO `json:"syncLinks,omitempty"`
	CreatedAt   *time.Time    `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time    `json:"updatedAt,omitempty"`
}

type CreateEventRequest struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Time        string `json:"time,omitempty"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}

// UpdateEventRequest holds the fields to change. An empty time removes the clock time.
type UpdateEventRequest struct {
	Title       *string `json:"title"`
	Date        *string `json:"date"`
	Time        *string `json:"time"`
	Category    *string `json:"category"`
	Description *string `json:"description"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service}
}

// CreateEvent godoc
// @Summary Create a manual calendar event
// @Tags Events
// @Accept json
// @Produce json
// @Param event body CreateEventRequest true "Event to create"
// @Success 201 {object} EventDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid request"
// @Failure 401 {object} rest.ErrorResponse "No authenticated user"
// @Router /events [post]
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", err.Error())
		return
	}

	input, err := req.toInput()
	if err != nil {
		WriteError(w, err)
		return
	}

	created, err := h.service.CreateEvent(r.Context(), input)
	if err != nil {
		WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, ToDTO(created))
}

// UpdateEvent godoc
// @Summary Update a manual calendar event
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event id"
// @Param event body UpdateEventRequest true "Fields to change"
// @Success 200 {object} EventDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid request or not a manual event"
// @Failure 403 {object} rest.ErrorResponse "Event owned by another user"
// @Failure 404 {object} rest.ErrorResponse "Event not found"
// @Router /events/{id} [put]
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req UpdateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", err.Error())
		return
	}

	input, err := req.toInput()
	if err != nil {
		WriteError(w, err)
		return
	}

	updated, err := h.service.UpdateEvent(r.Context(), id, input)
	if err != nil {
		WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, ToDTO(updated))
}

// DeleteEvent godoc
// @Summary Delete a manual calendar event
// @Tags Events
// @Param id path string true "Event id"
// @Success 204
// @Failure 400 {object} rest.ErrorResponse "Not a manual event"
// @Failure 403 {object} rest.ErrorResponse "Event owned by another user"
// @Failure 404 {object} rest.ErrorResponse "Event not found"
// @Router /events/{id} [delete]
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.service.DeleteEvent(r.Context(), id); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (req CreateEventRequest) toInput() (CreateEventInput, error) {
	date, err := ParseDate(req.Date)
	if err != nil {
		return CreateEventInput{}, err
	}
	input := CreateEventInput{
		Title:       req.Title,
		Date:        date,
		Category:    Category(req.Category),
		Description: req.Description,
	}
	if req.Time != "" {
		t, err := ParseTime(req.Time)
		if err != nil {
			return CreateEventInput{}, err
		}
		input.Time = &t
	}
	return input, nil
}

func (req UpdateEventRequest) toInput() (UpdateEventInput, error) {
	input := UpdateEventInput{
		Title:       req.Title,
		Description: req.Description,
	}
	if req.Category != nil {
		c := Category(*req.Category)
		input.Category = &c
	}
	if req.Date != nil {
		d, err := ParseDate(*req.Date)
		if err != nil {
			return UpdateEventInput{}, err
		}
		input.Date = &d
	}
	if req.Time != nil {
		if *req.Time == "" {
			input.ClearTime = true
		} else {
			t, err := ParseTime(*req.Time)
			if err != nil {
				return UpdateEventInput{}, err
			}
			input.Time = &t
		}
	}
	return input, nil
}

func ToDTO(e Event) EventDTO {
	dto := EventDTO{
		Id:          e.Id,
		UserId:      e.UserId,
		Title:       e.Title,
		Date:        e.Date.String(),
		Category:    string(e.Category),
		Description: e.Description,
		Source:      string(e.Source),
		SourceId:    e.SourceId,
		ExternalId:  e.ExternalId,
		SyncStatus:  string(e.SyncStatus),
	}
	if e.Time != nil {
		dto.Time = FormatTime(*e.Time)
	}
	if !e.CreatedAt.IsZero() {
		createdAt := e.CreatedAt
		dto.CreatedAt = &createdAt
	}
	if !e.UpdatedAt.IsZero() {
		updatedAt := e.UpdatedAt
		dto.UpdatedAt = &updatedAt
	}
	for _, l := range e.Links {
		dto.SyncLinks = append(dto.SyncLinks, SyncLinkDTO{
			Provider:   string(l.Provider),
			ExternalId: l.ExternalId,
			SyncStatus: string(l.Status),
			LastError:  l.LastError,
			SyncedAt:   l.SyncedAt,
		})
	}
	return dto
}

func ToDTOs(events []Event) []EventDTO {
	dtos := make([]EventDTO, 0, len(events))
	for _, e := range events {
		dtos = append(dtos, ToDTO(e))
	}
	return dtos
}

// WriteError maps event errors to HTTP responses.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, user.ErrNoUser):
		rest.WriteError(w, http.StatusUnauthorized, "Unauthorized", "")
	case errors.Is(err, ErrValidation):
		rest.WriteError(w, http.StatusBadRequest, "Invalid event", err.Error())
	case errors.Is(err, ErrImmutableSource):
		rest.WriteError(w, http.StatusBadRequest, "Event is not editable", err.Error())
	case errors.Is(err, ErrEventNotFound):
		rest.WriteError(w, http.StatusNotFound, "Event not found", "")
	case errors.Is(err, ErrNotOwner):
		rest.WriteError(w, http.StatusForbidden, "Forbidden", "")
	case errors.Is(err, database.ErrStoreUnavailable):
		log.Errorf("event store failure: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Store unavailable", "")
	default:
		log.Errorf("event request failed: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Internal server error", "")
	}
}
