package calendar

import (
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/campusflow/campusflow/internal/rest"
	"github.com/campusflow/campusflow/pkg/event"
)

type Handler struct {
	calendar *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{s}
}

// GetEvents godoc
// @Summary Get the aggregated calendar feed
// @Tags Events
// @Produce json
// @Param startDate query string false "Inclusive start date (YYYY-MM-DD)"
// @Param endDate query string false "Inclusive end date (YYYY-MM-DD)"
// @Success 200 {array} event.EventDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid date or range"
// @Failure 401 {object} rest.ErrorResponse "No authenticated user"
// @Router /events [get]
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	start, ok := dateParam(w, r, "startDate")
	if !ok {
		return
	}
	end, ok := dateParam(w, r, "endDate")
	if !ok {
		return
	}

	events, err := h.calendar.GetEvents(r.Context(), start, end)
	if err != nil {
		event.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, event.ToDTOs(events))
}

func dateParam(w http.ResponseWriter, r *http.Request, name string) (*civil.Date, bool) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return nil, true
	}
	d, err := event.ParseDate(value)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid "+name+" format", "'"+name+"' must be in YYYY-MM-DD format")
		return nil, false
	}
	return &d, true
}
