package google

import (
	"context"
	"errors"
	"net/http"

	"github.com/campusflow/campusflow/internal/rest"
	"github.com/campusflow/campusflow/pkg/connector"
	"github.com/campusflow/campusflow/pkg/user"
	log "github.com/sirupsen/logrus"
)

type CalendarItemDto struct {
	Id      string `json:"id"`
	Summary string `json:"summary"`
	Primary bool   `json:"primary"`
}

type CredentialsProvider interface {
	Credentials(ctx context.Context, userId string, provider connector.Provider) (connector.Credentials, error)
}

type Handler struct {
	adapter     *Adapter
	credentials CredentialsProvider
}

func NewHandler(adapter *Adapter, credentials CredentialsProvider) *Handler {
	return &Handler{adapter: adapter, credentials: credentials}
}

// ListCalendars godoc
// @Summary List the Google calendars of the connected account
// @Tags Sync
// @Produce json
// @Success 200 {array} CalendarItemDto
// @Failure 400 {object} rest.ErrorResponse "Google is not connected"
// @Failure 401 {object} rest.ErrorResponse "No authenticated user"
// @Router /sync/google/calendars [get]
func (h *Handler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		rest.WriteError(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	creds, err := h.credentials.Credentials(r.Context(), userId, connector.Google)
	if err != nil {
		if errors.Is(err, connector.ErrNotConnected) {
			rest.WriteError(w, http.StatusBadRequest, "Google Calendar is not connected", "")
			return
		}
		log.Errorf("failed to load Google credentials for user %s: %v", userId, err)
		rest.WriteError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}

	calendars, err := h.adapter.ListCalendars(r.Context(), creds)
	if err != nil {
		rest.WriteError(w, http.StatusInternalServerError, "Failed to list Google calendars", err.Error())
		return
	}

	calendarItems := make([]CalendarItemDto, 0, len(calendars))
	for _, c := range calendars {
		calendarItems = append(calendarItems, toCalendarItemDto(c))
	}
	rest.WriteJSON(w, http.StatusOK, calendarItems)
}

func toCalendarItemDto(ci CalendarItem) CalendarItemDto {
	return CalendarItemDto{
		Id:      ci.ID,
		Summary: ci.Summary,
		Primary: ci.Primary,
	}
}
