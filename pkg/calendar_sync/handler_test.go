package calendar_sync

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/campusflow/campusflow/pkg/connector"
	"github.com/campusflow/campusflow/pkg/event"
	"github.com/campusflow/campusflow/pkg/user"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(f fixture) *mux.Router {
	handler := NewHandler(f.orchestrator)
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if id := req.Header.Get("X-User-Id"); id != "" {
				req = req.WithContext(user.WithUser(req.Context(), user.User{Id: id}))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.HandleFunc("/sync/google/connect", handler.ConnectGoogle).Methods("POST")
	r.HandleFunc("/sync/apple/connect", handler.ConnectApple).Methods("POST")
	r.HandleFunc("/sync/disconnect", handler.Disconnect).Methods("POST")
	r.HandleFunc("/sync/push", handler.Push).Methods("POST")
	r.HandleFunc("/sync/pull", handler.Pull).Methods("POST")
	return r
}

func post(r http.Handler, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("X-User-Id", userId)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestHandler_ConnectGoogle(t *testing.T) {
	t.Run("should reject missing refresh token and stay disconnected", func(t *testing.T) {
		// given
		f := setup(t)
		r := setupRouter(f)

		// when
		rr := post(r, "/sync/google/connect", `{"accessToken":"access"}`)

		// then
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		cfg, err := f.configs.GetSyncConfig(context.Background(), userId)
		require.NoError(t, err)
		assert.False(t, cfg.GoogleCalendar.Connected)
	})

	t.Run("should connect with token pair", func(t *testing.T) {
		f := setup(t)
		r := setupRouter(f)

		rr := post(r, "/sync/google/connect", `{"accessToken":"access","refreshToken":"refresh"}`)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"success":true}`, rr.Body.String())
		cfg, _ := f.configs.GetSyncConfig(context.Background(), userId)
		assert.True(t, cfg.GoogleCalendar.Connected)
	})

	t.Run("should return 401 without user", func(t *testing.T) {
		f := setup(t)
		req := httptest.NewRequest(http.MethodPost, "/sync/google/connect", bytes.NewBufferString(`{}`))
		rr := httptest.NewRecorder()

		setupRouter(f).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestHandler_ConnectApple(t *testing.T) {
	t.Run("should reject missing password", func(t *testing.T) {
		f := setup(t)

		rr := post(setupRouter(f), "/sync/apple/connect", `{"serverUrl":"https://caldav.icloud.com/","username":"me"}`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("should connect with server credentials", func(t *testing.T) {
		f := setup(t)

		rr := post(setupRouter(f), "/sync/apple/connect",
			`{"serverUrl":"https://caldav.icloud.com/123/calendars/home/","username":"me","password":"app","calendarName":"Home"}`)

		require.Equal(t, http.StatusOK, rr.Code)
		cfg, _ := f.configs.GetSyncConfig(context.Background(), userId)
		assert.True(t, cfg.AppleCalendar.Connected)
		assert.Equal(t, "Home", cfg.AppleCalendar.CalendarName)
	})
}

func TestHandler_Push(t *testing.T) {
	t.Run("should report zero synced events when there is nothing to push", func(t *testing.T) {
		f := setup(t)
		f.connectGoogle(t)

		rr := post(setupRouter(f), "/sync/push", `{"service":"google"}`)

		require.Equal(t, http.StatusOK, rr.Code)
		var body PushResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.True(t, body.Success)
		assert.Zero(t, body.SyncedCount)
	})

	t.Run("should report synced count", func(t *testing.T) {
		f := setup(t)
		f.connectGoogle(t)
		f.addManual("Midterm", 1)

		rr := post(setupRouter(f), "/sync/push", `{"service":"google"}`)

		require.Equal(t, http.StatusOK, rr.Code)
		var body PushResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, 1, body.SyncedCount)
	})

	t.Run("should reject invalid service", func(t *testing.T) {
		f := setup(t)

		rr := post(setupRouter(f), "/sync/push", `{"service":"outlook"}`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("should reject disconnected service", func(t *testing.T) {
		f := setup(t)
		f.addManual("Midterm", 1)

		rr := post(setupRouter(f), "/sync/push", `{"service":"apple"}`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("should reject disconnected service without manual events", func(t *testing.T) {
		f := setup(t)

		rr := post(setupRouter(f), "/sync/push", `{"service":"google"}`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("should return 500 when provider is unreachable", func(t *testing.T) {
		f := setup(t)
		f.connectGoogle(t)
		f.addManual("Midterm", 1)
		f.google.OpenErr = connector.Transient(assert.AnError)

		rr := post(setupRouter(f), "/sync/push", `{"service":"google"}`)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestHandler_Pull(t *testing.T) {
	t.Run("should return pulled events", func(t *testing.T) {
		f := setup(t)
		f.connectGoogle(t)
		f.google.Remote.Put("g-1", event.Event{Title: "Dentist", Date: civil.Date{Year: 2025, Month: 11, Day: 4}, Category: event.CategoryPersonal})

		rr := post(setupRouter(f), "/sync/pull", `{"service":"google"}`)

		require.Equal(t, http.StatusOK, rr.Code)
		var body PullResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, 1, body.PulledCount)
		require.Len(t, body.Events, 1)
		assert.Equal(t, "google", body.Events[0].Source)
		assert.Equal(t, "g-1", body.Events[0].ExternalId)
		assert.NotEmpty(t, body.Events[0].Id)
	})
}

func TestHandler_Disconnect(t *testing.T) {
	t.Run("should disconnect provider", func(t *testing.T) {
		f := setup(t)
		f.connectGoogle(t)

		rr := post(setupRouter(f), "/sync/disconnect", `{"service":"google"}`)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"success":true}`, rr.Body.String())
		cfg, _ := f.configs.GetSyncConfig(context.Background(), userId)
		assert.False(t, cfg.GoogleCalendar.Connected)
	})

	t.Run("should reject invalid service", func(t *testing.T) {
		f := setup(t)

		rr := post(setupRouter(f), "/sync/disconnect", `{"service":"yahoo"}`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
