package app

import (
	"context"
	"net/http"
	"time"

	"github.com/campusflow/campusflow/pkg/user"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// SetupMiddleware wires all HTTP middlewares for the application.
func SetupMiddleware(r *mux.Router) {
	r.Use(requestLogging)
	r.Use(propagateUser)
}

// propagateUser puts the identity resolved upstream (X-User-Id) into the request context.
func propagateUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		if userId := req.Header.Get("X-User-Id"); userId != "" {
			ctx = user.WithUser(ctx, user.User{Id: userId})
		} else {
			log.Debugf("no user id header on %s %s", req.Method, req.URL.Path)
		}
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		log.WithField("method", req.Method).WithField("path", req.URL.Path).
			WithField("status", rec.status).WithField("latency", time.Since(start)).
			Info("http request processed")
	})
}

func operationTimeout(timeout time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx, cancel := context.WithTimeout(req.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}
