package http

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/mind-engage/markingsheet/internal/httpx/reply"
	"github.com/mind-engage/markingsheet/internal/logging"
)

func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

// ReadyzHandler reports 503 until ping succeeds.
func ReadyzHandler(ping func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			if err := ping(r.Context()); err != nil {
				logging.FromContext(r.Context()).Warn("readiness check failed", zap.Error(err))
				reply.JSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		reply.JSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
