package handler

import (
	"context"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"breakoutexecutor/src/model"
)

// StatusProvider reports the running engine's state.
type StatusProvider interface {
	Status(ctx context.Context) (model.EngineStatus, error)
}

func StatusHandler(provider StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := provider.Status(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to build engine status")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, status, "status")
	}
}
