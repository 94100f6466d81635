package handler

import (
	"context"
	"net/http"

	logger "github.com/sirupsen/logrus"
)

type engineController interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Reset(ctx context.Context) error
	Resume()
}

// StartHandler launches the trading loop.
func StartHandler(engine engineController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := engine.Start(r.Context()); err != nil {
			logger.WithError(err).Error("failed to start engine")
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, map[string]string{"result": "started"})
	}
}

// StopHandler halts the loop and cancels resting orders. Cancellation keeps
// going even if the caller disconnects, so the request context is not used.
func StopHandler(engine engineController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := engine.Stop(context.Background()); err != nil {
			logger.WithError(err).Error("failed to stop engine")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"result": "stopped"})
	}
}

// ResetHandler wipes all persisted strategy state. Rejected while running.
func ResetHandler(engine engineController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := engine.Reset(r.Context()); err != nil {
			logger.WithError(err).Error("failed to reset engine")
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, map[string]string{"result": "reset"})
	}
}

// ResumeHandler clears an active breaker pause.
func ResumeHandler(engine engineController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine.Resume()
		writeJSON(w, map[string]string{"result": "resumed"})
	}
}
