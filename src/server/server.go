package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logger "github.com/sirupsen/logrus"

	"gridexecutor/src/executors"
	"gridexecutor/src/handler"
	"gridexecutor/src/store"
)

// Router builds the status and control API for one engine instance.
func Router(engine *executors.Engine, st *store.Store, strategyID string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", handler.HealthcheckHandler())
	r.Get("/health", handler.HealthHandler(engine))
	r.Get("/status", handler.StatusHandler(engine))
	r.Get("/trades", handler.TradesHandler(st, strategyID))
	r.Get("/pairs", handler.PairsHandler(st, strategyID))
	r.Get("/operations", handler.OperationsHandler(st, strategyID))

	r.Post("/start", handler.StartHandler(engine))
	r.Post("/stop", handler.StopHandler(engine))
	r.Post("/reset", handler.ResetHandler(engine))
	r.Post("/resume", handler.ResumeHandler(engine))

	return r
}

// StartServer serves the router until SIGINT or SIGTERM, then shuts down
// gracefully. Blocks.
func StartServer(port string, r chi.Router) {
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
