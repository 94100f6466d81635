package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	logger "github.com/sirupsen/logrus"

	"gridexecutor/src/executors"
	"gridexecutor/src/model"
)

type statusReader interface {
	GetStatus() executors.Status
	GetHealth() executors.Health
}

type historyReader interface {
	ListTrades(ctx context.Context, strategyID string) ([]model.TradeRecord, error)
	ListPairs(ctx context.Context, strategyID string) ([]model.TradePair, error)
	RecentOperations(ctx context.Context, strategyID string, limit int) ([]model.OperationLogEntry, error)
}

// HealthcheckHandler is the plain liveness probe for load balancers.
func HealthcheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("healthcheck write failed")
		}
	}
}

// StatusHandler returns the full engine snapshot.
func StatusHandler(engine statusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, engine.GetStatus())
	}
}

// HealthHandler returns the engine liveness view, including breaker state.
func HealthHandler(engine statusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, engine.GetHealth())
	}
}

// TradesHandler lists the recorded fills for one strategy.
func TradesHandler(history historyReader, strategyID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trades, err := history.ListTrades(r.Context(), strategyID)
		if err != nil {
			logger.WithError(err).Error("failed to list trades")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, trades)
	}
}

// PairsHandler lists the closed profit pairs for one strategy.
func PairsHandler(history historyReader, strategyID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pairs, err := history.ListPairs(r.Context(), strategyID)
		if err != nil {
			logger.WithError(err).Error("failed to list trade pairs")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, pairs)
	}
}

// OperationsHandler lists the newest audit log entries. Supports ?limit=N.
func OperationsHandler(history historyReader, strategyID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
			parsed, err := strconv.Atoi(limitParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		entries, err := history.RecentOperations(r.Context(), strategyID, limit)
		if err != nil {
			logger.WithError(err).Error("failed to list operations")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, entries)
	}
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("failed to encode response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
