// Package web serves the HTTP JSON API over the store. It is a thin
// rendering layer: every handler reads or mutates state through store
// operations and holds no state of its own.
package web

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sweeney/tank-monitor/internal/store"
	"github.com/sweeney/tank-monitor/internal/transport"
)

// Broker is the transport surface the API needs: connection status for the
// status endpoint and publishing for the adjustments echo.
type Broker interface {
	Status() transport.ClientStatus
	Publish(topic string, payload any, qos byte, retain bool) error
}

// Server serves the tank API over HTTP.
type Server struct {
	httpServer *http.Server
	store      *store.Store
	broker     Broker

	// adjustmentsTopic receives the full adjustments echo after an
	// error update.
	adjustmentsTopic string
}

// New creates a Server bound to the given store and broker.
func New(addr string, st *store.Store, broker Broker, adjustmentsTopic string) *Server {
	s := &Server{
		store:            st,
		broker:           broker,
		adjustmentsTopic: adjustmentsTopic,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tanks", s.handleTanks)
	mux.HandleFunc("GET /api/tanks/summary", s.handleSummary)
	mux.HandleFunc("GET /api/status", s.handleOverall)
	mux.HandleFunc("GET /api/mqtt/status", s.handleMQTTStatus)
	mux.HandleFunc("GET /api/storage/days", s.handleGetStorageDays)
	mux.HandleFunc("POST /api/storage/days", s.handleSetStorageDays)
	mux.HandleFunc("GET /api/history/points", s.handleGetHistoryPoints)
	mux.HandleFunc("POST /api/history/points", s.handleSetHistoryPoints)
	mux.HandleFunc("GET /api/history/{id}", s.handleHistory)
	mux.HandleFunc("GET /api/alerts", s.handleAlerts)
	mux.HandleFunc("GET /api/statistics/{id}", s.handleStatistics)
	mux.HandleFunc("POST /api/tank/{id}/error", s.handleSetError)
	mux.HandleFunc("POST /api/thresholds", s.handleSetThresholds)
	mux.HandleFunc("DELETE /api/tanks/{id}", s.handleRemoveTank)
	mux.HandleFunc("DELETE /api/history", s.handleClearHistory)
	mux.HandleFunc("DELETE /api/history/{id}", s.handleClearHistory)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleTanks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    s.store.GetAll(),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.SummaryAll())
}

func (s *Server) handleOverall(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Overall())
}

func (s *Server) handleMQTTStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, formatMQTTStatus(s.broker.Status()))
}

func (s *Server) handleGetStorageDays(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"storage_days": s.store.StorageDays()})
}

func (s *Server) handleSetStorageDays(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Days int `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	days, err := s.store.SetStorageDays(req.Days)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success":      false,
			"error":        err.Error(),
			"storage_days": days,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "storage_days": days})
}

func (s *Server) handleGetHistoryPoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"history_points": s.store.MaxHistoryPoints()})
}

func (s *Server) handleSetHistoryPoints(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points int `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	points := s.store.SetMaxHistoryPoints(req.Points)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "history_points": points})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var start, end time.Time
	if raw := r.URL.Query().Get("start_time"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start_time must be RFC3339")
			return
		}
		start = t
	}
	if raw := r.URL.Query().Get("end_time"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end_time must be RFC3339")
			return
		}
		end = t
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"tank_id": id,
		"history": s.store.GetHistory(id, start, end, limit),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	tankID := 0
	if raw := r.URL.Query().Get("tank_id"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "tank_id must be an integer")
			return
		}
		tankID = n
	}
	minutes := 60
	if raw := r.URL.Query().Get("time_range"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "time_range must be a positive integer")
			return
		}
		minutes = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"alerts":  s.store.GetAlerts(tankID, time.Duration(minutes)*time.Minute),
	})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	minutes := 60
	if raw := r.URL.Query().Get("time_range"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "time_range must be a positive integer")
			return
		}
		minutes = n
	}
	writeJSON(w, http.StatusOK, s.store.Statistics(id, time.Duration(minutes)*time.Minute))
}

// handleSetError updates one tank's error adjustment and republishes the
// complete adjustments list so downstream consumers converge on the
// authoritative values.
func (s *Server) handleSetError(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Error float64 `json:"error"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stored, err := s.store.SetError(id, req.Error)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": err.Error()})
		return
	}

	if err := s.broker.Publish(s.adjustmentsTopic, FormatAdjustments(s.store.Errors()), 1, false); err != nil {
		// The stored value is already authoritative; the echo catches
		// up on the next publish.
		log.Printf("web: adjustments echo publish failed: %v", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tank_id": id, "error": stored})
}

func (s *Server) handleSetThresholds(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TempHigh  *float64 `json:"temp_high"`
		TempLow   *float64 `json:"temp_low"`
		LevelHigh *float64 `json:"level_high"`
		LevelLow  *float64 `json:"level_low"`
		ErrorMax  *float64 `json:"error"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated := s.store.SetThresholds(store.ThresholdUpdate{
		TempHigh:  req.TempHigh,
		TempLow:   req.TempLow,
		LevelHigh: req.LevelHigh,
		LevelLow:  req.LevelLow,
		ErrorMax:  req.ErrorMax,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "thresholds": updated})
}

func (s *Server) handleRemoveTank(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.RemoveTank(id); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tank_id": id})
}

// handleClearHistory serves both the per-tank route and the bare route;
// without an id it clears every tank's history.
func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	id := 0
	if r.PathValue("id") != "" {
		var ok bool
		if id, ok = pathID(w, r); !ok {
			return
		}
	}
	s.store.ClearHistory(id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "tank id must be a positive integer")
		return 0, false
	}
	return id, true
}
