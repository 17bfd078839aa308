package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/dyluth/rota/internal/store"
)

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store,omitempty"`
	Observers int    `json:"observers"`
	Error     string `json:"error,omitempty"`
}

// getBookings handles GET /bookings with the hub's current Map.
func (s *Server) getBookings(w http.ResponseWriter, r *http.Request) {
	m, err := s.hub.Snapshot(r.Context())
	if err != nil {
		log.Printf("[Server] Failed to read bookings: %v", err)
		status := http.StatusInternalServerError
		if store.IsUnavailable(err) || store.IsMalformed(err) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// healthz returns 200 if the store is reachable, 503 Service Unavailable otherwise.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Observers: s.hub.Observers(),
	}

	pinger, ok := s.store.(store.Pinger)
	if !ok {
		writeJSON(w, http.StatusOK, response)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := pinger.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Store = "disconnected"
		response.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	response.Store = "connected"
	writeJSON(w, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Server] Failed to encode response: %v", err)
	}
}
