package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthHandler serves health check status
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":             "healthy",
		"uptime_seconds":     int64(time.Since(s.startTime).Seconds()),
		"active_connections": s.clients.Count(),
		"rooms":              s.rooms.Count(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		errorLog.Printf("Error encoding health JSON: %v", err)
	}
}

// StatsHandler serves current room and connection counts as JSON
func (s *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*") // Allow CORS for external dashboards
	if err := json.NewEncoder(w).Encode(map[string]int{
		"rooms":   s.rooms.Count(),
		"clients": s.clients.Count(),
	}); err != nil {
		errorLog.Printf("Error encoding stats JSON: %v", err)
	}
}
