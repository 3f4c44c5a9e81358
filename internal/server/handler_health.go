package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Uptime     string `json:"uptime"`
	Store      string `json:"store"`
	ActiveRuns int    `json:"active_runs"`
	MaxRuns    int    `json:"max_runs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	storeState := "ok"
	if s.store == nil {
		storeState = "none"
	}
	respondOK(w, reqID, healthResponse{
		Status:     "healthy",
		Version:    Version,
		GoVersion:  runtime.Version(),
		Uptime:     time.Since(s.startTime).Round(time.Second).String(),
		Store:      storeState,
		ActiveRuns: s.slots.inUse(),
		MaxRuns:    s.slots.capacity(),
	})
}
