package server

import (
	"context"
	"net/http"
	"time"

	"beacon/service/util"
)

type healthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Uptime       string `json:"uptime"`
	Supported    bool   `json:"supported"`
	Targets      int    `json:"targets"`
	Connectivity bool   `json:"connectivity"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	targets, err := s.store.CountTargets()
	if err != nil {
		util.LogAndError(w, s.logger, "Failed to count targets", http.StatusInternalServerError, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	util.WriteJSON(w, healthResponse{
		Status:       "ok",
		Version:      s.version,
		Uptime:       util.FormatUptime(time.Since(s.startTime)),
		Supported:    s.publisher.Supported(),
		Targets:      targets,
		Connectivity: s.checker.CheckQuick(ctx),
	})
}
