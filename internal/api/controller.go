package api

import (
	"net/http"

	"github.com/nerrad567/mhi-hvac-core/internal/hvac"
	"github.com/nerrad567/mhi-hvac-core/internal/sclink"
)

// controllerResponse is the body of GET /controller.
type controllerResponse struct {
	Device    hvac.DeviceInfo      `json:"device"`
	Connected bool                 `json:"connected"`
	Link      *sclink.ManagerStats `json:"link,omitempty"`
	Dispatch  hvac.DispatchStats   `json:"dispatch"`
	Registry  hvac.RegistryStats   `json:"registry"`
}

// handleGetController returns controller identity and link statistics.
func (s *Server) handleGetController(w http.ResponseWriter, _ *http.Request) {
	resp := controllerResponse{
		Device:   s.svc.Device(),
		Dispatch: s.svc.DispatchStats(),
		Registry: s.svc.Registry().Stats(),
	}
	if s.controller != nil {
		stats := s.controller.Stats()
		resp.Link = &stats
		resp.Connected = s.controller.IsConnected()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh schedules an immediate poll of every block.
func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	if s.controller == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "controller is not configured")
		return
	}
	s.controller.RequestRefresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}
