package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/mhi-hvac-core/internal/hvac"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	maxQueryParamLen    = 64
)

// commandRequest is the body of POST /entities/{id}/commands.
type commandRequest struct {
	hvac.CommandRequest

	// Targets adds further entities to the one in the path.
	Targets []string `json:"targets,omitempty"`
}

type presetRequest struct {
	Preset string `json:"preset"`
}

type modesRequest struct {
	Modes []string `json:"hvac_modes"`
}

type activeModeSetRequest struct {
	Name string `json:"name"`
}

// handleListEntities returns every entity, optionally filtered by kind.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")

	views := s.svc.Entities()
	out := make([]hvac.EntityView, 0, len(views))
	for _, v := range views {
		if kind != "" && string(v.Kind) != kind {
			continue
		}
		out = append(out, v)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entities": out,
		"count":    len(out),
	})
}

// handleGetEntity returns one entity.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Entity(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleGetHistory returns recorded status changes of a single unit,
// newest first.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history is not configured")
		return
	}

	rawID := chi.URLParam(r, "id")
	if len(rawID) > maxQueryParamLen {
		writeBadRequest(w, "invalid entity ID")
		return
	}
	view, err := s.svc.Entity(rawID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if view.Kind != hvac.EntityUnit {
		writeBadRequest(w, "history is kept per unit, not for groups")
		return
	}
	id, err := hvac.ParseUnitID(view.ID)
	if err != nil {
		writeInternalError(w, "failed to resolve unit")
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.history.GetHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("history query failed", "unit", id.String(), "error", err)
		writeInternalError(w, "failed to read history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"unit":    id,
		"history": entries,
		"count":   len(entries),
	})
}

// handleCommand validates and dispatches a property change to the entity
// in the path plus any extra targets in the body.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	cmd, err := req.Command()
	if err != nil {
		writeServiceError(w, err)
		return
	}

	targets := append([]string{chi.URLParam(r, "id")}, req.Targets...)
	result, err := s.svc.SetProperties(r.Context(), targets, cmd)
	s.writeDispatch(w, result, err)
}

// handleApplyPreset applies a named preset to the entity.
func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	var req presetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Preset == "" {
		writeBadRequest(w, "preset is required")
		return
	}

	result, err := s.svc.ApplyPreset(r.Context(), chi.URLParam(r, "id"), req.Preset)
	s.writeDispatch(w, result, err)
}

// writeDispatch reports a dispatch outcome. Every member write failing is
// an error; some failing is a 207 with per-unit results.
func (s *Server) writeDispatch(w http.ResponseWriter, result hvac.DispatchResult, err error) {
	var pe *hvac.PartialDispatchError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.As(err, &pe) && len(pe.Succeeded) > 0:
		writeJSON(w, http.StatusMultiStatus, result)
	default:
		writeServiceError(w, err)
	}
}

// handleReplaceModes replaces the allowed HVAC modes of every unit in the
// entity.
func (s *Server) handleReplaceModes(w http.ResponseWriter, r *http.Request) {
	var req modesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	units, err := s.svc.ReplaceModeSet(r.Context(), chi.URLParam(r, "id"), req.Modes)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.republish()

	writeJSON(w, http.StatusOK, map[string]any{
		"units": units,
		"count": len(units),
	})
}

// handleListModeSets returns the configured mode sets and the active one.
func (s *Server) handleListModeSets(w http.ResponseWriter, _ *http.Request) {
	sets, active := s.svc.ModeSets()
	writeJSON(w, http.StatusOK, map[string]any{
		"mode_sets": sets,
		"active":    active,
	})
}

// handleActivateModeSet switches the site-wide active mode set.
func (s *Server) handleActivateModeSet(w http.ResponseWriter, r *http.Request) {
	var req activeModeSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	changed, err := s.svc.ActivateModeSet(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if changed {
		s.republish()
	}

	_, active := s.svc.ModeSets()
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  active,
		"changed": changed,
	})
}

// handleListPresets returns the configured presets.
func (s *Server) handleListPresets(w http.ResponseWriter, _ *http.Request) {
	presets := s.svc.Presets()
	writeJSON(w, http.StatusOK, map[string]any{
		"presets": presets,
		"count":   len(presets),
	})
}

func (s *Server) republish() {
	if s.republisher != nil {
		s.republisher.Republish()
	}
}

// parseHistoryLimit parses the limit query parameter.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit, nil
}
