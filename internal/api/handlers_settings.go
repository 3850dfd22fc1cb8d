package api

import (
	"encoding/json"
	"net/http"

	"github.com/dgallion1/docrender/internal/settings"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.CurrentSettings())
}

// handlePutSettings replaces the whole settings object.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var next settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.applySettings(w, r, next)
}

// handlePatchSettings merges a partial update over the current settings.
// Absent keys keep their values; plugin maps merge per key.
func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var partial map[string]any
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	next, err := s.engine.CurrentSettings().Merge(partial)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.applySettings(w, r, next)
}

func (s *Server) applySettings(w http.ResponseWriter, r *http.Request, next settings.Settings) {
	if err := s.engine.Apply(r.Context(), next); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s.cfg.SettingsPath != "" {
		if err := next.Save(s.cfg.SettingsPath); err != nil {
			s.log.Error("persist settings", "path", s.cfg.SettingsPath, "error", err)
			jsonError(w, "settings applied but not persisted: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.engine.CurrentSettings())
}
