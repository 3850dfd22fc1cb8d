package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docrender/internal/trust"
)

func (s *Server) handleListTrust(w http.ResponseWriter, r *http.Request) {
	recs := s.gate.List()
	if recs == nil {
		recs = []trust.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": recs})
}

func (s *Server) handleGetTrustDecision(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("file_id")
	if fileID == "" {
		jsonError(w, "file_id query parameter is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file_id":  fileID,
		"decision": s.gate.CurrentDecision(fileID),
	})
}

func (s *Server) handlePostTrustDecision(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileID  string `json:"file_id"`
		Outcome string `json:"outcome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.FileID == "" || req.Outcome == "" {
		jsonError(w, "file_id and outcome are required", http.StatusBadRequest)
		return
	}

	if err := s.gate.RecordPromptOutcome(r.Context(), req.FileID, req.Outcome); err != nil {
		if errors.Is(err, trust.ErrStoreUnavailable) {
			// The decision holds for this session even though the store is down.
			jsonError(w, err.Error(), http.StatusServiceUnavailable)
		} else {
			jsonError(w, err.Error(), http.StatusBadRequest)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file_id":  req.FileID,
		"decision": s.gate.CurrentDecision(req.FileID),
	})
}

// handleRevokeTrust clears a decision, returning the file to the prompt
// state. The file id comes from the wildcard tail or, for ids containing
// slashes, the file_id query parameter.
func (s *Server) handleRevokeTrust(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("file_id")
	if fileID == "" {
		fileID = chi.URLParam(r, "*")
	}
	if fileID == "" {
		jsonError(w, "file_id is required", http.StatusBadRequest)
		return
	}

	if err := s.gate.Revoke(r.Context(), fileID); err != nil {
		if errors.Is(err, trust.ErrStoreUnavailable) {
			jsonError(w, err.Error(), http.StatusServiceUnavailable)
		} else {
			jsonError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file_id": fileID,
		"revoked": true,
	})
}

func (s *Server) handleTrustCapabilities(w http.ResponseWriter, r *http.Request) {
	levelParam := r.URL.Query().Get("level")
	if levelParam == "" {
		levelParam = s.engine.CurrentSettings().ScriptSecurityLevel
	}
	level, err := trust.ParseLevel(levelParam)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"level":        level,
		"capabilities": trust.CapabilityNames(trust.ResolveCapabilities(level)),
	})
}
