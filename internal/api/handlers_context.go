package api

import (
	"encoding/json"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/dgallion1/docrender/internal/aicontext"
)

type contextRequest struct {
	Content string `json:"content"`
	Path    string `json:"path"`
}

func (cr contextRequest) Validate() error {
	return validation.ValidateStruct(&cr,
		validation.Field(&cr.Content,
			validation.Required.When(cr.Path == "").Error("content or path is required"),
			validation.Empty.When(cr.Path != "").Error("content and path are mutually exclusive")),
	)
}

func (s *Server) handleExtractContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	content := []byte(req.Content)
	if req.Path != "" {
		data, _, ok := s.readDoc(w, req.Path)
		if !ok {
			return
		}
		content = data
	}

	recs := aicontext.Extract(content)
	if recs == nil {
		recs = []aicontext.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": recs,
		"count":   len(recs),
	})
}

func (s *Server) handleHasContext(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		jsonError(w, "path query parameter is required", http.StatusBadRequest)
		return
	}
	data, _, ok := s.readDoc(w, p)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":        p,
		"has_context": aicontext.Has(data),
	})
}
