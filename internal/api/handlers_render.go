package api

import (
	"encoding/json"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/dgallion1/docrender/internal/render"
	"github.com/dgallion1/docrender/internal/trust"
)

type renderRequest struct {
	Content   string `json:"content"`
	Path      string `json:"path"`
	FileID    string `json:"file_id"`
	SkipCache bool   `json:"skip_cache"`
}

func (rr renderRequest) Validate() error {
	return validation.ValidateStruct(&rr,
		validation.Field(&rr.Content,
			validation.Required.When(rr.Path == "").Error("content or path is required"),
			validation.Empty.When(rr.Path != "").Error("content and path are mutually exclusive")),
	)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	content := []byte(req.Content)
	fileID := req.FileID
	if req.Path != "" {
		data, abs, ok := s.readDoc(w, req.Path)
		if !ok {
			return
		}
		content = data
		if fileID == "" {
			id, err := trust.FileIdentity(abs)
			if err != nil {
				jsonError(w, err.Error(), http.StatusInternalServerError)
				return
			}
			fileID = id
		}
	}

	res, err := s.engine.Render(r.Context(), render.Request{
		FileID:    fileID,
		Content:   content,
		SkipCache: req.SkipCache,
	})
	if err != nil {
		jsonError(w, "render: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"plugins": s.registry.Plugins()})
}
