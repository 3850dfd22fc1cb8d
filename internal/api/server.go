// Package api exposes the render engine over HTTP: rendering, ai-context
// extraction, settings, trust decisions, document import and static export.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/docrender/internal/config"
	"github.com/dgallion1/docrender/internal/export"
	"github.com/dgallion1/docrender/internal/observability"
	"github.com/dgallion1/docrender/internal/plugin"
	"github.com/dgallion1/docrender/internal/render"
	"github.com/dgallion1/docrender/internal/trust"
)

// Server is the HTTP API server for docrender.
type Server struct {
	router       chi.Router
	engine       *render.Engine
	registry     *plugin.Registry
	gate         *trust.Gate
	orchestrator *export.Orchestrator
	metrics      *observability.Metrics
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(engine *render.Engine, registry *plugin.Registry, gate *trust.Gate, orch *export.Orchestrator, metrics *observability.Metrics, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		engine:       engine,
		registry:     registry,
		gate:         gate,
		orchestrator: orch,
		metrics:      metrics,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Operational endpoints, always public.
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(AuthMiddleware(s.cfg.APIKey, s.log))
		}

		r.Post("/api/render", s.handleRender)
		r.Get("/api/plugins", s.handleListPlugins)

		r.Post("/api/context", s.handleExtractContext)
		r.Get("/api/context/has", s.handleHasContext)

		r.Get("/api/settings", s.handleGetSettings)
		r.Put("/api/settings", s.handlePutSettings)
		r.Patch("/api/settings", s.handlePatchSettings)

		r.Get("/api/trust", s.handleListTrust)
		r.Get("/api/trust/decision", s.handleGetTrustDecision)
		r.Post("/api/trust/decision", s.handlePostTrustDecision)
		r.Get("/api/trust/capabilities", s.handleTrustCapabilities)
		r.Delete("/api/trust/*", s.handleRevokeTrust)

		r.Post("/api/import", s.handleImport)

		r.Post("/api/export", s.handleExport)
		r.Get("/api/export/{jobID}/status", s.handleExportStatus)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// resolveDocPath turns a request path into an absolute path inside the
// configured docs root. Relative paths are joined to the root; anything
// resolving outside it is rejected.
func (s *Server) resolveDocPath(p string) (string, error) {
	if p == "" {
		return "", errors.New("path is required")
	}
	root, err := filepath.Abs(s.cfg.DocsRoot)
	if err != nil {
		return "", fmt.Errorf("resolve docs root: %w", err)
	}
	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	abs = filepath.Clean(abs)
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the docs root", p)
	}
	return abs, nil
}

// readDoc resolves and reads a document under the docs root, mapping the
// usual failure modes onto HTTP status codes.
func (s *Server) readDoc(w http.ResponseWriter, p string) ([]byte, string, bool) {
	abs, err := s.resolveDocPath(p)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return nil, "", false
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			jsonError(w, "document not found: "+p, http.StatusNotFound)
		} else {
			jsonError(w, "read document: "+err.Error(), http.StatusInternalServerError)
		}
		return nil, "", false
	}
	return data, abs, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
