package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/docrender/internal/config"
	"github.com/dgallion1/docrender/internal/export"
	"github.com/dgallion1/docrender/internal/plugin"
	"github.com/dgallion1/docrender/internal/render"
	"github.com/dgallion1/docrender/internal/settings"
	"github.com/dgallion1/docrender/internal/trust"
)

type testEnv struct {
	server *Server
	orch   *export.Orchestrator
	gate   *trust.Gate
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := plugin.NewRegistry(log)
	gate := trust.NewGate(trust.NewMemoryStore(), log)
	if err := gate.Load(context.Background()); err != nil {
		t.Fatalf("load gate: %v", err)
	}
	engine := render.NewEngine(registry, gate, nil, log, render.Config{})
	orch := export.NewOrchestrator(export.Config{
		WorkerCount:          1,
		QueueSize:            4,
		JobTTL:               time.Hour,
		MaxConcurrentRenders: 2,
	}, engine, nil, log)
	return &testEnv{
		server: NewServer(engine, registry, gate, orch, nil, log, cfg),
		orch:   orch,
		gate:   gate,
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		DocsRoot:       t.TempDir(),
		MaxUploadBytes: 1 << 20,
	}
}

func (e *testEnv) request(t *testing.T, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return m
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testConfig(t))
	rec := env.request(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestAuth_RequiredWhenConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.APIKey = "secret"
	env := newTestEnv(t, cfg)

	rec := env.request(t, http.MethodGet, "/api/settings", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no header: expected 401, got %d", rec.Code)
	}

	rec = env.request(t, http.MethodGet, "/api/settings", "", map[string]string{
		"Authorization": "Bearer wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: expected 401, got %d", rec.Code)
	}

	rec = env.request(t, http.MethodGet, "/api/settings", "", map[string]string{
		"Authorization": "Bearer secret",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("right key: expected 200, got %d", rec.Code)
	}

	// Health stays public.
	rec = env.request(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", rec.Code)
	}
}

func TestAuth_DisabledWithoutKey(t *testing.T) {
	env := newTestEnv(t, testConfig(t))
	rec := env.request(t, http.MethodGet, "/api/settings", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRenderEndpoint(t *testing.T) {
	env := newTestEnv(t, testConfig(t))
	rec := env.request(t, http.MethodPost, "/api/render",
		`{"content":"# Hello\n\nSome *text*.\n"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var res render.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !strings.Contains(res.HTML, "<h1") {
		t.Errorf("expected heading in HTML, got %q", res.HTML)
	}
	if !strings.Contains(res.HTML, "<em>text</em>") {
		t.Errorf("expected emphasis in HTML, got %q", res.HTML)
	}
	if res.Script.Status != render.ScriptNone {
		t.Errorf("expected script status %q, got %q", render.ScriptNone, res.Script.Status)
	}
}

func TestRenderEndpoint_Validation(t *testing.T) {
	env := newTestEnv(t, testConfig(t))

	rec := env.request(t, http.MethodPost, "/api/render", `{}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty body: expected 400, got %d", rec.Code)
	}

	rec = env.request(t, http.MethodPost, "/api/render",
		`{"content":"# A","path":"doc.md"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("both content and path: expected 400, got %d", rec.Code)
	}
}

func TestRenderEndpoint_ByPath(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.DocsRoot, "doc.md"), []byte("# From Disk\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, cfg)

	rec := env.request(t, http.MethodPost, "/api/render", `{"path":"doc.md"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res render.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !strings.Contains(res.HTML, "From Disk") {
		t.Errorf("expected file content rendered, got %q", res.HTML)
	}

	rec = env.request(t, http.MethodPost, "/api/render", `{"path":"../outside.md"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("escape attempt: expected 400, got %d", rec.Code)
	}

	rec = env.request(t, http.MethodPost, "/api/render", `{"path":"missing.md"}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing file: expected 404, got %d", rec.Code)
	}
}

func TestContextEndpoints(t *testing.T) {
	cfg := testConfig(t)
	withContext := ":::ai-context\nbriefing for the assistant\n:::\n\n# Doc\n"
	if err := os.WriteFile(filepath.Join(cfg.DocsRoot, "briefed.md"), []byte(withContext), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.DocsRoot, "plain.md"), []byte("# Plain\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, cfg)

	body, err := json.Marshal(map[string]string{"content": withContext})
	if err != nil {
		t.Fatal(err)
	}
	rec := env.request(t, http.MethodPost, "/api/context", string(body), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	m := decodeMap(t, rec)
	if int(m["count"].(float64)) != 1 {
		t.Fatalf("expected 1 record, got %v", m["count"])
	}
	records := m["records"].([]any)
	first := records[0].(map[string]any)
	if first["content"] != "briefing for the assistant\n" {
		t.Errorf("unexpected record content: %q", first["content"])
	}

	rec = env.request(t, http.MethodGet, "/api/context/has?path=briefed.md", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if m := decodeMap(t, rec); m["has_context"] != true {
		t.Errorf("expected has_context true, got %v", m["has_context"])
	}

	rec = env.request(t, http.MethodGet, "/api/context/has?path=plain.md", "", nil)
	if m := decodeMap(t, rec); m["has_context"] != false {
		t.Errorf("expected has_context false, got %v", m["has_context"])
	}
}

func TestSettingsEndpoints(t *testing.T) {
	cfg := testConfig(t)
	cfg.SettingsPath = filepath.Join(t.TempDir(), "settings.yaml")
	env := newTestEnv(t, cfg)

	rec := env.request(t, http.MethodGet, "/api/settings", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var current settings.Settings
	if err := json.NewDecoder(rec.Body).Decode(&current); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if !current.Tables {
		t.Fatal("expected tables enabled by default")
	}

	rec = env.request(t, http.MethodPatch, "/api/settings", `{"tables":false}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.NewDecoder(rec.Body).Decode(&current); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if current.Tables {
		t.Error("expected tables disabled after patch")
	}
	if !current.Gfm {
		t.Error("expected untouched fields to keep their values")
	}

	if _, err := os.Stat(cfg.SettingsPath); err != nil {
		t.Errorf("expected settings persisted to %s: %v", cfg.SettingsPath, err)
	}

	current.Tables = true
	body, err := json.Marshal(current)
	if err != nil {
		t.Fatal(err)
	}
	rec = env.request(t, http.MethodPut, "/api/settings", string(body), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("put: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.NewDecoder(rec.Body).Decode(&current); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if !current.Tables {
		t.Error("expected tables re-enabled after put")
	}
}

func TestSettingsEndpoints_RejectInvalid(t *testing.T) {
	env := newTestEnv(t, testConfig(t))
	rec := env.request(t, http.MethodPatch, "/api/settings",
		`{"script_security_level":"lenient"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestTrustEndpoints(t *testing.T) {
	env := newTestEnv(t, testConfig(t))

	rec := env.request(t, http.MethodGet, "/api/trust/decision?file_id=buffer:test", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if m := decodeMap(t, rec); m["decision"] != "not-yet-decided" {
		t.Errorf("expected not-yet-decided, got %v", m["decision"])
	}

	rec = env.request(t, http.MethodPost, "/api/trust/decision",
		`{"file_id":"buffer:test","outcome":"allow"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if m := decodeMap(t, rec); m["decision"] != "allowed" {
		t.Errorf("expected allowed, got %v", m["decision"])
	}

	rec = env.request(t, http.MethodGet, "/api/trust", "", nil)
	m := decodeMap(t, rec)
	if decisions := m["decisions"].([]any); len(decisions) != 1 {
		t.Errorf("expected 1 decision listed, got %d", len(decisions))
	}

	rec = env.request(t, http.MethodDelete, "/api/trust/buffer:test", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.request(t, http.MethodGet, "/api/trust/decision?file_id=buffer:test", "", nil)
	if m := decodeMap(t, rec); m["decision"] != "not-yet-decided" {
		t.Errorf("expected not-yet-decided after revoke, got %v", m["decision"])
	}
}

func TestTrustEndpoints_UnknownOutcome(t *testing.T) {
	env := newTestEnv(t, testConfig(t))
	rec := env.request(t, http.MethodPost, "/api/trust/decision",
		`{"file_id":"buffer:x","outcome":"maybe"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestTrustCapabilities(t *testing.T) {
	env := newTestEnv(t, testConfig(t))

	rec := env.request(t, http.MethodGet, "/api/trust/capabilities?level=permissive", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"fetch"`) {
		t.Errorf("expected fetch capability at permissive, got %s", rec.Body.String())
	}

	// No level parameter falls back to the configured security level.
	rec = env.request(t, http.MethodGet, "/api/trust/capabilities", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"math"`) || strings.Contains(body, `"fetch"`) {
		t.Errorf("expected strict capability set, got %s", body)
	}

	rec = env.request(t, http.MethodGet, "/api/trust/capabilities?level=bogus", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestImportEndpoint(t *testing.T) {
	env := newTestEnv(t, testConfig(t))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "people.csv")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("name,age\nada,36\n")); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	rec := env.request(t, http.MethodPost, "/api/import", buf.String(), map[string]string{
		"Content-Type": mw.FormDataContentType(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	m := decodeMap(t, rec)
	md, _ := m["markdown"].(string)
	if !strings.Contains(md, "| name | age |") {
		t.Errorf("expected markdown table, got %q", md)
	}
	if m["format"] != "csv" {
		t.Errorf("expected format csv, got %v", m["format"])
	}
}

func TestImportEndpoint_UnsupportedType(t *testing.T) {
	env := newTestEnv(t, testConfig(t))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "binary.exe")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte{0x4d, 0x5a})
	mw.Close()

	rec := env.request(t, http.MethodPost, "/api/import", buf.String(), map[string]string{
		"Content-Type": mw.FormDataContentType(),
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unsupported file type") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestExportEndpoints(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.DocsRoot, "index.md"), []byte("# Home\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	outDir := t.TempDir()
	env := newTestEnv(t, cfg)
	env.orch.Start(context.Background())
	defer env.orch.Stop()

	body, err := json.Marshal(map[string]string{"source_dir": ".", "output_dir": outDir})
	if err != nil {
		t.Fatal(err)
	}
	rec := env.request(t, http.MethodPost, "/api/export", string(body), nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	m := decodeMap(t, rec)
	jobID, _ := m["job_id"].(string)
	if jobID == "" {
		t.Fatalf("expected a job id, got %v", m)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = env.request(t, http.MethodGet, "/api/export/"+jobID+"/status", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status: expected 200, got %d", rec.Code)
		}
		m = decodeMap(t, rec)
		if m["status"] == string(export.StatusCompleted) {
			break
		}
		if m["status"] == string(export.StatusFailed) {
			t.Fatalf("job failed: %v", m)
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not complete in time: %v", m)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := os.Stat(filepath.Join(outDir, "index.html")); err != nil {
		t.Errorf("expected exported file: %v", err)
	}

	rec = env.request(t, http.MethodGet, "/api/export/nope/status", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown job, got %d", rec.Code)
	}
}

func TestExportEndpoint_RejectsEscapingSource(t *testing.T) {
	env := newTestEnv(t, testConfig(t))
	rec := env.request(t, http.MethodPost, "/api/export",
		`{"source_dir":"../elsewhere","output_dir":"/tmp/out"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
