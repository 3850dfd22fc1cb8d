package settings

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestDefault_IsValid(t *testing.T) {
	s := Default()
	if err := s.Validate(); err != nil {
		t.Fatalf("default settings must validate: %v", err)
	}
	if s.Scripts {
		t.Error("scripts must start disabled")
	}
	if s.ScriptSecurityLevel != "strict" {
		t.Errorf("security level must start strict, got %q", s.ScriptSecurityLevel)
	}
	if !s.Gfm || !s.Directives || !s.AIContext {
		t.Error("core rendering features must start enabled")
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"unknown level", func(s *Settings) { s.ScriptSecurityLevel = "wide-open" }},
		{"empty level", func(s *Settings) { s.ScriptSecurityLevel = "" }},
		{"empty plugin id", func(s *Settings) { s.EnabledPlugins = []string{"callouts", ""} }},
		{"duplicate plugin", func(s *Settings) { s.EnabledPlugins = []string{"toc", "toc"} }},
	}
	for _, tt := range tests {
		s := Default()
		tt.mutate(&s)
		if err := s.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestMarkdownOptions_MasterSwitch(t *testing.T) {
	s := Default()
	s.Gfm = false

	opts := s.MarkdownOptions()
	if opts.Tables || opts.TaskLists || opts.Strikethrough || opts.Autolinks || opts.Footnotes {
		t.Errorf("GFM off must disable every sub-feature, got %+v", opts)
	}
	if !opts.Directives || !opts.HeadingAnchors {
		t.Error("non-GFM features must not be affected by the master switch")
	}
	if !s.Tables {
		t.Error("stored sub-option values must survive the master switch")
	}

	// Flipping the master back restores the stored sub-options untouched.
	s.Gfm = true
	if opts := s.MarkdownOptions(); !opts.Tables || !opts.Footnotes {
		t.Errorf("expected sub-features back after re-enabling GFM, got %+v", opts)
	}
}

func TestLoadSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	s := Default()
	s.Gfm = false
	s.Scripts = true
	s.ScriptSecurityLevel = "permissive"
	s.EnabledPlugins = []string{"kroki", "toc"}
	s.Plugins = map[string]map[string]any{
		"kroki": {"endpoint": "https://kroki.example"},
	}
	if err := s.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Fingerprint() != s.Fingerprint() {
		t.Errorf("round trip changed the settings:\nsaved  %+v\nloaded %+v", s, loaded)
	}
	if got := loaded.PluginSettings("kroki")["endpoint"]; got != "https://kroki.example" {
		t.Errorf("plugin settings lost in round trip: %v", got)
	}
}

func TestLoad_AbsentKeysKeepDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("gfm: false\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Gfm {
		t.Error("explicit key must be applied")
	}
	if !s.Tables || !s.Directives {
		t.Error("absent keys must keep their defaults")
	}
	if s.ScriptSecurityLevel != "strict" {
		t.Errorf("absent level must stay strict, got %q", s.ScriptSecurityLevel)
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	s, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if s.Fingerprint() != Default().Fingerprint() {
		t.Error("missing file must yield the defaults")
	}
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("DOCRENDER_TEST_LEVEL", "standard")
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("script_security_level: ${DOCRENDER_TEST_LEVEL}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.ScriptSecurityLevel != "standard" {
		t.Errorf("expected env expansion, got %q", s.ScriptSecurityLevel)
	}
}

func TestMerge_PartialUpdate(t *testing.T) {
	base := Default()
	base.Plugins = map[string]map[string]any{
		"mermaid": {"theme": "default"},
	}

	merged, err := base.Merge(map[string]any{
		"gfm":     false,
		"scripts": true,
		"plugins": map[string]map[string]any{
			"kroki": {"endpoint": "https://kroki.example"},
		},
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if merged.Gfm || !merged.Scripts {
		t.Errorf("patched keys not applied: %+v", merged)
	}
	if !merged.Tables {
		t.Error("untouched keys must keep their values")
	}
	if merged.PluginSettings("mermaid") == nil {
		t.Error("existing plugin settings must survive a merge")
	}
	if merged.PluginSettings("kroki")["endpoint"] != "https://kroki.example" {
		t.Error("merged plugin settings missing")
	}
	if base.Gfm != true || base.Scripts != false {
		t.Error("Merge must not mutate the receiver")
	}
}

func TestMerge_RejectsInvalidResult(t *testing.T) {
	if _, err := Default().Merge(map[string]any{"script_security_level": "wide-open"}); err == nil {
		t.Error("merge producing invalid settings must fail")
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Default()
	a.Plugins = map[string]map[string]any{
		"kroki":   {"endpoint": "https://kroki.io", "format": "svg"},
		"mermaid": {"theme": "dark"},
	}
	// Same content, different insertion order.
	b := Default()
	b.Plugins = map[string]map[string]any{}
	b.Plugins["mermaid"] = map[string]any{"theme": "dark"}
	b.Plugins["kroki"] = map[string]any{"format": "svg", "endpoint": "https://kroki.io"}

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint must not depend on map insertion order")
	}

	c := a.Clone()
	c.Gfm = false
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different settings must fingerprint differently")
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	if w, err := fsnotify.NewWatcher(); err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	} else {
		w.Close()
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	if err := Default().Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Settings, 4)
	done := make(chan error, 1)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() {
		done <- Watch(ctx, path, log, func(s Settings) { changes <- s })
	}()

	// Give the watcher a moment to register before the write.
	time.Sleep(100 * time.Millisecond)

	updated := Default()
	updated.Gfm = false
	if err := updated.Save(path); err != nil {
		t.Fatalf("Save update: %v", err)
	}

	select {
	case got := <-changes:
		if got.Gfm {
			t.Error("reloaded settings must carry the new value")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never delivered the reload")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}
