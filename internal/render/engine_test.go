package render

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/yuin/goldmark/ast"

	"github.com/dgallion1/docrender/internal/markdown"
	"github.com/dgallion1/docrender/internal/observability"
	"github.com/dgallion1/docrender/internal/plugin"
	"github.com/dgallion1/docrender/internal/settings"
	"github.com/dgallion1/docrender/internal/trust"
)

type testPlugin struct {
	id         string
	transforms []plugin.Transform
	handle     func(lang, code string) (string, bool)
}

func (p *testPlugin) ID() string { return p.id }

func (p *testPlugin) Defaults() map[string]any { return nil }

func (p *testPlugin) Transforms() []plugin.Transform { return p.transforms }

func (p *testPlugin) HandleCodeBlock(lang, code string) (string, bool) {
	if p.handle == nil {
		return "", false
	}
	return p.handle(lang, code)
}

func (p *testPlugin) Activate(ctx context.Context, pc plugin.Context) error { return nil }

func (p *testPlugin) Deactivate(ctx context.Context) error { return nil }

func (p *testPlugin) OnSettingsChange(s map[string]any) {}

func (p *testPlugin) API() map[string]any { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testSettings is Default without the builtin plugin list, so engine tests
// only activate the stubs they register themselves.
func testSettings() settings.Settings {
	s := settings.Default()
	s.EnabledPlugins = nil
	return s
}

func newTestEngine(t *testing.T, m *observability.Metrics, plugins ...plugin.Plugin) (*Engine, *trust.Gate) {
	t.Helper()
	log := testLogger()
	reg := plugin.NewRegistry(log)
	for _, p := range plugins {
		if err := reg.Register(context.Background(), p); err != nil {
			t.Fatalf("register %s: %v", p.ID(), err)
		}
	}
	gate := trust.NewGate(trust.NewMemoryStore(), log)
	if err := gate.Load(context.Background()); err != nil {
		t.Fatalf("load gate: %v", err)
	}
	return NewEngine(reg, gate, m, log, Config{}), gate
}

func TestRender_Deterministic(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	if err := e.Apply(context.Background(), testSettings()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	src := []byte("# Title\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n- [x] done\n\n:::note\ninside\n:::\n")

	first, err := e.Render(context.Background(), Request{Content: src, SkipCache: true})
	if err != nil {
		t.Fatalf("first render: %v", err)
	}
	second, err := e.Render(context.Background(), Request{Content: src, SkipCache: true})
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	if first.HTML != second.HTML {
		t.Errorf("repeat render differs:\n%q\n%q", first.HTML, second.HTML)
	}
	if !strings.Contains(first.HTML, "<table>") {
		t.Errorf("expected table markup, got %q", first.HTML)
	}
	if !strings.Contains(first.HTML, `data-directive="note"`) {
		t.Errorf("expected rendered directive, got %q", first.HTML)
	}
}

func TestRender_ServesFromCache(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	src := []byte("# Cached\n")

	first, err := e.Render(context.Background(), Request{Content: src})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if first.FromCache {
		t.Fatal("first render claims to come from cache")
	}
	second, err := e.Render(context.Background(), Request{Content: src})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !second.FromCache {
		t.Error("identical repeat render missed the cache")
	}
	if second.HTML != first.HTML {
		t.Errorf("cached HTML differs: %q vs %q", second.HTML, first.HTML)
	}

	fresh, err := e.Render(context.Background(), Request{Content: src, SkipCache: true})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if fresh.FromCache {
		t.Error("SkipCache render still served from cache")
	}
}

func TestRender_ScriptLifecycle(t *testing.T) {
	e, gate := newTestEngine(t, nil)
	ctx := context.Background()
	src := []byte("# Doc\n\n```js run\n1 + 1\n```\n")
	const fileID = "/docs/script.md"

	res, err := e.Render(ctx, Request{FileID: fileID, Content: src})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if res.Script.Status != ScriptDisabled {
		t.Fatalf("scripts off: expected status %q, got %q", ScriptDisabled, res.Script.Status)
	}
	if strings.Contains(res.HTML, "data-executable") {
		t.Error("disabled render marked the block executable")
	}

	s := testSettings()
	s.Scripts = true
	if err := e.Apply(ctx, s); err != nil {
		t.Fatalf("apply: %v", err)
	}

	res, err = e.Render(ctx, Request{FileID: fileID, Content: src})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if res.Script.Status != ScriptPrompt {
		t.Fatalf("undecided file: expected status %q, got %q", ScriptPrompt, res.Script.Status)
	}
	if strings.Contains(res.HTML, "data-executable") {
		t.Error("undecided render marked the block executable")
	}

	if err := gate.RecordPromptOutcome(ctx, fileID, trust.PromptAllow); err != nil {
		t.Fatalf("record allow: %v", err)
	}
	res, err = e.Render(ctx, Request{FileID: fileID, Content: src})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if res.Script.Status != ScriptAllowed {
		t.Fatalf("allowed file: expected status %q, got %q", ScriptAllowed, res.Script.Status)
	}
	if !strings.Contains(res.HTML, `data-executable="true"`) {
		t.Errorf("allowed render did not mark the block executable: %q", res.HTML)
	}
	want := []string{"math", "json"}
	if len(res.Script.Capabilities) != len(want) {
		t.Fatalf("strict capabilities: expected %v, got %v", want, res.Script.Capabilities)
	}
	for i, c := range want {
		if res.Script.Capabilities[i] != c {
			t.Errorf("capability %d: expected %q, got %q", i, c, res.Script.Capabilities[i])
		}
	}

	if err := gate.RecordDecision(ctx, fileID, trust.Denied, false); err != nil {
		t.Fatalf("record deny: %v", err)
	}
	res, err = e.Render(ctx, Request{FileID: fileID, Content: src})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if res.Script.Status != ScriptDenied {
		t.Fatalf("denied file: expected status %q, got %q", ScriptDenied, res.Script.Status)
	}
	if strings.Contains(res.HTML, "data-executable") {
		t.Error("denied render marked the block executable")
	}
	if res.HTML == "" {
		t.Error("denied render produced no HTML at all")
	}
}

func TestRender_ScriptNoneWithoutRunFlag(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	res, err := e.Render(context.Background(), Request{Content: []byte("```js\n1\n```\n")})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if res.Script.Status != ScriptNone {
		t.Errorf("expected status %q, got %q", ScriptNone, res.Script.Status)
	}
}

func TestRender_SecurityLevelWidensCapabilities(t *testing.T) {
	e, gate := newTestEngine(t, nil)
	ctx := context.Background()
	src := []byte("```js run\n1\n```\n")
	const fileID = "/docs/wide.md"

	s := testSettings()
	s.Scripts = true
	s.ScriptSecurityLevel = "permissive"
	if err := e.Apply(ctx, s); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := gate.RecordDecision(ctx, fileID, trust.Allowed, false); err != nil {
		t.Fatalf("record: %v", err)
	}

	res, err := e.Render(ctx, Request{FileID: fileID, Content: src})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(res.Script.Capabilities) != 6 {
		t.Fatalf("permissive capabilities: expected 6, got %v", res.Script.Capabilities)
	}
	if res.Script.Capabilities[5] != "fetch" {
		t.Errorf("expected fetch last, got %v", res.Script.Capabilities)
	}
}

func TestRender_SettingsChangeBypassesStaleCache(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	src := []byte("| a |\n|---|\n| 1 |\n")

	withTables, err := e.Render(ctx, Request{Content: src})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(withTables.HTML, "<table>") {
		t.Fatalf("expected table markup, got %q", withTables.HTML)
	}

	s := testSettings()
	s.Tables = false
	if err := e.Apply(ctx, s); err != nil {
		t.Fatalf("apply: %v", err)
	}

	plain, err := e.Render(ctx, Request{Content: src})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if plain.FromCache {
		t.Error("render after settings change came from cache")
	}
	if strings.Contains(plain.HTML, "<table>") {
		t.Errorf("tables disabled but still rendered: %q", plain.HTML)
	}

	if err := e.Apply(ctx, testSettings()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	again, err := e.Render(ctx, Request{Content: src})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if again.HTML != withTables.HTML {
		t.Errorf("restored settings rendered differently: %q vs %q", again.HTML, withTables.HTML)
	}
}

func TestRender_PluginTransformAndCodeHandler(t *testing.T) {
	marker := &testPlugin{
		id: "marker",
		transforms: []plugin.Transform{
			func(ctx context.Context, pc plugin.Context, doc *markdown.Document) error {
				return doc.Walk(func(n ast.Node, entering bool) (ast.WalkStatus, error) {
					if entering {
						if h, ok := n.(*ast.Heading); ok {
							h.SetAttributeString("data-marked", []byte("yes"))
						}
					}
					return ast.WalkContinue, nil
				})
			},
		},
		handle: func(lang, code string) (string, bool) {
			if lang != "mermaid" {
				return "", false
			}
			return `<div class="diagram">` + code + "</div>\n", true
		},
	}
	e, _ := newTestEngine(t, nil, marker)
	ctx := context.Background()
	s := testSettings()
	s.EnabledPlugins = []string{"marker"}
	if err := e.Apply(ctx, s); err != nil {
		t.Fatalf("apply: %v", err)
	}

	res, err := e.Render(ctx, Request{Content: []byte("# Head\n\n```mermaid\ngraph TD\n```\n")})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(res.HTML, `data-marked="yes"`) {
		t.Errorf("transform did not reach the output: %q", res.HTML)
	}
	if !strings.Contains(res.HTML, `<div class="diagram">graph TD`) {
		t.Errorf("code handler did not claim the block: %q", res.HTML)
	}
	if len(res.PluginFailures) != 0 {
		t.Errorf("unexpected plugin failures: %v", res.PluginFailures)
	}
}

func TestRender_PluginFailureIsDiagnosticNotFatal(t *testing.T) {
	broken := &testPlugin{
		id: "broken",
		transforms: []plugin.Transform{
			func(ctx context.Context, pc plugin.Context, doc *markdown.Document) error {
				return errors.New("boom")
			},
		},
	}
	e, _ := newTestEngine(t, nil, broken)
	ctx := context.Background()
	s := testSettings()
	s.EnabledPlugins = []string{"broken"}
	if err := e.Apply(ctx, s); err != nil {
		t.Fatalf("apply: %v", err)
	}

	res, err := e.Render(ctx, Request{Content: []byte("# Still renders\n")})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(res.HTML, "Still renders") {
		t.Errorf("render aborted on plugin failure: %q", res.HTML)
	}
	if len(res.PluginFailures) != 1 || res.PluginFailures[0].Plugin != "broken" {
		t.Fatalf("expected one failure from broken, got %v", res.PluginFailures)
	}
	if res.PluginFailures[0].Stage != "transform" {
		t.Errorf("expected transform stage, got %q", res.PluginFailures[0].Stage)
	}
}

func TestRender_MalformedDirectiveSurfacesDiagnostic(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	res, err := e.Render(context.Background(), Request{Content: []byte("intro\n\n:::tip{oops\n\nmore\n")})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(res.Diagnostics) != 1 {
		t.Fatalf("expected 1 diagnostic, got %v", res.Diagnostics)
	}
	if res.Diagnostics[0].Line != 3 {
		t.Errorf("expected diagnostic on line 3, got %d", res.Diagnostics[0].Line)
	}
	if !strings.Contains(res.HTML, "<p>:::tip{oops</p>") {
		t.Errorf("expected malformed fence as literal text, got %q", res.HTML)
	}
}

func TestRender_AIContextCount(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	src := []byte("# Doc\n\n:::ai-context\nfor the machine\n:::\n\n:::ai-context\nmore\n:::\n")

	res, err := e.Render(ctx, Request{Content: src})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if res.AIContextCount != 2 {
		t.Errorf("expected 2 ai-context blocks, got %d", res.AIContextCount)
	}
	if strings.Contains(res.HTML, "for the machine") {
		t.Errorf("hidden ai-context leaked into HTML: %q", res.HTML)
	}

	s := testSettings()
	s.AIContext = false
	if err := e.Apply(ctx, s); err != nil {
		t.Fatalf("apply: %v", err)
	}
	res, err = e.Render(ctx, Request{Content: src})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if res.AIContextCount != 0 {
		t.Errorf("feature disabled: expected count 0, got %d", res.AIContextCount)
	}
}

func TestRender_EmptyFileIDUsesBufferIdentity(t *testing.T) {
	e, gate := newTestEngine(t, nil)
	ctx := context.Background()
	src := []byte("```js run\n1\n```\n")

	s := testSettings()
	s.Scripts = true
	if err := e.Apply(ctx, s); err != nil {
		t.Fatalf("apply: %v", err)
	}

	res, err := e.Render(ctx, Request{Content: src})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if res.Script.Status != ScriptPrompt {
		t.Fatalf("expected prompt for fresh buffer, got %q", res.Script.Status)
	}

	if err := gate.RecordDecision(ctx, trust.BufferIdentity(src), trust.Allowed, false); err != nil {
		t.Fatalf("record: %v", err)
	}
	res, err = e.Render(ctx, Request{Content: src})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if res.Script.Status != ScriptAllowed {
		t.Errorf("expected buffer decision to apply, got %q", res.Script.Status)
	}
}

func TestApply_RejectsInvalidSettings(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	s := testSettings()
	s.ScriptSecurityLevel = "lenient"
	if err := e.Apply(context.Background(), s); err == nil {
		t.Fatal("expected invalid security level to be rejected")
	}
	if got := e.CurrentSettings().ScriptSecurityLevel; got != "strict" {
		t.Errorf("failed apply must not change settings, level is %q", got)
	}
}

func TestApply_UnknownPluginIsWarningNotError(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	s := testSettings()
	s.EnabledPlugins = []string{"no-such-plugin"}
	if err := e.Apply(context.Background(), s); err != nil {
		t.Fatalf("unknown plugin should not fail apply: %v", err)
	}
}

func TestApply_DeactivatesDroppedPlugins(t *testing.T) {
	p := &testPlugin{
		id: "optional",
		transforms: []plugin.Transform{
			func(ctx context.Context, pc plugin.Context, doc *markdown.Document) error {
				return doc.Walk(func(n ast.Node, entering bool) (ast.WalkStatus, error) {
					if entering {
						if h, ok := n.(*ast.Heading); ok {
							h.SetAttributeString("data-opt", []byte("on"))
						}
					}
					return ast.WalkContinue, nil
				})
			},
		},
	}
	e, _ := newTestEngine(t, nil, p)
	ctx := context.Background()

	s := testSettings()
	s.EnabledPlugins = []string{"optional"}
	if err := e.Apply(ctx, s); err != nil {
		t.Fatalf("apply: %v", err)
	}
	res, err := e.Render(ctx, Request{Content: []byte("# H\n")})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(res.HTML, "data-opt") {
		t.Fatalf("plugin not active after apply: %q", res.HTML)
	}

	if err := e.Apply(ctx, testSettings()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	res, err = e.Render(ctx, Request{Content: []byte("# H\n")})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(res.HTML, "data-opt") {
		t.Errorf("plugin still active after being dropped: %q", res.HTML)
	}
}

func TestRender_RecordsMetrics(t *testing.T) {
	m := observability.NewMetrics()
	e, _ := newTestEngine(t, m)
	ctx := context.Background()
	src := []byte("# Metered\n")

	if _, err := e.Render(ctx, Request{Content: src}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if _, err := e.Render(ctx, Request{Content: src}); err != nil {
		t.Fatalf("render: %v", err)
	}

	if got := testutil.ToFloat64(m.RendersTotal.WithLabelValues(ScriptNone)); got != 2 {
		t.Errorf("renders_total: expected 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheMissesTotal); got != 1 {
		t.Errorf("cache_misses_total: expected 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheHitsTotal); got != 1 {
		t.Errorf("cache_hits_total: expected 1, got %v", got)
	}
}
