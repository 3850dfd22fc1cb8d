// Package render drives complete document renders. The engine projects
// the current settings onto the Markdown converter, runs the plugin
// pipeline, consults the trust gate for script enablement and caches
// finished results keyed by content and configuration.
package render

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dgallion1/docrender/internal/aicontext"
	"github.com/dgallion1/docrender/internal/markdown"
	"github.com/dgallion1/docrender/internal/observability"
	"github.com/dgallion1/docrender/internal/plugin"
	"github.com/dgallion1/docrender/internal/settings"
	"github.com/dgallion1/docrender/internal/trust"
)

// Script status values reported on every render result.
const (
	// ScriptNone: the document has no executable script block.
	ScriptNone = "none"
	// ScriptDisabled: scripts exist but the scripts feature is off.
	ScriptDisabled = "disabled"
	// ScriptAllowed: the trust gate cleared the document to run.
	ScriptAllowed = "allowed"
	// ScriptDenied: the trust gate holds a deny decision.
	ScriptDenied = "denied"
	// ScriptPrompt: no decision yet, the embedder must ask the user.
	ScriptPrompt = "prompt"
)

// Request is one document render.
type Request struct {
	// FileID is the trust identity of the document. Empty means an unsaved
	// buffer; the engine derives a content-based identity.
	FileID string
	// Content is the raw Markdown source.
	Content []byte
	// SkipCache bypasses the result cache for this render.
	SkipCache bool
}

// ScriptReport describes the script posture of a rendered document.
type ScriptReport struct {
	Status       string   `json:"status"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// Result is a finished render.
type Result struct {
	HTML           string                `json:"html"`
	Diagnostics    []markdown.ParseError `json:"diagnostics,omitempty"`
	PluginFailures []plugin.Failure      `json:"pluginFailures,omitempty"`
	Script         ScriptReport          `json:"script"`
	AIContextCount int                   `json:"aiContextCount"`
	FromCache      bool                  `json:"fromCache"`
}

// Config sizes the engine's result cache.
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
}

// projection is one applied settings generation. Renders read it as a
// unit so a reload mid-render never mixes old and new configuration.
type projection struct {
	settings    settings.Settings
	fingerprint string
	level       trust.Level
}

// Engine renders Markdown documents under the currently applied settings.
// Apply and Render may be called concurrently; a render works against the
// settings generation and registry snapshot it captured at start.
type Engine struct {
	log      *slog.Logger
	registry *plugin.Registry
	gate     *trust.Gate
	metrics  *observability.Metrics

	current atomic.Pointer[projection]
	cache   *expirable.LRU[string, Result]
}

// NewEngine builds an engine over the given registry and trust gate. The
// engine starts on default settings; call Apply after registering plugins
// to install the real configuration.
func NewEngine(reg *plugin.Registry, gate *trust.Gate, metrics *observability.Metrics, log *slog.Logger, cfg Config) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	e := &Engine{
		log:      log,
		registry: reg,
		gate:     gate,
		metrics:  metrics,
		cache:    expirable.NewLRU[string, Result](cfg.CacheSize, nil, cfg.CacheTTL),
	}
	def := settings.Default()
	e.current.Store(&projection{
		settings:    def,
		fingerprint: def.Fingerprint(),
		level:       trust.LevelStrict,
	})
	return e
}

// Apply installs new settings. Plugin overrides and activation state are
// reconciled against the registry first, then renders switch to the new
// generation atomically. The result cache is left alone: the settings
// fingerprint inside every cache key retires stale entries on its own.
func (e *Engine) Apply(ctx context.Context, s settings.Settings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("render: apply settings: %w", err)
	}
	level, err := trust.ParseLevel(s.ScriptSecurityLevel)
	if err != nil {
		return fmt.Errorf("render: apply settings: %w", err)
	}
	s = s.Clone()

	e.registry.ApplySettings(s.Plugins)
	enabled := make(map[string]bool, len(s.EnabledPlugins))
	for _, id := range s.EnabledPlugins {
		enabled[id] = true
		if err := e.registry.Activate(ctx, id); err != nil {
			e.log.Warn("cannot activate plugin", "plugin", id, "error", err)
		}
	}
	for _, info := range e.registry.Plugins() {
		if info.Active && !enabled[info.ID] {
			if err := e.registry.Deactivate(ctx, info.ID); err != nil {
				e.log.Warn("cannot deactivate plugin", "plugin", info.ID, "error", err)
			}
		}
	}

	e.current.Store(&projection{settings: s, fingerprint: s.Fingerprint(), level: level})
	e.log.Info("settings applied", "fingerprint", s.Fingerprint()[:12], "security_level", s.ScriptSecurityLevel)
	return nil
}

// CurrentSettings returns a copy of the applied settings generation.
func (e *Engine) CurrentSettings() settings.Settings {
	return e.current.Load().settings.Clone()
}

// Render converts one document to HTML. Identical content renders
// byte-identically under the same settings, plugin snapshot and script
// status; such repeats are served from the cache. A denied or undecided
// script document still renders, only with its script blocks inert.
func (e *Engine) Render(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	proj := e.current.Load()

	fileID := req.FileID
	if fileID == "" {
		fileID = trust.BufferIdentity(req.Content)
	}
	status, caps := e.scriptStatus(ctx, proj, fileID, req.Content)

	view := e.registry.Current()
	key := cacheKey(req.Content, proj.fingerprint, view.Version(), status)
	if !req.SkipCache {
		if res, ok := e.cache.Get(key); ok {
			e.metrics.RecordCacheLookup(true)
			e.metrics.ObserveRender(status, time.Since(start))
			res.FromCache = true
			return res, nil
		}
		e.metrics.RecordCacheLookup(false)
	}

	opts := proj.settings.MarkdownOptions()
	opts.CodeHandler = func(language, code string) (string, bool) {
		out, id, ok := view.ClaimCodeBlock(language, code)
		if ok {
			e.metrics.RecordCodeBlock(id)
		}
		return out, ok
	}
	conv := markdown.NewConverter(opts)

	doc, parseErrs := conv.Parse(req.Content)
	failures, err := view.Transform(ctx, doc)
	if err != nil {
		return Result{}, fmt.Errorf("render: transform: %w", err)
	}
	for _, f := range failures {
		e.metrics.RecordPluginFailure(f.Plugin, f.Stage)
	}

	var buf bytes.Buffer
	if err := conv.Render(&buf, doc, status == ScriptAllowed); err != nil {
		return Result{}, fmt.Errorf("render: %w", err)
	}

	res := Result{
		HTML:           buf.String(),
		Diagnostics:    parseErrs,
		PluginFailures: failures,
		Script:         ScriptReport{Status: status, Capabilities: caps},
	}
	if proj.settings.AIContext {
		res.AIContextCount = len(aicontext.ExtractFromDocument(doc))
	}
	e.cache.Add(key, res)
	e.metrics.ObserveRender(status, time.Since(start))
	return res, nil
}

// scriptStatus resolves the script posture for one render session. The
// raw content decides whether a script exists at all; the settings decide
// whether the feature is live; the gate decides whether this document may
// run it.
func (e *Engine) scriptStatus(ctx context.Context, proj *projection, fileID string, content []byte) (string, []string) {
	if !markdown.HasExecutableScript(content) {
		return ScriptNone, nil
	}
	if !proj.settings.Scripts {
		return ScriptDisabled, nil
	}
	v := e.gate.Evaluate(ctx, fileID, true, proj.level)
	switch v.Action {
	case trust.ActionAllow:
		return ScriptAllowed, trust.CapabilityNames(v.Capabilities)
	case trust.ActionDeny:
		return ScriptDenied, nil
	default:
		return ScriptPrompt, nil
	}
}

// cacheKey folds everything that can change a render's output: the
// source bytes, the settings fingerprint, the plugin snapshot version and
// the script status.
func cacheKey(content []byte, fingerprint string, version uint64, status string) string {
	h := sha256.New()
	h.Write(content)
	h.Write([]byte{0})
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(status))
	h.Write([]byte{0})
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], version)
	h.Write(v[:])
	return hex.EncodeToString(h.Sum(nil))
}
