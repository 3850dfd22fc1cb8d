package builtin

import (
	"context"
	"html"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/dgallion1/docrender/internal/plugin"
)

type mermaidConfig struct {
	Theme string `mapstructure:"theme"`
}

// Mermaid claims fenced code blocks whose language is exactly "mermaid"
// and wraps them for client-side diagram rendering. Prefixed languages
// like kroki-mermaid are left for the kroki plugin.
type Mermaid struct {
	mu  sync.RWMutex
	cfg mermaidConfig
}

func NewMermaid() *Mermaid {
	m := &Mermaid{}
	_ = mapstructure.Decode(m.Defaults(), &m.cfg)
	return m
}

func (m *Mermaid) ID() string { return "mermaid" }

func (m *Mermaid) Defaults() map[string]any {
	return map[string]any{"theme": "default"}
}

func (m *Mermaid) Transforms() []plugin.Transform { return nil }

func (m *Mermaid) HandleCodeBlock(language, code string) (string, bool) {
	if language != "mermaid" {
		return "", false
	}
	m.mu.RLock()
	theme := m.cfg.Theme
	m.mu.RUnlock()

	out := `<div class="mermaid"`
	if theme != "" {
		out += ` data-theme="` + html.EscapeString(theme) + `"`
	}
	out += ">" + html.EscapeString(code) + "</div>\n"
	return out, true
}

func (m *Mermaid) Activate(ctx context.Context, pc plugin.Context) error {
	m.OnSettingsChange(pc.Settings)
	return nil
}

func (m *Mermaid) Deactivate(ctx context.Context) error { return nil }

func (m *Mermaid) OnSettingsChange(settings map[string]any) {
	var cfg mermaidConfig
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

func (m *Mermaid) API() map[string]any { return nil }
