package builtin

import (
	"context"
	"html"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/dgallion1/docrender/internal/plugin"
)

type mathConfig struct {
	Engine string `mapstructure:"engine"`
}

// Math claims math, katex and latex fenced blocks and wraps them for a
// client-side typesetter. Inline math is out of scope; only display
// blocks are handled.
type Math struct {
	mu  sync.RWMutex
	cfg mathConfig
}

func NewMath() *Math {
	m := &Math{}
	_ = mapstructure.Decode(m.Defaults(), &m.cfg)
	return m
}

func (m *Math) ID() string { return "math" }

func (m *Math) Defaults() map[string]any {
	return map[string]any{"engine": "katex"}
}

func (m *Math) Transforms() []plugin.Transform { return nil }

func (m *Math) HandleCodeBlock(language, code string) (string, bool) {
	switch language {
	case "math", "katex", "latex":
	default:
		return "", false
	}
	m.mu.RLock()
	engine := m.cfg.Engine
	m.mu.RUnlock()

	out := `<div class="math math-display"`
	if engine != "" {
		out += ` data-engine="` + html.EscapeString(engine) + `"`
	}
	out += ">" + html.EscapeString(code) + "</div>\n"
	return out, true
}

func (m *Math) Activate(ctx context.Context, pc plugin.Context) error {
	m.OnSettingsChange(pc.Settings)
	return nil
}

func (m *Math) Deactivate(ctx context.Context) error { return nil }

func (m *Math) OnSettingsChange(settings map[string]any) {
	var cfg mathConfig
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

func (m *Math) API() map[string]any { return nil }
