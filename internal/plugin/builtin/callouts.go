// Package builtin holds the plugins that ship with the render pipeline:
// callouts, mermaid, kroki, math and toc. They double as reference
// implementations of the plugin contract.
package builtin

import (
	"context"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/yuin/goldmark/ast"

	"github.com/dgallion1/docrender/internal/markdown"
	"github.com/dgallion1/docrender/internal/plugin"
)

type calloutsConfig struct {
	Kinds []string `mapstructure:"kinds"`
}

// Callouts decorates admonition containers (:::note, :::warning, ...)
// with callout classes so stylesheets can pick them up.
type Callouts struct {
	mu  sync.RWMutex
	cfg calloutsConfig
}

func NewCallouts() *Callouts {
	c := &Callouts{}
	_ = mapstructure.Decode(c.Defaults(), &c.cfg)
	return c
}

func (c *Callouts) ID() string { return "callouts" }

func (c *Callouts) Defaults() map[string]any {
	return map[string]any{
		"kinds": []string{"note", "tip", "warning", "caution", "alert"},
	}
}

func (c *Callouts) Transforms() []plugin.Transform {
	return []plugin.Transform{c.decorate}
}

func (c *Callouts) decorate(ctx context.Context, pc plugin.Context, doc *markdown.Document) error {
	kinds := c.kindSet()
	return doc.Walk(func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		d, ok := n.(*markdown.ContainerDirective)
		if !ok || !kinds[d.Name] {
			return ast.WalkContinue, nil
		}
		d.AddClass("callout")
		d.AddClass("callout-" + d.Name)
		return ast.WalkContinue, nil
	})
}

func (c *Callouts) kindSet() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := make(map[string]bool, len(c.cfg.Kinds))
	for _, k := range c.cfg.Kinds {
		set[k] = true
	}
	return set
}

func (c *Callouts) HandleCodeBlock(language, code string) (string, bool) {
	return "", false
}

func (c *Callouts) Activate(ctx context.Context, pc plugin.Context) error {
	c.OnSettingsChange(pc.Settings)
	return nil
}

func (c *Callouts) Deactivate(ctx context.Context) error { return nil }

func (c *Callouts) OnSettingsChange(settings map[string]any) {
	var cfg calloutsConfig
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return
	}
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

func (c *Callouts) API() map[string]any { return nil }
