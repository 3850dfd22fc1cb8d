package builtin

import (
	"context"
	"strconv"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/yuin/goldmark/ast"

	"github.com/dgallion1/docrender/internal/markdown"
	"github.com/dgallion1/docrender/internal/plugin"
)

type tocConfig struct {
	MinDepth int `mapstructure:"min_depth"`
	MaxDepth int `mapstructure:"max_depth"`
}

// TOC replaces ::toc leaf directives with a nested list of the document's
// headings. A depth attribute on the directive caps the maximum level for
// that occurrence, e.g. ::toc{depth=2}.
type TOC struct {
	mu  sync.RWMutex
	cfg tocConfig
}

func NewTOC() *TOC {
	t := &TOC{}
	_ = mapstructure.Decode(t.Defaults(), &t.cfg)
	return t
}

func (t *TOC) ID() string { return "toc" }

func (t *TOC) Defaults() map[string]any {
	return map[string]any{"min_depth": 1, "max_depth": 3}
}

func (t *TOC) Transforms() []plugin.Transform {
	return []plugin.Transform{t.expand}
}

func (t *TOC) expand(ctx context.Context, pc plugin.Context, doc *markdown.Document) error {
	var leafs []*markdown.LeafDirective
	err := doc.Walk(func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if d, ok := n.(*markdown.LeafDirective); ok && d.Name == "toc" {
			leafs = append(leafs, d)
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return err
	}
	if len(leafs) == 0 {
		return nil
	}

	items := doc.Outline()
	t.mu.RLock()
	minDepth, maxDepth := t.cfg.MinDepth, t.cfg.MaxDepth
	t.mu.RUnlock()

	for _, leaf := range leafs {
		max := maxDepth
		if v, ok := leaf.AttrValue("depth"); ok {
			if d, err := strconv.Atoi(v); err == nil && d > 0 {
				max = d
			}
		}
		parent := leaf.Parent()
		if parent == nil {
			continue
		}
		list := buildTOCList(items, minDepth, max)
		if list.ChildCount() == 0 {
			parent.RemoveChild(parent, leaf)
			continue
		}
		list.SetAttributeString("class", []byte("toc"))
		parent.ReplaceChild(parent, leaf, list)
	}
	return nil
}

type tocFrame struct {
	list  *ast.List
	level int
}

// buildTOCList nests headings the way the document does: a deeper heading
// opens a sublist under the previous item, a shallower one pops back out.
func buildTOCList(items []markdown.OutlineItem, minDepth, maxDepth int) *ast.List {
	root := ast.NewList('-')
	stack := []tocFrame{{list: root, level: -1}}
	for _, it := range items {
		if it.Level < minDepth || it.Level > maxDepth {
			continue
		}
		for len(stack) > 1 && it.Level < stack[len(stack)-1].level {
			stack = stack[:len(stack)-1]
		}
		top := &stack[len(stack)-1]
		if top.level == -1 {
			top.level = it.Level
		} else if it.Level > top.level {
			if last := top.list.LastChild(); last != nil {
				sub := ast.NewList('-')
				last.AppendChild(last, sub)
				stack = append(stack, tocFrame{list: sub, level: it.Level})
				top = &stack[len(stack)-1]
			} else {
				top.level = it.Level
			}
		}
		top.list.AppendChild(top.list, tocItem(it))
	}
	return root
}

func tocItem(it markdown.OutlineItem) *ast.ListItem {
	li := ast.NewListItem(0)
	tb := ast.NewTextBlock()
	title := ast.NewString([]byte(it.Title))
	if it.ID != "" {
		link := ast.NewLink()
		link.Destination = []byte("#" + it.ID)
		link.AppendChild(link, title)
		tb.AppendChild(tb, link)
	} else {
		tb.AppendChild(tb, title)
	}
	li.AppendChild(li, tb)
	return li
}

func (t *TOC) HandleCodeBlock(language, code string) (string, bool) {
	return "", false
}

func (t *TOC) Activate(ctx context.Context, pc plugin.Context) error {
	t.OnSettingsChange(pc.Settings)
	return nil
}

func (t *TOC) Deactivate(ctx context.Context) error { return nil }

func (t *TOC) OnSettingsChange(settings map[string]any) {
	var cfg tocConfig
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return
	}
	if cfg.MinDepth <= 0 {
		cfg.MinDepth = 1
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 6
	}
	t.mu.Lock()
	t.cfg = cfg
	t.mu.Unlock()
}

func (t *TOC) API() map[string]any { return nil }
