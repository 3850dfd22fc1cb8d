package markdown

import (
	"bytes"
	"html"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// CodeHandler renders a fenced code block to HTML. Returning false passes
// the block along the chain, ultimately to the plain pre/code form.
type CodeHandler func(language, code string) (string, bool)

// DirectiveHTMLRenderer renders container and leaf directives as div
// elements carrying their name, classes and attributes as data attributes.
// Hidden ai-context containers produce no output at all.
type DirectiveHTMLRenderer struct{}

func (r *DirectiveHTMLRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindContainerDirective, r.renderContainer)
	reg.Register(KindLeafDirective, r.renderLeaf)
}

func (r *DirectiveHTMLRenderer) renderContainer(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ContainerDirective)
	if n.Name == AIContextDirective && !aiContextVisible(n.Attrs) {
		if entering {
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	}
	if entering {
		writeDirectiveOpen(w, n.Name, n.Classes, n.Attrs)
		_ = w.WriteByte('\n')
	} else {
		_, _ = w.WriteString("</div>\n")
	}
	return ast.WalkContinue, nil
}

func (r *DirectiveHTMLRenderer) renderLeaf(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*LeafDirective)
	writeDirectiveOpen(w, n.Name, n.Classes, n.Attrs)
	_, _ = w.WriteString("</div>\n")
	return ast.WalkContinue, nil
}

// writeDirectiveOpen emits the opening div for a directive. Classes keep
// their parse order and attributes their first-seen key order, so output
// for a given source is byte stable.
func writeDirectiveOpen(w util.BufWriter, name string, classes []string, attrs []Attribute) {
	_, _ = w.WriteString(`<div class="directive directive-`)
	_, _ = w.WriteString(html.EscapeString(name))
	for _, c := range classes {
		_ = w.WriteByte(' ')
		_, _ = w.WriteString(html.EscapeString(c))
	}
	_, _ = w.WriteString(`" data-directive="`)
	_, _ = w.WriteString(html.EscapeString(name))
	_ = w.WriteByte('"')
	for _, a := range attrs {
		_, _ = w.WriteString(` data-`)
		_, _ = w.WriteString(html.EscapeString(strings.ToLower(a.Key)))
		_, _ = w.WriteString(`="`)
		_, _ = w.WriteString(html.EscapeString(a.Value))
		_ = w.WriteByte('"')
	}
	_ = w.WriteByte('>')
}

func aiContextVisible(attrs []Attribute) bool {
	v, ok := attrValue(attrs, "visibility")
	return ok && strings.EqualFold(v, "visible")
}

// CodeBlockRenderer renders fenced code blocks. Each block is offered to
// the handler chain first; unhandled blocks fall back to pre/code. When
// Runnable is set, blocks whose info string carries the run flag are
// marked executable for the embedding runtime.
type CodeBlockRenderer struct {
	Handler  CodeHandler
	Runnable bool
}

func (r *CodeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.render)
}

func (r *CodeBlockRenderer) render(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)
	lang, flags := codeInfo(n, source)
	code := codeText(n, source)
	if r.Handler != nil {
		if out, ok := r.Handler(lang, code); ok {
			_, _ = w.WriteString(out)
			return ast.WalkContinue, nil
		}
	}
	_, _ = w.WriteString("<pre><code")
	if lang != "" {
		_, _ = w.WriteString(` class="language-`)
		_, _ = w.WriteString(html.EscapeString(lang))
		_ = w.WriteByte('"')
	}
	if r.Runnable && hasFlag(flags, "run") {
		_, _ = w.WriteString(` data-executable="true"`)
	}
	_ = w.WriteByte('>')
	_, _ = w.WriteString(html.EscapeString(code))
	_, _ = w.WriteString("</code></pre>\n")
	return ast.WalkContinue, nil
}

// codeInfo splits a fence info string into the language and trailing
// flags, e.g. "js run" into "js" and ["run"].
func codeInfo(n *ast.FencedCodeBlock, source []byte) (string, []string) {
	if n.Info == nil {
		return "", nil
	}
	fields := strings.Fields(string(n.Info.Segment.Value(source)))
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

func codeText(n *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(source))
	}
	return buf.String()
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
