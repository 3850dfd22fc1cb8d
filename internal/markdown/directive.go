package markdown

import (
	"strings"

	"github.com/yuin/goldmark/ast"
)

// KindContainerDirective is the node kind for :::name fenced containers.
var KindContainerDirective = ast.NewNodeKind("ContainerDirective")

// KindLeafDirective is the node kind for ::name one-line directives.
var KindLeafDirective = ast.NewNodeKind("LeafDirective")

// ContainerDirective holds the blocks parsed between a :::name open fence
// and its matching close fence. Containers nest arbitrarily; a close fence
// always terminates the innermost open container.
type ContainerDirective struct {
	ast.BaseBlock
	Name     string
	Classes  []string
	Attrs    []Attribute
	Offset   int  // byte offset of the opening fence line
	Unclosed bool // no matching close fence before end of input
	closeAt  int  // byte offset of the matching close fence line, -1 when none
}

func NewContainerDirective(name string, offset int) *ContainerDirective {
	return &ContainerDirective{Name: name, Offset: offset, closeAt: -1}
}

func (n *ContainerDirective) Kind() ast.NodeKind { return KindContainerDirective }

func (n *ContainerDirective) Dump(source []byte, level int) {
	m := map[string]string{
		"Name":    n.Name,
		"Classes": strings.Join(n.Classes, " "),
	}
	ast.DumpHelper(n, source, level, m, nil)
}

// AttrValue returns the value for key and whether the directive carries it.
func (n *ContainerDirective) AttrValue(key string) (string, bool) {
	return attrValue(n.Attrs, key)
}

// AddClass appends a class unless the directive already has it.
func (n *ContainerDirective) AddClass(class string) {
	n.Classes = addClass(n.Classes, class)
}

// SetAttr sets key to value, replacing any previous value.
func (n *ContainerDirective) SetAttr(key, value string) {
	n.Attrs = setAttr(n.Attrs, key, value)
}

// ContentSpan returns the byte range of the raw text between the open
// fence line and the close fence line. For unclosed containers the span
// runs to the end of the source.
func (n *ContainerDirective) ContentSpan(src []byte) (int, int) {
	start := lineEndOffset(src, n.Offset)
	stop := len(src)
	if n.closeAt >= 0 {
		stop = n.closeAt
	}
	if start > stop {
		start = stop
	}
	return start, stop
}

// LeafDirective is a single ::name line with no body.
type LeafDirective struct {
	ast.BaseBlock
	Name    string
	Classes []string
	Attrs   []Attribute
	Offset  int // byte offset of the fence line
}

func NewLeafDirective(name string, offset int) *LeafDirective {
	return &LeafDirective{Name: name, Offset: offset}
}

func (n *LeafDirective) Kind() ast.NodeKind { return KindLeafDirective }

func (n *LeafDirective) Dump(source []byte, level int) {
	m := map[string]string{
		"Name":    n.Name,
		"Classes": strings.Join(n.Classes, " "),
	}
	ast.DumpHelper(n, source, level, m, nil)
}

// AttrValue returns the value for key and whether the directive carries it.
func (n *LeafDirective) AttrValue(key string) (string, bool) {
	return attrValue(n.Attrs, key)
}

// AddClass appends a class unless the directive already has it.
func (n *LeafDirective) AddClass(class string) {
	n.Classes = addClass(n.Classes, class)
}

// SetAttr sets key to value, replacing any previous value.
func (n *LeafDirective) SetAttr(key, value string) {
	n.Attrs = setAttr(n.Attrs, key, value)
}
