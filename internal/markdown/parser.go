package markdown

import (
	"fmt"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// ParseError is a recoverable grammar problem found during a parse. The
// offending line degrades to ordinary text; the error only records what
// was skipped and where.
type ParseError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (e ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

var parseErrorsKey = parser.NewContextKey()

func addParseError(pc parser.Context, src []byte, offset int, msg string) {
	sink, _ := pc.Get(parseErrorsKey).(*[]ParseError)
	if sink == nil {
		return
	}
	*sink = append(*sink, ParseError{Line: LineNumber(src, offset), Message: msg})
}

type directiveParser struct{}

// NewDirectiveParser returns the block parser for ::name and :::name
// directive fences.
func NewDirectiveParser() parser.BlockParser {
	return &directiveParser{}
}

func (p *directiveParser) Trigger() []byte {
	return []byte{':'}
}

// Open classifies the current line and, for a container, scans ahead to
// record the byte offset of the matching close fence. goldmark continues
// open blocks outermost first, so without the recorded offset an outer
// container would swallow the close fence belonging to an inner one.
func (p *directiveParser) Open(parent ast.Node, reader text.Reader, pc parser.Context) (ast.Node, parser.State) {
	// Quote and list prefixes shift line starts away from raw source
	// offsets, which the close matching depends on. Directive fences in
	// those positions stay ordinary text.
	for a := parent; a != nil; a = a.Parent() {
		switch a.(type) {
		case *ast.Blockquote, *ast.ListItem:
			return nil, parser.NoChildren
		}
	}
	line, seg := reader.PeekLine()
	src := reader.Source()
	f := ClassifyFenceLine(line)
	switch f.Kind {
	case FenceLeaf:
		node := NewLeafDirective(f.Name, seg.Start)
		node.Classes = f.Classes
		node.Attrs = f.Attrs
		advancePastLine(reader, line, seg)
		return node, parser.NoChildren
	case FenceContainerOpen:
		node := NewContainerDirective(f.Name, seg.Start)
		node.Classes = f.Classes
		node.Attrs = f.Attrs
		node.closeAt = FindContainerClose(src, seg.Stop)
		advancePastLine(reader, line, seg)
		return node, parser.HasChildren
	case FenceClose:
		addParseError(pc, src, seg.Start, "unmatched directive close fence")
		return nil, parser.NoChildren
	default:
		if f.Malformed {
			addParseError(pc, src, seg.Start, f.Reason)
		}
		return nil, parser.NoChildren
	}
}

// Continue keeps a container open until the line recorded by Open arrives.
// Content lines are left untouched so child blocks parse them in full.
func (p *directiveParser) Continue(node ast.Node, reader text.Reader, pc parser.Context) parser.State {
	n, ok := node.(*ContainerDirective)
	if !ok {
		// Leaf directives end with their fence line.
		return parser.Close
	}
	line, seg := reader.PeekLine()
	if n.closeAt >= 0 && seg.Start == n.closeAt {
		advancePastLine(reader, line, seg)
		return parser.Close
	}
	return parser.Continue | parser.HasChildren
}

func (p *directiveParser) Close(node ast.Node, reader text.Reader, pc parser.Context) {
	n, ok := node.(*ContainerDirective)
	if !ok || n.closeAt >= 0 {
		return
	}
	n.Unclosed = true
	addParseError(pc, reader.Source(), n.Offset, fmt.Sprintf("unclosed container directive %q", n.Name))
}

func (p *directiveParser) CanInterruptParagraph() bool {
	return true
}

func (p *directiveParser) CanAcceptIndentedLine() bool {
	return false
}

func advancePastLine(reader text.Reader, line []byte, seg text.Segment) {
	newline := 1
	if len(line) == 0 || line[len(line)-1] != '\n' {
		newline = 0
	}
	reader.Advance(seg.Stop - seg.Start - newline - seg.Padding)
}
