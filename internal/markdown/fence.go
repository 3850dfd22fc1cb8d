package markdown

import (
	"bytes"
	"errors"
	"strings"
)

// Directive names with behavior built into the renderer.
const (
	AIContextDirective = "ai-context"
	ScriptDirective    = "script"
)

// Attribute is a single key=value pair from a directive attribute list.
type Attribute struct {
	Key   string
	Value string
}

// FenceKind classifies a source line against the directive grammar.
type FenceKind int

const (
	FenceNone          FenceKind = iota
	FenceLeaf                    // ::name{...}
	FenceContainerOpen           // :::name{...}
	FenceClose                   // three or more colons, nothing else
)

// FenceInfo is the parsed form of a directive fence line. Lines that
// resemble a directive but violate the grammar come back with Kind
// FenceNone and Malformed set; callers report the reason and let the line
// fall through as ordinary text.
type FenceInfo struct {
	Kind      FenceKind
	Name      string
	Classes   []string
	Attrs     []Attribute
	Malformed bool
	Reason    string
}

// ClassifyFenceLine parses one source line against the directive grammar.
// Exactly two leading colons introduce a leaf directive, three or more a
// container open, and three or more with nothing after them a container
// close. Up to three spaces of indentation are allowed.
func ClassifyFenceLine(line []byte) FenceInfo {
	s := trimLineEnding(line)
	indent := 0
	for indent < len(s) && s[indent] == ' ' {
		indent++
	}
	if indent > 3 {
		return FenceInfo{}
	}
	s = s[indent:]
	colons := 0
	for colons < len(s) && s[colons] == ':' {
		colons++
	}
	if colons < 2 {
		return FenceInfo{}
	}
	rest := bytes.TrimRight(s[colons:], " \t")
	if len(rest) == 0 {
		if colons >= 3 {
			return FenceInfo{Kind: FenceClose}
		}
		// A bare "::" carries no name and stays ordinary text.
		return FenceInfo{}
	}
	name, rest, ok := scanDirectiveName(rest)
	if !ok {
		return FenceInfo{Malformed: true, Reason: "invalid directive name"}
	}
	info := FenceInfo{Name: name}
	if colons == 2 {
		info.Kind = FenceLeaf
	} else {
		info.Kind = FenceContainerOpen
	}
	if len(rest) == 0 {
		return info
	}
	if rest[0] != '{' {
		return FenceInfo{Malformed: true, Reason: "unexpected text after directive name"}
	}
	classes, attrs, err := parseAttrList(rest)
	if err != nil {
		return FenceInfo{Malformed: true, Reason: err.Error()}
	}
	info.Classes = classes
	info.Attrs = attrs
	return info
}

// scanDirectiveName reads a directive name (letter, then letters, digits,
// underscore or hyphen) and returns the remainder of the line.
func scanDirectiveName(s []byte) (string, []byte, bool) {
	if len(s) == 0 || !isNameStart(s[0]) {
		return "", s, false
	}
	i := 1
	for i < len(s) && isNameChar(s[i]) {
		i++
	}
	return string(s[:i]), s[i:], true
}

// parseAttrList parses a {...} attribute block. Class tokens (.name)
// accumulate in order with duplicates dropped; for a repeated key the last
// value wins while the key keeps its first position. Values may be bare or
// double quoted with \" and \\ escapes.
func parseAttrList(s []byte) ([]string, []Attribute, error) {
	end := attrListEnd(s)
	if end < 0 {
		return nil, nil, errors.New("unterminated attribute list")
	}
	if end != len(s)-1 {
		return nil, nil, errors.New("unexpected text after attribute list")
	}
	body := s[1:end]
	var classes []string
	var attrs []Attribute
	i := 0
	for i < len(body) {
		for i < len(body) && (body[i] == ' ' || body[i] == '\t') {
			i++
		}
		if i >= len(body) {
			break
		}
		if body[i] == '.' {
			class, next, err := scanClassToken(body, i+1)
			if err != nil {
				return nil, nil, err
			}
			classes = addClass(classes, class)
			i = next
			continue
		}
		key, value, next, err := scanAttrPair(body, i)
		if err != nil {
			return nil, nil, err
		}
		attrs = setAttr(attrs, key, value)
		i = next
	}
	return classes, attrs, nil
}

// attrListEnd finds the closing brace of an attribute block, honoring
// escapes inside quoted values. s must start with '{'.
func attrListEnd(s []byte) int {
	inQuote := false
	for i := 1; i < len(s); i++ {
		c := s[i]
		if inQuote {
			switch c {
			case '\\':
				i++
			case '"':
				inQuote = false
			}
			continue
		}
		switch c {
		case '"':
			inQuote = true
		case '}':
			return i
		}
	}
	return -1
}

func scanClassToken(s []byte, start int) (string, int, error) {
	j := start
	for j < len(s) && isNameChar(s[j]) {
		j++
	}
	if j == start {
		return "", 0, errors.New("empty class token")
	}
	if j < len(s) && s[j] != ' ' && s[j] != '\t' {
		return "", 0, errors.New("malformed class token")
	}
	return string(s[start:j]), j, nil
}

func scanAttrPair(s []byte, i int) (string, string, int, error) {
	if !isKeyStart(s[i]) {
		return "", "", 0, errors.New("malformed attribute key")
	}
	j := i
	for j < len(s) && isNameChar(s[j]) {
		j++
	}
	key := string(s[i:j])
	if j >= len(s) || s[j] != '=' {
		return "", "", 0, errors.New("attribute without value")
	}
	j++
	if j < len(s) && s[j] == '"' {
		return scanQuotedValue(s, key, j+1)
	}
	start := j
	for j < len(s) && s[j] != ' ' && s[j] != '\t' {
		if s[j] == '"' || s[j] == '{' || s[j] == '}' {
			return "", "", 0, errors.New("malformed attribute value")
		}
		j++
	}
	return key, string(s[start:j]), j, nil
}

func scanQuotedValue(s []byte, key string, j int) (string, string, int, error) {
	var b strings.Builder
	for j < len(s) {
		c := s[j]
		if c == '\\' && j+1 < len(s) && (s[j+1] == '"' || s[j+1] == '\\') {
			b.WriteByte(s[j+1])
			j += 2
			continue
		}
		if c == '"' {
			j++
			if j < len(s) && s[j] != ' ' && s[j] != '\t' {
				return "", "", 0, errors.New("malformed attribute value")
			}
			return key, b.String(), j, nil
		}
		b.WriteByte(c)
		j++
	}
	return "", "", 0, errors.New("unterminated quoted value")
}

func isNameStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isNameChar(c byte) bool {
	return isNameStart(c) || c >= '0' && c <= '9' || c == '_' || c == '-'
}

func isKeyStart(c byte) bool {
	return isNameStart(c) || c == '_'
}

func trimLineEnding(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}

func attrValue(attrs []Attribute, key string) (string, bool) {
	for _, a := range attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

func addClass(classes []string, class string) []string {
	for _, c := range classes {
		if c == class {
			return classes
		}
	}
	return append(classes, class)
}

func setAttr(attrs []Attribute, key, value string) []Attribute {
	for i := range attrs {
		if attrs[i].Key == key {
			attrs[i].Value = value
			return attrs
		}
	}
	return append(attrs, Attribute{Key: key, Value: value})
}

// ScanEvent is one source line as seen by Scan.
type ScanEvent struct {
	Offset   int
	Line     []byte
	InCode   bool      // interior or closing line of a fenced code block
	CodeOpen bool      // line opens a fenced code block
	Lang     string    // info string language when CodeOpen
	Flags    []string  // info string flags when CodeOpen
	Info     FenceInfo // directive classification, zero inside code
}

// Scan walks src line by line starting at the byte offset from, applying
// directive classification only outside fenced code blocks. It stops early
// when fn returns false. The offset must sit at a line start outside any
// fenced code block.
func Scan(src []byte, from int, fn func(ev ScanEvent) bool) {
	var codeChar byte
	codeLen := 0
	for off := from; off < len(src); {
		end := off
		for end < len(src) && src[end] != '\n' {
			end++
		}
		if end < len(src) {
			end++
		}
		line := src[off:end]
		ev := ScanEvent{Offset: off, Line: line}
		char, count, rest := codeFence(line)
		switch {
		case codeLen > 0:
			ev.InCode = true
			if char == codeChar && count >= codeLen && len(bytes.TrimSpace(rest)) == 0 {
				codeChar, codeLen = 0, 0
			}
		case count >= 3 && !(char == '`' && bytes.IndexByte(rest, '`') >= 0):
			ev.CodeOpen = true
			fields := strings.Fields(string(rest))
			if len(fields) > 0 {
				ev.Lang = fields[0]
				ev.Flags = fields[1:]
			}
			codeChar, codeLen = char, count
		default:
			ev.Info = ClassifyFenceLine(line)
		}
		if !fn(ev) {
			return
		}
		off = end
	}
}

// codeFence reads a backtick or tilde code fence delimiter. count is zero
// when the line is not a fence.
func codeFence(line []byte) (byte, int, []byte) {
	s := trimLineEnding(line)
	i := 0
	for i < len(s) && s[i] == ' ' {
		i++
	}
	if i > 3 || i >= len(s) {
		return 0, 0, nil
	}
	c := s[i]
	if c != '`' && c != '~' {
		return 0, 0, nil
	}
	j := i
	for j < len(s) && s[j] == c {
		j++
	}
	if j-i < 3 {
		return 0, 0, nil
	}
	return c, j - i, s[j:]
}

// FindContainerClose scans forward from the byte offset just past a
// container open fence and returns the offset of the line closing that
// container. Nested container opens push the depth so an inner close never
// steals the outer fence, and fenced code interiors are skipped entirely.
// Returns -1 when the container never closes.
func FindContainerClose(src []byte, from int) int {
	depth := 1
	at := -1
	Scan(src, from, func(ev ScanEvent) bool {
		switch ev.Info.Kind {
		case FenceContainerOpen:
			depth++
		case FenceClose:
			depth--
			if depth == 0 {
				at = ev.Offset
				return false
			}
		}
		return true
	})
	return at
}

// LineNumber converts a byte offset into a 1-based line number.
func LineNumber(src []byte, offset int) int {
	if offset > len(src) {
		offset = len(src)
	}
	return 1 + bytes.Count(src[:offset], []byte("\n"))
}

// lineEndOffset returns the offset just past the line containing off,
// including its newline.
func lineEndOffset(src []byte, off int) int {
	for off < len(src) && src[off] != '\n' {
		off++
	}
	if off < len(src) {
		off++
	}
	return off
}
