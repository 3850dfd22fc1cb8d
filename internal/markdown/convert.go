// Package markdown implements the document grammar: CommonMark plus the
// ::name and :::name directive extensions, parsed and rendered with
// goldmark. A Converter owns a parser and two renderers, one with script
// blocks neutralized and one with permitted script blocks marked
// executable, so a single parse can serve both trust outcomes.
package markdown

import (
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Options selects grammar and rendering features for a Converter. The zero
// value is CommonMark with directives disabled.
type Options struct {
	Tables         bool
	TaskLists      bool
	Strikethrough  bool
	Autolinks      bool
	Footnotes      bool
	HeadingAnchors bool
	Directives     bool
	CodeHandler    CodeHandler
}

// Converter turns Markdown source into a Document and a Document into
// HTML. It is safe for concurrent use once built.
type Converter struct {
	parse    parser.Parser
	render   renderer.Renderer
	runnable renderer.Renderer
}

// NewConverter builds a Converter for the given options.
func NewConverter(opts Options) *Converter {
	plain := newGoldmark(opts, false)
	run := newGoldmark(opts, true)
	return &Converter{
		parse:    plain.Parser(),
		render:   plain.Renderer(),
		runnable: run.Renderer(),
	}
}

func newGoldmark(opts Options, runnable bool) goldmark.Markdown {
	var exts []goldmark.Extender
	if opts.Tables {
		exts = append(exts, extension.Table)
	}
	if opts.TaskLists {
		exts = append(exts, extension.TaskList)
	}
	if opts.Strikethrough {
		exts = append(exts, extension.Strikethrough)
	}
	if opts.Autolinks {
		exts = append(exts, extension.Linkify)
	}
	if opts.Footnotes {
		exts = append(exts, extension.Footnote)
	}
	if opts.Directives {
		exts = append(exts, &directiveExtension{})
	}
	exts = append(exts, &codeBlockExtension{handler: opts.CodeHandler, runnable: runnable})
	var popts []parser.Option
	if opts.HeadingAnchors {
		popts = append(popts, parser.WithAutoHeadingID())
	}
	return goldmark.New(
		goldmark.WithExtensions(exts...),
		goldmark.WithParserOptions(popts...),
	)
}

// Parse builds the AST for src and collects directive diagnostics. A fresh
// parser context per call keeps heading IDs and diagnostics independent
// across concurrent parses.
func (c *Converter) Parse(src []byte) (*Document, []ParseError) {
	var errs []ParseError
	pc := parser.NewContext()
	pc.Set(parseErrorsKey, &errs)
	root := c.parse.Parse(text.NewReader(src), parser.WithContext(pc))
	return &Document{Root: root, Source: src}, errs
}

// Render writes doc as HTML. When runnable is true, fenced code blocks
// carrying the run flag are marked executable for the embedding runtime.
func (c *Converter) Render(w io.Writer, doc *Document, runnable bool) error {
	r := c.render
	if runnable {
		r = c.runnable
	}
	return r.Render(w, doc.Source, doc.Root)
}

type directiveExtension struct{}

func (e *directiveExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithBlockParsers(
		util.Prioritized(NewDirectiveParser(), 500),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(&DirectiveHTMLRenderer{}, 500),
	))
}

type codeBlockExtension struct {
	handler  CodeHandler
	runnable bool
}

func (e *codeBlockExtension) Extend(m goldmark.Markdown) {
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(&CodeBlockRenderer{Handler: e.handler, Runnable: e.runnable}, 500),
	))
}
