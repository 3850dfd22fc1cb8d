// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes docrender tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dgallion1/docrender/internal/aicontext"
	"github.com/dgallion1/docrender/internal/markdown"
	"github.com/dgallion1/docrender/internal/render"
	"github.com/dgallion1/docrender/internal/trust"
)

// Server wraps the MCP server with docrender tools.
type Server struct {
	mcp      *server.MCPServer
	engine   *render.Engine
	docsRoot string
}

// New creates an MCP server with all docrender tools registered.
func New(engine *render.Engine, docsRoot string) *Server {
	s := &Server{engine: engine, docsRoot: docsRoot}

	s.mcp = server.NewMCPServer(
		"docrender",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_ai_context",
		mcp.WithDescription("Extract the ai-context briefing blocks from a Markdown document. "+
			"These blocks carry text authored for AI assistants and stay hidden from readers."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the document, relative to the docs root")),
	), s.getAIContext)

	s.mcp.AddTool(mcp.NewTool("has_ai_context",
		mcp.WithDescription("Report whether a Markdown document carries ai-context blocks."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the document, relative to the docs root")),
	), s.hasAIContext)

	s.mcp.AddTool(mcp.NewTool("render_document",
		mcp.WithDescription("Render a Markdown document to HTML with the current settings, "+
			"directives and plugins applied."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the document, relative to the docs root")),
	), s.renderDocument)

	s.mcp.AddTool(mcp.NewTool("document_text",
		mcp.WithDescription("Render a Markdown document and return its plain text with markup "+
			"stripped. Useful for summarizing or answering questions about a document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the document, relative to the docs root")),
	), s.documentText)

	s.mcp.AddTool(mcp.NewTool("list_capabilities",
		mcp.WithDescription("List the script capabilities granted at a security level. "+
			"Without a level, the currently configured one is used."),
		mcp.WithString("level", mcp.Description("Security level: strict, standard or permissive")),
	), s.listCapabilities)

	// Resource: directive syntax contract.
	s.mcp.AddResource(
		mcp.NewResource("docrender://directive-syntax", "Directive Syntax",
			mcp.WithResourceDescription("The directive grammar documents may use: containers, leaves, attributes, ai-context and runnable code blocks."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDirectiveSyntaxResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// readDocument resolves path inside the docs root and reads it. Relative
// paths join the root; anything resolving outside it is rejected.
func (s *Server) readDocument(p string) ([]byte, string, error) {
	root, err := filepath.Abs(s.docsRoot)
	if err != nil {
		return nil, "", err
	}
	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	abs = filepath.Clean(abs)
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return nil, "", fmt.Errorf("path %q escapes the docs root", p)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, "", err
	}
	return data, abs, nil
}

func (s *Server) getAIContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, _, err := s.readDocument(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	recs := aicontext.Extract(data)
	if recs == nil {
		recs = []aicontext.Record{}
	}
	out, _ := json.MarshalIndent(recs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) hasAIContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, _, err := s.readDocument(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if aicontext.Has(data) {
		return mcp.NewToolResultText("true"), nil
	}
	return mcp.NewToolResultText("false"), nil
}

func (s *Server) renderDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, abs, err := s.readDocument(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.engine.Render(ctx, render.Request{FileID: abs, Content: data})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(res.HTML), nil
}

func (s *Server) documentText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, abs, err := s.readDocument(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.engine.Render(ctx, render.Request{FileID: abs, Content: data})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(markdown.HTMLText(res.HTML)), nil
}

func (s *Server) listCapabilities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	levelParam := ""
	if v, err := req.RequireString("level"); err == nil {
		levelParam = v
	}
	if levelParam == "" {
		levelParam = s.engine.CurrentSettings().ScriptSecurityLevel
	}
	level, err := trust.ParseLevel(levelParam)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(map[string]any{
		"level":        level,
		"capabilities": trust.CapabilityNames(trust.ResolveCapabilities(level)),
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readDirectiveSyntaxResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "docrender://directive-syntax",
			MIMEType: "text/markdown",
			Text:     DirectiveSyntaxContract,
		},
	}, nil
}
