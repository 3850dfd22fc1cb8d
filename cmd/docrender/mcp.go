package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docrender/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol server over stdio",
	Long: `Starts docrender as an MCP server speaking JSON-RPC on stdin/stdout,
so AI assistants can pull ai-context records and rendered documents
from the docs root.

Tools: get_ai_context, has_ai_context, render_document, document_text,
list_capabilities. Resource: docrender://directive-syntax.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runMCP(cmd); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Stdout carries JSON-RPC; everything else goes to stderr.
	log := newLogger(os.Stderr, cfg)

	ctx := context.Background()
	st, err := buildStack(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	log.Info("starting MCP server", "docs_root", cfg.DocsRoot)
	return mcpserver.New(st.engine, cfg.DocsRoot).ServeStdio()
}
