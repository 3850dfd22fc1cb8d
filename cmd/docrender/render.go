package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgallion1/docrender/internal/importer"
	"github.com/dgallion1/docrender/internal/render"
	"github.com/dgallion1/docrender/internal/trust"
)

var renderCmd = &cobra.Command{
	Use:   "render [file]",
	Short: "Render a document to HTML or a terminal preview",
	Long: `Renders a single document through the full pipeline (directives,
plugins, script trust) and writes the HTML to stdout. Foreign formats
(docx, pdf, html, csv, txt) are converted to Markdown first.

With --ansi the Markdown is drawn as a styled terminal preview instead,
word-wrapped to the terminal width. NO_COLOR and non-terminal stdout
fall back to an uncolored style.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runRender(cmd, args[0]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().Bool("ansi", false, "Draw a styled preview to the terminal instead of emitting HTML")
	renderCmd.Flags().Int("width", 0, "Word-wrap width for --ansi (default: terminal width)")
	renderCmd.Flags().StringP("output", "o", "", "Write the result to a file instead of stdout")
}

func runRender(cmd *cobra.Command, path string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	source, err := importDocument(path, cfg.PDFFallbackPdftotext)
	if err != nil {
		return err
	}

	ansi, _ := cmd.Flags().GetBool("ansi")
	output, _ := cmd.Flags().GetString("output")

	if ansi {
		width, _ := cmd.Flags().GetInt("width")
		preview, err := ansiPreview(source, width)
		if err != nil {
			return fmt.Errorf("terminal preview: %w", err)
		}
		return writeResult(output, preview)
	}

	ctx := context.Background()
	log := newLogger(os.Stderr, cfg)
	st, err := buildStack(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	fileID, err := trust.FileIdentity(path)
	if err != nil {
		return err
	}
	res, err := st.engine.Render(ctx, render.Request{FileID: fileID, Content: []byte(source)})
	if err != nil {
		return err
	}
	for _, d := range res.Diagnostics {
		fmt.Fprintf(os.Stderr, "warning: %s\n", d.Error())
	}
	for _, f := range res.PluginFailures {
		fmt.Fprintf(os.Stderr, "plugin %s failed during %s: %s\n", f.Plugin, f.Stage, f.Err)
	}
	return writeResult(output, res.HTML)
}

// importDocument reads a file in any supported format and returns its
// Markdown form.
func importDocument(path string, pdfFallback bool) (string, error) {
	imp, err := importer.ForFile(path)
	if err != nil {
		return "", err
	}
	if pdf, ok := imp.(*importer.PDFImporter); ok {
		pdf.FallbackPdftotext = pdfFallback
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	source, err := imp.Import(f, filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("import %s: %w", path, err)
	}
	return source, nil
}

// ansiPreview draws Markdown as styled terminal output. width <= 0 means
// use the terminal width, falling back to 80 when stdout is not a
// terminal.
func ansiPreview(source string, width int) (string, error) {
	fd := int(os.Stdout.Fd())
	if width <= 0 {
		width = 80
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			width = w
		}
	}

	style := glamour.WithAutoStyle()
	if termenv.EnvNoColor() || !term.IsTerminal(fd) {
		style = glamour.WithStandardStyle("notty")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return "", err
	}
	return r.Render(source)
}

func writeResult(output, content string) error {
	if output == "" {
		fmt.Print(content)
		return nil
	}
	return os.WriteFile(output, []byte(content), 0o644)
}
