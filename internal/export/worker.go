package export

import (
	"context"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgallion1/docrender/internal/observability"
	"github.com/dgallion1/docrender/internal/render"
)

// Worker renders the files of one export job.
type Worker struct {
	engine  *render.Engine
	metrics *observability.Metrics
	log     *slog.Logger

	maxConcurrentRenders int
}

func NewWorker(engine *render.Engine, metrics *observability.Metrics, log *slog.Logger, maxRenders int) *Worker {
	if maxRenders <= 0 {
		maxRenders = 4
	}
	return &Worker{
		engine:               engine,
		metrics:              metrics,
		log:                  log,
		maxConcurrentRenders: maxRenders,
	}
}

// Process renders every Markdown file under the job's source directory
// into the output directory, mirroring the relative layout with a .html
// extension. Files render concurrently through the shared engine.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "source", job.SourceDir)

	// Phase 1: Scan
	job.SetStatus(StatusRendering, "scan")
	files, err := listMarkdownFiles(job.SourceDir)
	if err != nil {
		log.Error("source scan failed", "error", err)
		job.AddError(fmt.Sprintf("scan: %s", err))
		job.SetStatus(StatusFailed, "scan")
		w.metrics.RecordExportJob(string(StatusFailed))
		return
	}
	job.SetTotalFiles(len(files))
	if len(files) == 0 {
		log.Warn("no markdown files under source directory")
		job.AddError("no markdown files found")
		job.SetStatus(StatusFailed, "scan")
		w.metrics.RecordExportJob(string(StatusFailed))
		return
	}
	log.Info("scanned source directory", "files", len(files))

	// Phase 2: Render with bounded concurrency.
	job.SetStatus(StatusRendering, "render")
	type fileResult struct {
		rel string
		err error
	}
	results := make(chan fileResult, len(files))
	sem := make(chan struct{}, w.maxConcurrentRenders)

	for _, rel := range files {
		sem <- struct{}{}
		go func(rel string) {
			defer func() { <-sem }()
			results <- fileResult{rel: rel, err: w.exportFile(ctx, job, rel)}
		}(rel)
	}

	rendered := 0
	hadErrors := false
	for range files {
		r := <-results
		if r.err != nil {
			log.Error("export failed", "file", r.rel, "error", r.err)
			job.AddError(fmt.Sprintf("%s: %s", r.rel, r.err))
			hadErrors = true
			continue
		}
		job.IncrRendered()
		rendered++
	}

	var final JobStatus
	switch {
	case hadErrors && rendered > 0:
		final = StatusPartial
		job.SetStatus(StatusPartial, "done")
	case hadErrors:
		final = StatusFailed
		job.SetStatus(StatusFailed, "render")
	default:
		final = StatusCompleted
		job.SetStatus(StatusCompleted, "done")
	}
	w.metrics.RecordExportJob(string(final))
	log.Info("export finished", "status", final, "rendered", rendered, "total", len(files))
}

// exportFile renders one source file and writes the standalone page.
func (w *Worker) exportFile(ctx context.Context, job *Job, rel string) error {
	src := filepath.Join(job.SourceDir, rel)
	content, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	res, err := w.engine.Render(ctx, render.Request{FileID: src, Content: content})
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	out := filepath.Join(job.OutputDir, strings.TrimSuffix(rel, filepath.Ext(rel))+".html")
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	page := buildPage(documentTitle(rel), res.HTML)
	if err := os.WriteFile(out, []byte(page), 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// listMarkdownFiles returns the .md files under root as sorted relative
// paths.
func listMarkdownFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// buildPage wraps rendered body HTML in a minimal standalone page.
func buildPage(title, body string) string {
	var sb strings.Builder
	sb.WriteString("<!doctype html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	sb.WriteString(html.EscapeString(title))
	sb.WriteString("</title>\n</head>\n<body>\n")
	sb.WriteString(body)
	sb.WriteString("</body>\n</html>\n")
	return sb.String()
}

// documentTitle derives a page title from the relative source path.
func documentTitle(rel string) string {
	base := filepath.Base(rel)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
