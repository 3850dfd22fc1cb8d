package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docrender/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export [source-dir] [output-dir]",
	Short: "Render a directory of documents to a static HTML tree",
	Long: `Walks source-dir, renders every supported document through the full
pipeline and mirrors the directory structure under output-dir as HTML.
The command blocks until the export finishes and exits non-zero if any
file failed.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runExport(cmd, args[0], args[1]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, sourceDir, outputDir string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(os.Stderr, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	src, err := filepath.Abs(sourceDir)
	if err != nil {
		return err
	}
	out, err := filepath.Abs(outputDir)
	if err != nil {
		return err
	}

	orch := export.NewOrchestrator(export.Config{
		WorkerCount:          cfg.ExportWorkerCount,
		QueueSize:            1,
		JobTTL:               cfg.ExportJobTTL,
		MaxConcurrentRenders: cfg.MaxConcurrentRenders,
	}, st.engine, nil, log)
	orch.Start(ctx)
	defer orch.Stop()

	job := export.NewJob(src, out)
	if err := orch.Submit(job); err != nil {
		return err
	}

	for {
		snap := job.Snapshot()
		switch snap.Status {
		case export.StatusCompleted:
			fmt.Fprintf(os.Stderr, "exported %d files to %s\n", snap.Progress.FilesRendered, out)
			return nil
		case export.StatusPartial:
			for _, e := range snap.Progress.Errors {
				fmt.Fprintln(os.Stderr, "error:", e)
			}
			return fmt.Errorf("export finished with %d errors (%d of %d files rendered)",
				len(snap.Progress.Errors), snap.Progress.FilesRendered, snap.Progress.TotalFiles)
		case export.StatusFailed:
			return fmt.Errorf("export failed during %s", snap.Phase)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("export interrupted")
		case <-time.After(100 * time.Millisecond):
		}
	}
}
