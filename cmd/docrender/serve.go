package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docrender/internal/api"
	"github.com/dgallion1/docrender/internal/export"
	"github.com/dgallion1/docrender/internal/observability"
	"github.com/dgallion1/docrender/internal/settings"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the docrender HTTP API",
	Long: `Starts the rendering service: the HTTP API with render, ai-context,
trust, settings, import and export endpoints, the settings file watcher
for hot reload, and the export worker pool. Prometheus metrics are
served on /metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(cmd); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(os.Stdout, cfg)
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := buildStack(ctx, cfg, log, observability.NewMetrics())
	if err != nil {
		return err
	}
	defer st.Close()

	orch := export.NewOrchestrator(export.Config{
		WorkerCount:          cfg.ExportWorkerCount,
		QueueSize:            cfg.ExportQueueSize,
		JobTTL:               cfg.ExportJobTTL,
		MaxConcurrentRenders: cfg.MaxConcurrentRenders,
	}, st.engine, st.metrics, log)
	orch.Start(ctx)

	srv := api.NewServer(st.engine, st.registry, st.gate, orch, st.metrics, log, cfg)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Settings hot reload. A rejected reload keeps the previous
	// generation in effect.
	g.Go(func() error {
		return settings.Watch(gCtx, cfg.SettingsPath, log, func(s settings.Settings) {
			if err := st.engine.Apply(gCtx, s); err != nil {
				log.Error("reloaded settings rejected", "error", err)
				st.metrics.RecordSettingsReload("rejected")
				return
			}
			st.metrics.RecordSettingsReload("applied")
		})
	})

	g.Go(func() error {
		log.Info("starting docrender",
			"port", cfg.Port,
			"docs_root", cfg.DocsRoot,
			"trust_backend", cfg.TrustBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			log.Info("shutting down", "signal", sig.String())
		case <-gCtx.Done():
		}

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown", "error", err)
		}

		// Stops the settings watcher.
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("docrender stopped")
	return nil
}
