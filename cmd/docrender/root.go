package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docrender/internal/config"
	"github.com/dgallion1/docrender/internal/observability"
	"github.com/dgallion1/docrender/internal/plugin"
	"github.com/dgallion1/docrender/internal/plugin/builtin"
	"github.com/dgallion1/docrender/internal/render"
	"github.com/dgallion1/docrender/internal/settings"
	"github.com/dgallion1/docrender/internal/trust"
)

var rootCmd = &cobra.Command{
	Use:   "docrender",
	Short: "Markdown rendering service with directives, plugins and script trust",
	Long: `Docrender renders Markdown extended with container and leaf directives,
runs a plugin pipeline (callouts, mermaid, kroki, math, toc) over the
document tree, and gates executable code blocks behind a per-file trust
store.

serve exposes the renderer as an HTTP API, mcp exposes it to AI
assistants over stdio, and render, context, trust and export cover
one-shot operator tasks. Configuration comes from the environment; a
.env file in the working directory is loaded automatically.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("docs-root", "", "Override the DOCS_ROOT directory for this invocation")
}

// loadConfig reads the environment configuration and applies persistent
// flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Load()
	if v, _ := cmd.Flags().GetString("docs-root"); v != "" {
		cfg.DocsRoot = v
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the JSON logger the commands share. Commands whose
// stdout carries payload (render, mcp) log to stderr instead.
func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// stack is the wired rendering core shared by the serve, render, export
// and mcp commands.
type stack struct {
	cfg      config.Config
	log      *slog.Logger
	store    trust.Store
	gate     *trust.Gate
	registry *plugin.Registry
	engine   *render.Engine
	metrics  *observability.Metrics
}

// buildStack opens the trust store, registers the built-in plugins and
// applies the settings file to a fresh engine. metrics may be nil for
// one-shot commands.
func buildStack(ctx context.Context, cfg config.Config, log *slog.Logger, metrics *observability.Metrics) (*stack, error) {
	store, err := openTrustStore(cfg)
	if err != nil {
		return nil, err
	}
	gate := trust.NewGate(store, log)
	if err := gate.Load(ctx); err != nil {
		log.Warn("trust store unavailable, decisions are session-only", "error", err)
	}

	registry := plugin.NewRegistry(log)
	for _, p := range builtin.All() {
		if err := registry.Register(ctx, p); err != nil {
			store.Close()
			return nil, fmt.Errorf("register plugin: %w", err)
		}
	}

	engine := render.NewEngine(registry, gate, metrics, log, render.Config{
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
	})
	s, err := settings.LoadOrDefault(cfg.SettingsPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if err := engine.Apply(ctx, s); err != nil {
		store.Close()
		return nil, fmt.Errorf("apply settings: %w", err)
	}

	return &stack{
		cfg:      cfg,
		log:      log,
		store:    store,
		gate:     gate,
		registry: registry,
		engine:   engine,
		metrics:  metrics,
	}, nil
}

func (s *stack) Close() {
	if err := s.store.Close(); err != nil {
		s.log.Warn("closing trust store", "error", err)
	}
}

// openTrustStore selects the trust backend named in the configuration.
func openTrustStore(cfg config.Config) (trust.Store, error) {
	switch cfg.TrustBackend {
	case "memory":
		return trust.NewMemoryStore(), nil
	case "sqlite":
		return trust.OpenSQLite(cfg.TrustDBPath)
	case "redis":
		return trust.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), nil
	default:
		return nil, fmt.Errorf("unknown trust backend %q", cfg.TrustBackend)
	}
}
