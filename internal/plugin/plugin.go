// Package plugin defines the render pipeline extension contract and the
// registry that hosts plugin instances. Renders never see a half-updated
// pipeline: the registry publishes immutable snapshots and every render
// works against the one it captured at start.
package plugin

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dgallion1/docrender/internal/markdown"
)

var (
	// ErrNotFound is returned for operations on an unknown plugin ID.
	ErrNotFound = errors.New("plugin not found")
	// ErrInactive is returned when updating settings of an inactive plugin.
	ErrInactive = errors.New("plugin inactive")
)

// Context carries the per-plugin environment handed to Activate and to
// every transform: the plugin's effective settings and a logger scoped to
// the plugin ID.
type Context struct {
	Settings map[string]any
	Logger   *slog.Logger
}

// Transform mutates a parsed document in place. Transforms run in pipeline
// order and must confine themselves to the tree they are given.
type Transform func(ctx context.Context, pc Context, doc *markdown.Document) error

// Plugin is one extension of the render pipeline. Implementations must be
// safe for concurrent renders: transforms and code block handlers run on
// arbitrary goroutines.
type Plugin interface {
	// ID is the stable registry key, unique per plugin.
	ID() string
	// Defaults returns the plugin's default settings. The registry merges
	// stored overrides and runtime updates on top of a copy.
	Defaults() map[string]any
	// Transforms returns the tree rewrites this plugin contributes, in
	// execution order.
	Transforms() []Transform
	// HandleCodeBlock renders a fenced code block. Returning false passes
	// the block to the next plugin in pipeline order.
	HandleCodeBlock(language, code string) (string, bool)
	// Activate prepares the plugin for rendering. An error leaves the
	// plugin inactive.
	Activate(ctx context.Context, pc Context) error
	// Deactivate releases whatever Activate acquired.
	Deactivate(ctx context.Context) error
	// OnSettingsChange delivers the new effective settings to an active
	// plugin. Implementations must not block.
	OnSettingsChange(settings map[string]any)
	// API exposes optional host-callable entry points, keyed by name. May
	// return nil.
	API() map[string]any
}

// Failure records one plugin error during a render. The render itself
// continues; failures surface as diagnostics.
type Failure struct {
	Plugin string `json:"plugin"`
	Stage  string `json:"stage"`
	Err    string `json:"error"`
}
