package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dgallion1/docrender/internal/markdown"
)

// entry is one registered plugin with its activation state and settings
// layers. Entries are immutable once published; writers clone before
// mutating.
type entry struct {
	plugin    Plugin
	active    bool
	session   map[string]any // runtime UpdateSettings deltas
	effective map[string]any // defaults + stored overrides + session
}

func (e *entry) clone() *entry {
	return &entry{
		plugin:    e.plugin,
		active:    e.active,
		session:   copyMap(e.session),
		effective: copyMap(e.effective),
	}
}

// snapshot is one published registry state. order holds pipeline order;
// replacing a plugin keeps its position.
type snapshot struct {
	version uint64
	order   []string
	entries map[string]*entry
}

func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		version: s.version + 1,
		order:   append([]string(nil), s.order...),
		entries: make(map[string]*entry, len(s.entries)),
	}
	for id, e := range s.entries {
		next.entries[id] = e
	}
	return next
}

// Registry hosts the plugin pipeline. Reads are lock free through the
// current snapshot; writers serialize on a mutex and publish a new
// snapshot with a bumped version. The version feeds render cache keys, so
// any pipeline change invalidates cached output.
type Registry struct {
	log       *slog.Logger
	mu        sync.Mutex
	cur       atomic.Pointer[snapshot]
	overrides map[string]map[string]any // stored settings by plugin ID, guarded by mu
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{log: log, overrides: make(map[string]map[string]any)}
	r.cur.Store(&snapshot{version: 1, entries: make(map[string]*entry)})
	return r
}

// Register adds a plugin, or replaces the one sharing its ID. A replaced
// plugin is deactivated first and its successor starts inactive at the
// same pipeline position.
func (r *Registry) Register(ctx context.Context, p Plugin) error {
	id := p.ID()
	if id == "" {
		return fmt.Errorf("register plugin: empty ID")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.cur.Load().clone()
	if old, ok := next.entries[id]; ok {
		if old.active {
			if err := old.plugin.Deactivate(ctx); err != nil {
				r.log.Warn("deactivating replaced plugin failed", "plugin", id, "error", err)
			}
		}
	} else {
		next.order = append(next.order, id)
	}
	next.entries[id] = &entry{
		plugin:    p,
		effective: mergeMaps(p.Defaults(), r.overrides[id]),
	}
	r.cur.Store(next)
	r.log.Info("plugin registered", "plugin", id, "version", next.version)
	return nil
}

// Deregister removes a plugin, deactivating it first when active.
func (r *Registry) Deregister(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.cur.Load().clone()
	e, ok := next.entries[id]
	if !ok {
		return fmt.Errorf("deregister %q: %w", id, ErrNotFound)
	}
	if e.active {
		if err := e.plugin.Deactivate(ctx); err != nil {
			r.log.Warn("deactivating removed plugin failed", "plugin", id, "error", err)
		}
	}
	delete(next.entries, id)
	for i, v := range next.order {
		if v == id {
			next.order = append(next.order[:i], next.order[i+1:]...)
			break
		}
	}
	r.cur.Store(next)
	r.log.Info("plugin deregistered", "plugin", id)
	return nil
}

// Activate brings a plugin into the pipeline. Activating an active plugin
// is a no-op. When the plugin's Activate callback fails it stays inactive.
func (r *Registry) Activate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.cur.Load()
	e, ok := cur.entries[id]
	if !ok {
		return fmt.Errorf("activate %q: %w", id, ErrNotFound)
	}
	if e.active {
		return nil
	}
	pc := Context{Settings: copyMap(e.effective), Logger: r.log.With("plugin", id)}
	if err := e.plugin.Activate(ctx, pc); err != nil {
		return fmt.Errorf("activate %q: %w", id, err)
	}
	next := cur.clone()
	ne := e.clone()
	ne.active = true
	next.entries[id] = ne
	r.cur.Store(next)
	r.log.Info("plugin activated", "plugin", id)
	return nil
}

// Deactivate removes a plugin from the pipeline and drops its runtime
// settings, falling back to defaults plus stored overrides. Deactivating
// an inactive plugin is a no-op.
func (r *Registry) Deactivate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.cur.Load()
	e, ok := cur.entries[id]
	if !ok {
		return fmt.Errorf("deactivate %q: %w", id, ErrNotFound)
	}
	if !e.active {
		return nil
	}
	err := e.plugin.Deactivate(ctx)
	next := cur.clone()
	ne := e.clone()
	ne.active = false
	ne.session = nil
	ne.effective = mergeMaps(e.plugin.Defaults(), r.overrides[id])
	next.entries[id] = ne
	r.cur.Store(next)
	r.log.Info("plugin deactivated", "plugin", id)
	if err != nil {
		return fmt.Errorf("deactivate %q: %w", id, err)
	}
	return nil
}

// UpdateSettings merges patch into an active plugin's settings and
// notifies it. Updating an inactive plugin is an error so callers cannot
// mistake a dormant change for a live one.
func (r *Registry) UpdateSettings(ctx context.Context, id string, patch map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.cur.Load()
	e, ok := cur.entries[id]
	if !ok {
		return fmt.Errorf("update settings %q: %w", id, ErrNotFound)
	}
	if !e.active {
		return fmt.Errorf("update settings %q: %w", id, ErrInactive)
	}
	next := cur.clone()
	ne := e.clone()
	ne.session = mergeMaps(ne.session, patch)
	ne.effective = mergeMaps(e.plugin.Defaults(), r.overrides[id], ne.session)
	next.entries[id] = ne
	r.cur.Store(next)
	ne.plugin.OnSettingsChange(copyMap(ne.effective))
	return nil
}

// ApplySettings replaces the stored per-plugin overrides, recomputes every
// plugin's effective settings and notifies the active ones. Called at
// startup and on every settings reload.
func (r *Registry) ApplySettings(overrides map[string]map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.overrides = make(map[string]map[string]any, len(overrides))
	for id, m := range overrides {
		r.overrides[id] = copyMap(m)
	}
	next := r.cur.Load().clone()
	var notify []*entry
	for id, e := range next.entries {
		ne := e.clone()
		ne.effective = mergeMaps(e.plugin.Defaults(), r.overrides[id], ne.session)
		next.entries[id] = ne
		if ne.active {
			notify = append(notify, ne)
		}
	}
	r.cur.Store(next)
	for _, e := range notify {
		e.plugin.OnSettingsChange(copyMap(e.effective))
	}
}

// Current returns the snapshot a render should work against for its whole
// duration.
func (r *Registry) Current() View {
	return View{snap: r.cur.Load(), log: r.log}
}

// Version returns the current snapshot version.
func (r *Registry) Version() uint64 {
	return r.cur.Load().version
}

// Plugins lists the pipeline in order.
func (r *Registry) Plugins() []Info {
	return r.Current().Plugins()
}

// Get returns the Info for one plugin.
func (r *Registry) Get(id string) (Info, bool) {
	v := r.Current()
	e, ok := v.snap.entries[id]
	if !ok {
		return Info{}, false
	}
	return infoFor(id, e), true
}

// Info describes one registered plugin.
type Info struct {
	ID       string         `json:"id"`
	Active   bool           `json:"active"`
	Settings map[string]any `json:"settings,omitempty"`
	APIKeys  []string       `json:"api,omitempty"`
}

func infoFor(id string, e *entry) Info {
	info := Info{ID: id, Active: e.active, Settings: copyMap(e.effective)}
	if api := e.plugin.API(); len(api) > 0 {
		for k := range api {
			info.APIKeys = append(info.APIKeys, k)
		}
		sort.Strings(info.APIKeys)
	}
	return info
}

// View is one immutable registry snapshot. All reads during a render go
// through the view captured at render start.
type View struct {
	snap *snapshot
	log  *slog.Logger
}

func (v View) Version() uint64 {
	return v.snap.version
}

// Plugins lists the snapshot's pipeline in order.
func (v View) Plugins() []Info {
	out := make([]Info, 0, len(v.snap.order))
	for _, id := range v.snap.order {
		out = append(out, infoFor(id, v.snap.entries[id]))
	}
	return out
}

// Transform runs every active plugin's transforms against doc in pipeline
// order. A failing or panicking transform skips that plugin's remaining
// transforms and the render carries on; the failure surfaces as a
// diagnostic. Only context cancellation aborts the walk.
func (v View) Transform(ctx context.Context, doc *markdown.Document) ([]Failure, error) {
	var failures []Failure
	for _, id := range v.snap.order {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		e := v.snap.entries[id]
		if !e.active {
			continue
		}
		pc := Context{Settings: copyMap(e.effective), Logger: v.log.With("plugin", id)}
		for _, tr := range e.plugin.Transforms() {
			if err := runTransform(ctx, tr, pc, doc); err != nil {
				v.log.Warn("plugin transform failed", "plugin", id, "error", err)
				failures = append(failures, Failure{Plugin: id, Stage: "transform", Err: err.Error()})
				break
			}
		}
	}
	return failures, nil
}

// HandleCodeBlock offers a fenced code block to active plugins in pipeline
// order. The first plugin claiming the block wins; a panicking handler
// counts as no match.
func (v View) HandleCodeBlock(language, code string) (string, bool) {
	out, _, ok := v.ClaimCodeBlock(language, code)
	return out, ok
}

// ClaimCodeBlock is HandleCodeBlock plus the id of the plugin that claimed
// the block, for callers that attribute the work.
func (v View) ClaimCodeBlock(language, code string) (out, plugin string, ok bool) {
	for _, id := range v.snap.order {
		e := v.snap.entries[id]
		if !e.active {
			continue
		}
		out, ok := v.handleOne(id, e.plugin, language, code)
		if ok {
			return out, id, true
		}
	}
	return "", "", false
}

func (v View) handleOne(id string, p Plugin, language, code string) (out string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v.log.Warn("plugin code handler panicked", "plugin", id, "panic", fmt.Sprint(r))
			out, ok = "", false
		}
	}()
	return p.HandleCodeBlock(language, code)
}

func runTransform(ctx context.Context, fn Transform, pc Context, doc *markdown.Document) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, pc, doc)
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func mergeMaps(base map[string]any, layers ...map[string]any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for _, l := range layers {
		for k, v := range l {
			out[k] = v
		}
	}
	return out
}
