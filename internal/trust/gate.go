package trust

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Action is what the renderer should do with a document's script content.
type Action int

const (
	ActionPrompt Action = iota
	ActionAllow
	ActionDeny
)

func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionDeny:
		return "deny"
	default:
		return "prompt"
	}
}

// Verdict is the gate's answer for one render session.
type Verdict struct {
	Action       Action
	Capabilities []Capability
	Persistent   bool
}

// Gate tracks per-file script trust decisions. Persistent records are
// mirrored from the Store at load time and written through on every
// persistent decision; session records live only in the gate. A session
// record shadows the persistent one for the same file until the document
// is closed.
type Gate struct {
	store Store
	log   *slog.Logger

	mu         sync.RWMutex
	persistent map[string]Record
	session    map[string]Record
	degraded   bool

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewGate(store Store, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{
		store:      store,
		log:        log,
		persistent: make(map[string]Record),
		session:    make(map[string]Record),
		locks:      make(map[string]*sync.Mutex),
	}
}

// Load reads persisted decisions into the gate. On failure the gate stays
// usable with session-scoped decisions only and every file prompts again.
func (g *Gate) Load(ctx context.Context) error {
	records, err := g.store.Load(ctx)
	if err != nil {
		g.mu.Lock()
		g.degraded = true
		g.mu.Unlock()
		g.log.Warn("trust store unreadable, decisions are session-scoped", "error", err)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	mirror := make(map[string]Record, len(records))
	for _, rec := range records {
		mirror[rec.FileID] = rec
	}
	g.mu.Lock()
	g.persistent = mirror
	g.degraded = false
	g.mu.Unlock()
	return nil
}

// Degraded reports whether the gate lost its persistent store.
func (g *Gate) Degraded() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.degraded
}

// Evaluate answers whether scripts in the given document may run. It is
// consulted once per render session; level changes apply on the next call,
// never retroactively to a running script instance.
func (g *Gate) Evaluate(ctx context.Context, fileID string, hasScript bool, level Level) Verdict {
	if !hasScript {
		return Verdict{Action: ActionAllow}
	}
	lock := g.fileLock(fileID)
	lock.Lock()
	defer lock.Unlock()

	rec, ok := g.lookup(fileID)
	if !ok {
		return Verdict{Action: ActionPrompt}
	}
	switch rec.Decision {
	case Allowed:
		return Verdict{
			Action:       ActionAllow,
			Capabilities: ResolveCapabilities(level),
			Persistent:   rec.Persistent,
		}
	case Denied:
		return Verdict{Action: ActionDeny, Persistent: rec.Persistent}
	default:
		return Verdict{Action: ActionPrompt}
	}
}

// CurrentDecision returns the effective decision for a file identity.
func (g *Gate) CurrentDecision(fileID string) Decision {
	if rec, ok := g.lookup(fileID); ok {
		return rec.Decision
	}
	return NotYetDecided
}

// RecordDecision stores a prompt or API decision. Persistent decisions are
// flushed to the store before this returns; if the store write fails the
// decision is kept for the session and ErrStoreUnavailable is returned so
// the caller can tell the user persistence failed.
func (g *Gate) RecordDecision(ctx context.Context, fileID string, decision Decision, persistent bool) error {
	if decision != Allowed && decision != Denied {
		return fmt.Errorf("trust: cannot record decision %q", decision)
	}
	lock := g.fileLock(fileID)
	lock.Lock()
	defer lock.Unlock()

	rec := Record{
		FileID:     fileID,
		Decision:   decision,
		Persistent: persistent,
		DecidedAt:  time.Now().UTC(),
	}
	if !persistent {
		g.mu.Lock()
		g.session[fileID] = rec
		g.mu.Unlock()
		return nil
	}

	if err := g.store.Put(ctx, rec); err != nil {
		rec.Persistent = false
		g.mu.Lock()
		g.session[fileID] = rec
		g.degraded = true
		g.mu.Unlock()
		g.log.Warn("trust store write failed, decision kept for this session",
			"file_id", fileID, "error", err)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	g.mu.Lock()
	g.persistent[fileID] = rec
	delete(g.session, fileID)
	g.mu.Unlock()
	return nil
}

// RecordPromptOutcome translates a UI prompt answer into a decision.
func (g *Gate) RecordPromptOutcome(ctx context.Context, fileID, outcome string) error {
	switch outcome {
	case PromptAllow:
		return g.RecordDecision(ctx, fileID, Allowed, false)
	case PromptAllowPermanently:
		return g.RecordDecision(ctx, fileID, Allowed, true)
	case PromptDeny:
		return g.RecordDecision(ctx, fileID, Denied, false)
	default:
		return fmt.Errorf("trust: unknown prompt outcome %q", outcome)
	}
}

// Revoke removes both the persistent and the session decision for a file,
// returning it to the prompt state.
func (g *Gate) Revoke(ctx context.Context, fileID string) error {
	lock := g.fileLock(fileID)
	lock.Lock()
	defer lock.Unlock()

	g.mu.RLock()
	_, hadPersistent := g.persistent[fileID]
	g.mu.RUnlock()

	if hadPersistent {
		if err := g.store.Delete(ctx, fileID); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	g.mu.Lock()
	delete(g.persistent, fileID)
	delete(g.session, fileID)
	g.mu.Unlock()
	return nil
}

// ForgetSession drops the session-scoped decision for a file. Called when a
// document is closed so a session deny prompts again on reopen. Persistent
// decisions are untouched.
func (g *Gate) ForgetSession(fileID string) {
	g.mu.Lock()
	delete(g.session, fileID)
	g.mu.Unlock()
}

// List returns every known decision ordered by file identity. A session
// record shadows the persistent record for the same file.
func (g *Gate) List() []Record {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Record, 0, len(g.persistent)+len(g.session))
	for _, rec := range g.session {
		out = append(out, rec)
	}
	for id, rec := range g.persistent {
		if _, shadowed := g.session[id]; shadowed {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileID < out[j].FileID })
	return out
}

func (g *Gate) lookup(fileID string) (Record, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if rec, ok := g.session[fileID]; ok {
		return rec, true
	}
	rec, ok := g.persistent[fileID]
	return rec, ok
}

// fileLock returns the mutex for one file identity so decisions for
// different files never serialize.
func (g *Gate) fileLock(fileID string) *sync.Mutex {
	g.lockMu.Lock()
	defer g.lockMu.Unlock()
	lock, ok := g.locks[fileID]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[fileID] = lock
	}
	return lock
}
