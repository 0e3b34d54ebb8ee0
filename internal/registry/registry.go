package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/BRAVO68WEB/devworld/internal/pac"
)

// Store persists the full registry contents. Load must treat missing data as
// an empty map.
type Store interface {
	Load(ctx context.Context) (map[string]pac.Entry, error)
	Save(ctx context.Context, entries map[string]pac.Entry) error
}

// Applier pushes a compiled script to the host's proxy subsystem.
type Applier interface {
	Apply(ctx context.Context, script string) error
}

// PersistenceError wraps a Store failure. It is logged, never returned to
// the caller of Add.
type PersistenceError struct{ Err error }

func (e *PersistenceError) Error() string { return "persist entries: " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// ApplyError wraps an Applier failure. Logged like PersistenceError.
type ApplyError struct{ Err error }

func (e *ApplyError) Error() string { return "apply policy: " + e.Err.Error() }
func (e *ApplyError) Unwrap() error { return e.Err }

// Change describes a published registry state.
type Change struct {
	Version uint64
	Entries []pac.Entry
	Script  string
	// Errors holds the PersistenceError and/or ApplyError of this publish.
	Errors []error
}

// Registry maps canonical key to entry. The in-memory map is the source of
// truth; every mutation is persisted in full and recompiled.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]pac.Entry
	script  string
	version uint64

	// pubMu orders fan-out so an older snapshot never overwrites a newer one.
	pubMu     sync.Mutex
	published uint64

	store     Store
	readOnly  atomic.Bool
	applier   Applier
	log       *slog.Logger
	listeners []func(Change)
}

// New returns an empty registry. store and applier may be nil.
func New(store Store, applier Applier, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]pac.Entry),
		script:  pac.Compile(nil),
		store:   store,
		applier: applier,
		log:     logger,
	}
}

// OnChange registers fn to be called after every publish. Not safe to call
// concurrently with mutations.
func (r *Registry) OnChange(fn func(Change)) {
	r.listeners = append(r.listeners, fn)
}

// Add validates entry and stores it under its key, replacing any previous
// entry. Persistence and policy application are attempted independently and
// their failures are only logged.
func (r *Registry) Add(ctx context.Context, entry pac.Entry) error {
	e := entry.Normalize()
	if err := e.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if old, ok := r.entries[e.Key()]; ok && old.OwnerID != e.OwnerID {
		r.log.Info("entry replaced", "key", e.Key(), "previous_owner", old.OwnerID, "owner", e.OwnerID)
	}
	r.entries[e.Key()] = e
	change := r.commitLocked()
	r.mu.Unlock()

	r.publish(ctx, change, true)
	return nil
}

// Remove deletes the entry for key. It reports whether an entry existed.
func (r *Registry) Remove(ctx context.Context, key string) bool {
	r.mu.Lock()
	if _, ok := r.entries[key]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.entries, key)
	change := r.commitLocked()
	r.mu.Unlock()

	r.publish(ctx, change, true)
	return true
}

// Load bulk-hydrates the registry without writing back to the store. Invalid
// entries are skipped and logged. The policy is applied once at the end.
func (r *Registry) Load(ctx context.Context, entries []pac.Entry) int {
	loaded := 0
	r.mu.Lock()
	for _, entry := range entries {
		e := entry.Normalize()
		if err := e.Validate(); err != nil {
			r.log.Warn("skipping stored entry", "key", e.Key(), "error", err)
			continue
		}
		r.entries[e.Key()] = e
		loaded++
	}
	change := r.commitLocked()
	r.mu.Unlock()

	r.publish(ctx, change, false)
	return loaded
}

// Hydrate loads the store's contents. A store failure leaves the registry
// empty but usable, and stops it from saving so the unreadable record is not
// overwritten.
func (r *Registry) Hydrate(ctx context.Context) error {
	if r.store == nil {
		r.Load(ctx, nil)
		return nil
	}
	stored, err := r.store.Load(ctx)
	if err != nil {
		r.readOnly.Store(true)
		r.Load(ctx, nil)
		return &PersistenceError{Err: fmt.Errorf("load: %w", err)}
	}
	entries := make([]pac.Entry, 0, len(stored))
	for _, e := range stored {
		entries = append(entries, e)
	}
	n := r.Load(ctx, entries)
	r.log.Info("registry hydrated", "entries", n)
	return nil
}

// ReadOnly reports whether persistence is disabled because the store could
// not be read.
func (r *Registry) ReadOnly() bool {
	return r.readOnly.Load()
}

// Snapshot returns a copy of all entries sorted by key.
func (r *Registry) Snapshot() []pac.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Get returns the entry stored under key.
func (r *Registry) Get(key string) (pac.Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	return e, ok
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Script returns the compiled policy for the current entries.
func (r *Registry) Script() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.script
}

func (r *Registry) snapshotLocked() []pac.Entry {
	out := make([]pac.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (r *Registry) commitLocked() Change {
	r.version++
	entries := r.snapshotLocked()
	r.script = pac.Compile(entries)
	return Change{Version: r.version, Entries: entries, Script: r.script}
}

func (r *Registry) publish(ctx context.Context, change Change, persist bool) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	if change.Version <= r.published {
		// A newer state has already gone out and contains this change.
		return
	}
	r.published = change.Version

	if persist && r.store != nil && !r.readOnly.Load() {
		saved := make(map[string]pac.Entry, len(change.Entries))
		for _, e := range change.Entries {
			saved[e.Key()] = e
		}
		if err := r.store.Save(ctx, saved); err != nil {
			perr := &PersistenceError{Err: err}
			r.log.Error("persist failed", "error", perr, "version", change.Version)
			change.Errors = append(change.Errors, perr)
		}
	}
	if r.applier != nil {
		if err := r.applier.Apply(ctx, change.Script); err != nil {
			aerr := &ApplyError{Err: err}
			r.log.Error("apply failed", "error", aerr, "version", change.Version)
			change.Errors = append(change.Errors, aerr)
		}
	}
	for _, fn := range r.listeners {
		fn(change)
	}
}
