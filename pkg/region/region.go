// Package region is a minimal live data region: an LRU/TTL store plus the
// pluggable listeners, loader and writer that observe and shape its entry
// operations.
//
// The attribute set is one immutable value behind an atomic pointer. Every
// entry operation loads it once and uses that copy throughout, so an
// alteration is seen entirely before or entirely after any single operation.
package region

import (
	"context"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgrid/internal/logger"
	"github.com/ryandielhenn/zephyrgrid/pkg/extension"
)

// Attributes is the pluggable behaviour of a region. Values are never mutated
// once published; Alter builds a new one.
type Attributes struct {
	Listeners []extension.Instance
	Loader    *extension.Instance
	Writer    *extension.Instance
}

func (a Attributes) clone() Attributes {
	a.Listeners = slices.Clone(a.Listeners)
	if a.Loader != nil {
		l := *a.Loader
		a.Loader = &l
	}
	if a.Writer != nil {
		w := *a.Writer
		a.Writer = &w
	}
	return a
}

// Description names the current extensions per kind.
type Description struct {
	Name      string   `json:"name"`
	Entries   int      `json:"entries"`
	Listeners []string `json:"listeners"`
	Loader    string   `json:"loader,omitempty"`
	Writer    string   `json:"writer,omitempty"`
}

type Region struct {
	name  string
	store *store
	attrs atomic.Pointer[Attributes]
	ttl   time.Duration
	log   *zap.Logger
}

func newRegion(name string, capacityBytes int, ttl time.Duration, log *zap.Logger) *Region {
	r := &Region{name: name, store: newStore(capacityBytes), ttl: ttl, log: log}
	r.attrs.Store(&Attributes{})
	return r
}

func (r *Region) Name() string { return r.name }

// FullPath is the region name as operators see it, with a leading slash.
func (r *Region) FullPath() string { return "/" + r.name }

// Attributes returns a copy of the live attribute set.
func (r *Region) Attributes() Attributes {
	return r.attrs.Load().clone()
}

// Alter publishes fn's result as the new attribute set. fn receives a private
// copy and may be called more than once if alterations race.
func (r *Region) Alter(fn func(Attributes) Attributes) Attributes {
	for {
		cur := r.attrs.Load()
		next := fn(cur.clone())
		if r.attrs.CompareAndSwap(cur, &next) {
			return next
		}
	}
}

func (r *Region) Describe() Description {
	a := r.attrs.Load()
	d := Description{Name: r.FullPath(), Entries: r.store.len(), Listeners: make([]string, 0, len(a.Listeners))}
	for _, l := range a.Listeners {
		d.Listeners = append(d.Listeners, l.Name)
	}
	if a.Loader != nil {
		d.Loader = a.Loader.Name
	}
	if a.Writer != nil {
		d.Writer = a.Writer.Name
	}
	return d
}

func (r *Region) Len() int { return r.store.len() }

// Put stores val under key. A writer may veto; listeners run after the store.
func (r *Region) Put(ctx context.Context, key string, val []byte) error {
	a := r.attrs.Load()
	ev := extension.Event{Region: r.name, Key: key, Op: extension.OpCreate, New: val}
	if old, ok := r.store.peek(key); ok {
		ev.Op, ev.Old = extension.OpUpdate, old
	}
	if err := r.before(ctx, a, ev); err != nil {
		return err
	}
	r.store.put(key, val, r.ttl)
	r.after(ctx, a, ev)
	return nil
}

// Get returns the value for key, consulting the loader on a miss. A loaded
// value is stored and announced to listeners as a create.
func (r *Region) Get(ctx context.Context, key string) ([]byte, bool, error) {
	a := r.attrs.Load()
	if v, ok := r.store.get(key); ok {
		return v, true, nil
	}
	if a.Loader == nil {
		return nil, false, nil
	}
	v, ok, err := a.Loader.Loader().Load(ctx, r.name, key)
	if err != nil || !ok {
		return nil, false, err
	}
	ev := extension.Event{Region: r.name, Key: key, Op: extension.OpCreate, New: v, Loaded: true}
	r.store.put(key, v, r.ttl)
	r.after(ctx, a, ev)
	return v, true, nil
}

// Delete removes key. It reports false for a missing key; the writer is not
// consulted then.
func (r *Region) Delete(ctx context.Context, key string) (bool, error) {
	a := r.attrs.Load()
	old, ok := r.store.peek(key)
	if !ok {
		return false, nil
	}
	ev := extension.Event{Region: r.name, Key: key, Op: extension.OpDestroy, Old: old}
	if err := r.before(ctx, a, ev); err != nil {
		return false, err
	}
	if _, ok = r.store.delete(key); !ok {
		return false, nil
	}
	r.after(ctx, a, ev)
	return true, nil
}

func (r *Region) before(ctx context.Context, a *Attributes, ev extension.Event) error {
	if a.Writer == nil {
		return nil
	}
	if err := a.Writer.Writer().BeforeEvent(ctx, ev); err != nil {
		r.log.Debug("entry operation vetoed", logger.Region(r.name), zap.String("key", ev.Key), zap.Error(err))
		return err
	}
	return nil
}

func (r *Region) after(ctx context.Context, a *Attributes, ev extension.Event) {
	for _, l := range a.Listeners {
		l.Listener().AfterEvent(ctx, ev)
	}
}

// Normalize strips the leading slash operators use for region paths.
func Normalize(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "/")
}
