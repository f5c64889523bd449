// Package membership tracks the cluster's members and their groups and
// resolves selectors to target sets.
//
// The Registry is read-mostly: Resolve, Get and Members read an immutable
// snapshot without locking; Join, Leave and Sync build a new snapshot under
// a writer lock and swap it in.
package membership

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ryandielhenn/zephyrgrid/internal/logger"
	"github.com/ryandielhenn/zephyrgrid/internal/telemetry"
)

var ErrUnknownMember = errors.New("membership: unknown member")

// JoinHook runs while a member is JOINING. A hook error keeps the member out
// of the ALIVE set.
type JoinHook func(ctx context.Context, m Member) error

type snapshot struct {
	byID map[string]Member
	ids  []string // ascending
}

func (s *snapshot) with(m Member) *snapshot {
	next := &snapshot{byID: make(map[string]Member, len(s.byID)+1)}
	for id, v := range s.byID {
		next.byID[id] = v
	}
	next.byID[m.ID] = m
	next.ids = sortedKeys(next.byID)
	return next
}

func (s *snapshot) without(id string) *snapshot {
	next := &snapshot{byID: make(map[string]Member, len(s.byID))}
	for k, v := range s.byID {
		if k != id {
			next.byID[k] = v
		}
	}
	next.ids = sortedKeys(next.byID)
	return next
}

func sortedKeys(m map[string]Member) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

type Registry struct {
	mu    sync.Mutex
	snap  atomic.Pointer[snapshot]
	hooks []JoinHook
	log   *zap.Logger
	now   func() time.Time
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = logger.Named("membership")
	}
	r := &Registry{log: log, now: time.Now}
	r.snap.Store(&snapshot{byID: map[string]Member{}})
	return r
}

// OnJoin registers a hook run for every joining member, in registration order.
func (r *Registry) OnJoin(h JoinHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, h)
}

// Join admits m. It is a no-op for a member that is already ALIVE.
func (r *Registry) Join(ctx context.Context, m Member) error {
	if m.ID == "" {
		return errors.New("membership: member id is required")
	}

	r.mu.Lock()
	if cur, ok := r.snap.Load().byID[m.ID]; ok && cur.State == StateAlive {
		r.mu.Unlock()
		return nil
	}
	m = m.clone()
	m.State = StateJoining
	m.JoinedAt = r.now()
	r.snap.Store(r.snap.Load().with(m))
	hooks := slices.Clone(r.hooks)
	r.mu.Unlock()

	for _, h := range hooks {
		if err := h(ctx, m); err != nil {
			r.log.Warn("join hook failed; member stays JOINING", logger.MemberID(m.ID), zap.Error(err))
			return fmt.Errorf("join %s: %w", m.ID, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.snap.Load().byID[m.ID]
	if !ok {
		// left while joining
		return fmt.Errorf("join %s: %w", m.ID, ErrUnknownMember)
	}
	cur.State = StateAlive
	r.snap.Store(r.snap.Load().with(cur))
	r.updateGauge()
	r.log.Info("member alive", logger.MemberID(m.ID), zap.Strings("groups", m.Groups), zap.String("addr", m.Addr))
	return nil
}

// Leave removes the member. The returned copy carries StateDeparted.
func (r *Registry) Leave(id string) (Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.snap.Load().byID[id]
	if !ok {
		return Member{}, fmt.Errorf("leave %s: %w", id, ErrUnknownMember)
	}
	r.snap.Store(r.snap.Load().without(id))
	r.updateGauge()
	cur.State = StateDeparted
	r.log.Info("member departed", logger.MemberID(id))
	return cur, nil
}

// Sync reconciles the registry with an externally observed member list.
// Members absent from the list leave first; unseen members then join
// concurrently, so one slow join hook does not hold up the others.
func (r *Registry) Sync(ctx context.Context, observed []Member) error {
	seen := make(map[string]struct{}, len(observed))
	for _, m := range observed {
		seen[m.ID] = struct{}{}
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	for _, id := range r.snap.Load().ids {
		if _, ok := seen[id]; !ok {
			if _, err := r.Leave(id); err != nil && !errors.Is(err, ErrUnknownMember) {
				errs = append(errs, err)
			}
		}
	}

	var g errgroup.Group
	for _, m := range observed {
		g.Go(func() error {
			if err := r.Join(ctx, m); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (r *Registry) Get(id string) (Member, bool) {
	m, ok := r.snap.Load().byID[id]
	if !ok {
		return Member{}, false
	}
	return m.clone(), true
}

// Members returns every known member, any state, ordered by id.
func (r *Registry) Members() []Member {
	s := r.snap.Load()
	out := make([]Member, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.byID[id].clone())
	}
	return out
}

// Resolution is the outcome of resolving a selector.
type Resolution struct {
	// Members are ALIVE matches in ascending id order.
	Members []Member
	// Missing lists explicit ids that did not resolve to an ALIVE member.
	Missing []string
}

// Resolve is a pure lookup against the current snapshot.
func (r *Registry) Resolve(sel Selector) Resolution {
	s := r.snap.Load()
	var res Resolution
	switch sel.Kind {
	case SelectExplicit:
		want := make(map[string]struct{}, len(sel.IDs))
		for _, id := range sel.IDs {
			if _, dup := want[id]; dup {
				continue
			}
			want[id] = struct{}{}
			if m, ok := s.byID[id]; !ok || m.State != StateAlive {
				res.Missing = append(res.Missing, id)
			}
		}
		for _, id := range s.ids {
			if _, ok := want[id]; ok && s.byID[id].State == StateAlive {
				res.Members = append(res.Members, s.byID[id].clone())
			}
		}
	default:
		for _, id := range s.ids {
			m := s.byID[id]
			if m.State != StateAlive {
				continue
			}
			if sel.Kind == SelectGroup && !m.InGroup(sel.Group) {
				continue
			}
			res.Members = append(res.Members, m.clone())
		}
	}
	return res
}

// caller holds r.mu
func (r *Registry) updateGauge() {
	n := 0
	for _, m := range r.snap.Load().byID {
		if m.State == StateAlive {
			n++
		}
	}
	telemetry.AliveMembers.Set(float64(n))
}
