// Package discovery publishes this member in etcd under a lease and watches
// the member prefix so the membership registry follows the cluster.
package discovery

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgrid/internal/logger"
	"github.com/ryandielhenn/zephyrgrid/pkg/membership"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func NewClient(endpoints []string, dialTimeout time.Duration) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
}

// record is the value stored under <prefix><member id>.
type record struct {
	Addr   string   `json:"addr"`
	Groups []string `json:"groups,omitempty"`
}

func encode(m membership.Member) (string, error) {
	b, err := json.Marshal(record{Addr: m.Addr, Groups: m.Groups})
	return string(b), err
}

// decode also accepts a bare address value.
func decode(prefix string, key, value []byte) (membership.Member, error) {
	id := strings.TrimPrefix(string(key), prefix)
	if id == "" || id == string(key) {
		return membership.Member{}, fmt.Errorf("key %q outside prefix %q", key, prefix)
	}
	v := strings.TrimSpace(string(value))
	if !strings.HasPrefix(v, "{") {
		return membership.Member{ID: id, Addr: v}, nil
	}
	var rec record
	if err := json.Unmarshal(value, &rec); err != nil {
		return membership.Member{}, fmt.Errorf("member %s: %w", id, err)
	}
	return membership.Member{ID: id, Addr: rec.Addr, Groups: rec.Groups}, nil
}

// view is the set of members currently published under a prefix.
type view struct {
	prefix  string
	members map[string]membership.Member
}

func newView(prefix string) *view {
	return &view{prefix: prefix, members: map[string]membership.Member{}}
}

func (v *view) apply(typ mvccpb.Event_EventType, key, value []byte) error {
	switch typ {
	case mvccpb.PUT:
		m, err := decode(v.prefix, key, value)
		if err != nil {
			return err
		}
		v.members[m.ID] = m
	case mvccpb.DELETE:
		delete(v.members, strings.TrimPrefix(string(key), v.prefix))
	}
	return nil
}

func (v *view) list() []membership.Member {
	out := make([]membership.Member, 0, len(v.members))
	for _, m := range v.members {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b membership.Member) int { return strings.Compare(a.ID, b.ID) })
	return out
}

type Discovery struct {
	cli    *clientv3.Client
	prefix string
	ttl    int64
	log    *zap.Logger

	mu    sync.Mutex
	lease clientv3.LeaseID
}

func New(cli *clientv3.Client, prefix string, ttl int64, log *zap.Logger) *Discovery {
	if log == nil {
		log = logger.Named("discovery")
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Discovery{cli: cli, prefix: prefix, ttl: ttl, log: log}
}

// Register publishes m under a lease that is kept alive until ctx ends or
// Deregister is called.
func (d *Discovery) Register(ctx context.Context, m membership.Member) error {
	val, err := encode(m)
	if err != nil {
		return err
	}
	lease, err := d.cli.Grant(ctx, d.ttl)
	if err != nil {
		return fmt.Errorf("grant lease: %w", err)
	}
	if _, err := d.cli.Put(ctx, d.prefix+m.ID, val, clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("register %s: %w", m.ID, err)
	}
	ka, err := d.cli.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("keepalive: %w", err)
	}
	go func() {
		for range ka {
		}
		d.log.Warn("lease keepalive stopped", logger.MemberID(m.ID))
	}()

	d.mu.Lock()
	d.lease = lease.ID
	d.mu.Unlock()
	d.log.Info("member registered", logger.MemberID(m.ID), zap.String("addr", m.Addr), zap.Int64("ttl", d.ttl))
	return nil
}

// Deregister revokes the lease, removing this member's key.
func (d *Discovery) Deregister(ctx context.Context) error {
	d.mu.Lock()
	lease := d.lease
	d.lease = 0
	d.mu.Unlock()
	if lease == 0 {
		return nil
	}
	_, err := d.cli.Revoke(ctx, lease)
	return err
}

// List returns the published members and the revision they were read at.
func (d *Discovery) List(ctx context.Context) ([]membership.Member, int64, error) {
	resp, err := d.cli.Get(ctx, d.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, 0, err
	}
	v := newView(d.prefix)
	for _, kv := range resp.Kvs {
		if err := v.apply(mvccpb.PUT, kv.Key, kv.Value); err != nil {
			d.log.Warn("skipping member record", zap.Error(err))
		}
	}
	return v.list(), resp.Header.Revision, nil
}

// Watch lists the members, calls fn with them, then calls fn again with the
// full member list after every change. It returns when ctx ends.
func (d *Discovery) Watch(ctx context.Context, fn func([]membership.Member)) error {
	members, rev, err := d.List(ctx)
	if err != nil {
		return err
	}
	v := newView(d.prefix)
	for _, m := range members {
		v.members[m.ID] = m
	}
	fn(v.list())

	wch := d.cli.Watch(ctx, d.prefix, clientv3.WithPrefix(), clientv3.WithRev(rev+1))
	for resp := range wch {
		if err := resp.Err(); err != nil {
			d.log.Warn("member watch error", zap.Error(err))
			continue
		}
		for _, ev := range resp.Events {
			if err := v.apply(ev.Type, ev.Kv.Key, ev.Kv.Value); err != nil {
				d.log.Warn("skipping member record", zap.Error(err))
			}
		}
		fn(v.list())
	}
	return ctx.Err()
}
