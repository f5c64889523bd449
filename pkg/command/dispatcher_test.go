package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgrid/pkg/extension"
	"github.com/ryandielhenn/zephyrgrid/pkg/membership"
	"github.com/ryandielhenn/zephyrgrid/pkg/report"
)

type fakeTransport struct {
	mu      sync.Mutex
	called  []string
	delay   map[string]time.Duration
	failing map[string]error
}

func (f *fakeTransport) Apply(ctx context.Context, m membership.Member, d Descriptor) (report.Outcome, error) {
	f.mu.Lock()
	f.called = append(f.called, m.ID)
	f.mu.Unlock()
	if dl := f.delay[m.ID]; dl > 0 {
		select {
		case <-time.After(dl):
		case <-ctx.Done():
			return report.Outcome{}, ctx.Err()
		}
	}
	if err := f.failing[m.ID]; err != nil {
		return report.Outcome{}, err
	}
	return report.Succeeded(m.ID, "altered "+d.Region), nil
}

func (f *fakeTransport) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.called...)
}

func threeMembers(t *testing.T) *membership.Registry {
	t.Helper()
	r := membership.NewRegistry(zap.NewNop())
	ctx := context.Background()
	require.NoError(t, r.Join(ctx, membership.Member{ID: "server-3"}))
	require.NoError(t, r.Join(ctx, membership.Member{ID: "server-1", Groups: []string{"group1"}}))
	require.NoError(t, r.Join(ctx, membership.Member{ID: "server-2"}))
	return r
}

func listenerDesc(sel membership.Selector) Descriptor {
	return Descriptor{Region: "regionA", Selector: sel, Changes: map[extension.Kind]Value{
		extension.KindListener: Set(ref("A")),
	}}
}

func TestDispatchOrdersRowsByMemberID(t *testing.T) {
	tr := &fakeTransport{delay: map[string]time.Duration{"server-1": 30 * time.Millisecond}}
	d := NewDispatcher(threeMembers(t), tr, Options{Timeout: time.Second, Log: zap.NewNop()})

	rep, err := d.Dispatch(context.Background(), listenerDesc(membership.All()))
	require.NoError(t, err)
	assert.Equal(t, report.AllSuccess, rep.Status)
	require.Len(t, rep.Outcomes, 3)
	for i, id := range []string{"server-1", "server-2", "server-3"} {
		assert.Equal(t, id, rep.Outcomes[i].Member)
	}
	assert.NotEmpty(t, rep.ID)
}

func TestDispatchEmptySelectionContactsNobody(t *testing.T) {
	tr := &fakeTransport{}
	d := NewDispatcher(threeMembers(t), tr, Options{Log: zap.NewNop()})

	for _, sel := range []membership.Selector{membership.Group("nope"), membership.Explicit("ghost")} {
		rep, err := d.Dispatch(context.Background(), listenerDesc(sel))
		require.NoError(t, err)
		assert.Equal(t, report.Empty, rep.Status)
		assert.Empty(t, rep.Outcomes)
	}
	assert.Empty(t, tr.calls())
}

func TestDispatchMalformedFailsBeforeContact(t *testing.T) {
	tr := &fakeTransport{}
	d := NewDispatcher(threeMembers(t), tr, Options{Log: zap.NewNop()})

	desc := Descriptor{Region: "regionA", Changes: map[extension.Kind]Value{
		extension.KindLoader: Set(ref("A"), ref("B")),
	}}
	_, err := d.Dispatch(context.Background(), desc)
	require.ErrorIs(t, err, ErrMalformedDescriptor)
	assert.Empty(t, tr.calls())
}

func TestDispatchTimeoutIsPerMember(t *testing.T) {
	tr := &fakeTransport{delay: map[string]time.Duration{"server-2": time.Second}}
	d := NewDispatcher(threeMembers(t), tr, Options{Timeout: 50 * time.Millisecond, Log: zap.NewNop()})

	start := time.Now()
	rep, err := d.Dispatch(context.Background(), listenerDesc(membership.All()))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
	assert.Equal(t, report.Partial, rep.Status)

	row, ok := rep.Row("server-2")
	require.True(t, ok)
	assert.Equal(t, report.Failure, row.Status)
	assert.Equal(t, report.CauseTimeout, row.Cause)
	assert.Equal(t, 2, rep.Successes())
}

func TestDispatchTransportErrorBecomesRow(t *testing.T) {
	tr := &fakeTransport{failing: map[string]error{"server-3": errors.New("connection refused")}}
	d := NewDispatcher(threeMembers(t), tr, Options{Log: zap.NewNop()})

	rep, err := d.Dispatch(context.Background(), listenerDesc(membership.All()))
	require.NoError(t, err)
	row, _ := rep.Row("server-3")
	assert.Equal(t, report.CauseTransport, row.Cause)
	assert.Contains(t, row.Detail, "connection refused")
}

func TestDispatchReportsMissingExplicitMembers(t *testing.T) {
	tr := &fakeTransport{}
	members := threeMembers(t)

	d := NewDispatcher(members, tr, Options{Log: zap.NewNop()})
	rep, err := d.Dispatch(context.Background(), listenerDesc(membership.Explicit("server-2", "ghost")))
	require.NoError(t, err)
	require.Len(t, rep.Outcomes, 2)
	assert.Equal(t, "server-2", rep.Outcomes[0].Member)
	assert.Equal(t, "ghost", rep.Outcomes[1].Member)
	assert.Equal(t, report.CauseMemberMissing, rep.Outcomes[1].Cause)
	assert.Equal(t, report.Partial, rep.Status)

	d = NewDispatcher(members, tr, Options{IgnoreMissing: true, Log: zap.NewNop()})
	rep, err = d.Dispatch(context.Background(), listenerDesc(membership.Explicit("server-2", "ghost")))
	require.NoError(t, err)
	require.Len(t, rep.Outcomes, 1)
	assert.Equal(t, report.AllSuccess, rep.Status)
}

func TestDispatchCancelled(t *testing.T) {
	tr := &fakeTransport{delay: map[string]time.Duration{"server-1": time.Second, "server-2": time.Second, "server-3": time.Second}}
	d := NewDispatcher(threeMembers(t), tr, Options{Log: zap.NewNop()})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	rep, err := d.Dispatch(ctx, listenerDesc(membership.All()))
	require.NoError(t, err)
	assert.Equal(t, report.AllFailed, rep.Status)
	for _, o := range rep.Outcomes {
		assert.Equal(t, report.CauseCancelled, o.Cause)
	}
}
