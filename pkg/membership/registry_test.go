package membership

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func threeServers(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(zap.NewNop())
	ctx := context.Background()
	require.NoError(t, r.Join(ctx, Member{ID: "server-3", Addr: "s3:8080"}))
	require.NoError(t, r.Join(ctx, Member{ID: "server-1", Addr: "s1:8080", Groups: []string{"group1"}}))
	require.NoError(t, r.Join(ctx, Member{ID: "server-2", Addr: "s2:8080"}))
	return r
}

func ids(ms []Member) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}

func TestResolveAllIsOrderedByID(t *testing.T) {
	r := threeServers(t)
	res := r.Resolve(All())
	assert.Equal(t, []string{"server-1", "server-2", "server-3"}, ids(res.Members))
	assert.Empty(t, res.Missing)
	for _, m := range res.Members {
		assert.Equal(t, StateAlive, m.State)
	}
}

func TestResolveGroup(t *testing.T) {
	r := threeServers(t)
	assert.Equal(t, []string{"server-1"}, ids(r.Resolve(Group("group1")).Members))
	assert.Empty(t, r.Resolve(Group("no-such-group")).Members)
}

func TestResolveExplicitDropsUnknown(t *testing.T) {
	r := threeServers(t)
	res := r.Resolve(Explicit("server-3", "ghost", "server-1", "server-3"))
	assert.Equal(t, []string{"server-1", "server-3"}, ids(res.Members))
	assert.Equal(t, []string{"ghost"}, res.Missing)
}

func TestJoinHookFailureKeepsMemberJoining(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	boom := errors.New("sync failed")
	r.OnJoin(func(context.Context, Member) error { return boom })

	err := r.Join(context.Background(), Member{ID: "server-9"})
	require.ErrorIs(t, err, boom)

	m, ok := r.Get("server-9")
	require.True(t, ok)
	assert.Equal(t, StateJoining, m.State)
	assert.Empty(t, r.Resolve(All()).Members, "JOINING members are never targeted")
	assert.Equal(t, []string{"server-9"}, r.Resolve(Explicit("server-9")).Missing)
}

func TestJoinHookSeesJoiningMember(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	var seen []State
	r.OnJoin(func(_ context.Context, m Member) error {
		cur, _ := r.Get(m.ID)
		seen = append(seen, cur.State)
		return nil
	})
	require.NoError(t, r.Join(context.Background(), Member{ID: "a"}))
	require.NoError(t, r.Join(context.Background(), Member{ID: "a"}), "rejoin of ALIVE member is a no-op")
	assert.Equal(t, []State{StateJoining}, seen)
}

func TestLeave(t *testing.T) {
	r := threeServers(t)
	m, err := r.Leave("server-2")
	require.NoError(t, err)
	assert.Equal(t, StateDeparted, m.State)
	assert.Equal(t, []string{"server-1", "server-3"}, ids(r.Resolve(All()).Members))

	_, err = r.Leave("server-2")
	require.ErrorIs(t, err, ErrUnknownMember)
}

func TestSyncJoinsAndLeaves(t *testing.T) {
	r := threeServers(t)
	err := r.Sync(context.Background(), []Member{{ID: "server-1"}, {ID: "server-4"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"server-1", "server-4"}, ids(r.Members()))
	m, _ := r.Get("server-1")
	assert.Equal(t, []string{"group1"}, m.Groups, "group set is fixed at join time")
}

func TestSlowJoinDoesNotHoldUpSync(t *testing.T) {
	r := threeServers(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	r.OnJoin(func(_ context.Context, m Member) error {
		if m.ID == "slow" {
			close(entered)
			<-release
		}
		return nil
	})

	done := make(chan error, 1)
	go func() {
		done <- r.Sync(context.Background(), []Member{{ID: "server-1"}, {ID: "slow"}, {ID: "fast"}})
	}()
	<-entered

	require.Eventually(t, func() bool {
		m, ok := r.Get("fast")
		return ok && m.State == StateAlive
	}, time.Second, 5*time.Millisecond)
	_, ok := r.Get("server-2")
	assert.False(t, ok, "departures are applied before joins")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"fast", "server-1", "slow"}, ids(r.Resolve(All()).Members))
}

func TestSnapshotIsolation(t *testing.T) {
	r := threeServers(t)
	res := r.Resolve(All())
	res.Members[0].Groups[0] = "mutated"
	m, _ := r.Get("server-1")
	assert.Equal(t, []string{"group1"}, m.Groups)
}

func TestConcurrentResolveDuringChurn(t *testing.T) {
	r := threeServers(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for range 500 {
				if i%2 == 0 {
					_ = r.Join(ctx, Member{ID: "churn"})
					_, _ = r.Leave("churn")
					continue
				}
				for _, m := range r.Resolve(All()).Members {
					if m.State != StateAlive {
						t.Errorf("resolved non-alive member %s", m.ID)
						return
					}
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestParseSelector(t *testing.T) {
	cases := map[string]Selector{
		"":                   All(),
		"all":                All(),
		"group:group1":       Group("group1"),
		"members:a, b":       Explicit("a", "b"),
		" members:server-1 ": Explicit("server-1"),
	}
	for in, want := range cases {
		got, err := ParseSelector(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
		back, err := ParseSelector(got.String())
		require.NoError(t, err)
		assert.Equal(t, got, back)
	}
	for _, bad := range []string{"group:", "members:", "nodes:x"} {
		_, err := ParseSelector(bad)
		assert.Error(t, err, bad)
	}
}
