package bcast

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryandielhenn/zephyrgrid/pkg/membership"
	"github.com/ryandielhenn/zephyrgrid/pkg/report"
)

func members(ids ...string) []membership.Member {
	out := make([]membership.Member, 0, len(ids))
	for _, id := range ids {
		out = append(out, membership.Member{ID: id, State: membership.StateAlive})
	}
	return out
}

func TestRunKeepsInputOrder(t *testing.T) {
	// later members answer first
	delays := map[string]time.Duration{"a": 60 * time.Millisecond, "b": 30 * time.Millisecond, "c": 0}
	out := Run(context.Background(), Args{Members: members("a", "b", "c")},
		func(ctx context.Context, m membership.Member) report.Outcome {
			time.Sleep(delays[m.ID])
			return report.Succeeded(m.ID, "")
		})
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].Member)
	assert.Equal(t, "b", out[1].Member)
	assert.Equal(t, "c", out[2].Member)
}

func TestRunTimeoutIsPerMember(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	start := time.Now()
	out := Run(context.Background(), Args{Members: members("slow", "fast"), Timeout: 50 * time.Millisecond},
		func(ctx context.Context, m membership.Member) report.Outcome {
			if m.ID == "slow" {
				<-block // ignores ctx on purpose
			}
			return report.Succeeded(m.ID, "")
		})
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, report.Failure, out[0].Status)
	assert.Equal(t, report.CauseTimeout, out[0].Cause)
	assert.Equal(t, report.Success, out[1].Status)
}

func TestRunCancelledByCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 2)
	go func() {
		<-started
		cancel()
	}()
	out := Run(ctx, Args{Members: members("a", "b"), Timeout: time.Minute},
		func(ctx context.Context, m membership.Member) report.Outcome {
			started <- struct{}{}
			<-ctx.Done()
			return report.Failed(m.ID, report.CauseTransport, ctx.Err().Error())
		})
	for _, o := range out {
		assert.Equal(t, report.Failure, o.Status)
		assert.Contains(t, []string{report.CauseCancelled, report.CauseTransport}, o.Cause)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	out := Run(context.Background(), Args{Members: members("a", "b")},
		func(_ context.Context, m membership.Member) report.Outcome {
			if m.ID == "a" {
				panic("listener exploded")
			}
			return report.Outcome{Status: report.Success}
		})
	assert.Equal(t, report.Failure, out[0].Status)
	assert.Contains(t, out[0].Detail, "listener exploded")
	assert.Equal(t, "b", out[1].Member, "member id is filled in when the call leaves it empty")
}

func TestRunHonoursParallelLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	Run(context.Background(), Args{Members: members("a", "b", "c", "d", "e", "f"), Parallel: 2},
		func(_ context.Context, m membership.Member) report.Outcome {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			return report.Succeeded(m.ID, "")
		})
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunEmpty(t *testing.T) {
	called := false
	out := Run(context.Background(), Args{}, func(context.Context, membership.Member) report.Outcome {
		called = true
		return report.Outcome{}
	})
	assert.Empty(t, out)
	assert.False(t, called)
}
