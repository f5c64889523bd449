// Package bcast fans a call out to a set of members and collects one
// outcome per member, in the order the members were given.
package bcast

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ryandielhenn/zephyrgrid/pkg/membership"
	"github.com/ryandielhenn/zephyrgrid/pkg/report"
)

const DefaultTimeout = 30 * time.Second

// Call performs the operation against one member. ctx carries that member's deadline.
type Call func(ctx context.Context, m membership.Member) report.Outcome

type Args struct {
	Members []membership.Member
	// Timeout bounds each member independently. Zero means DefaultTimeout.
	Timeout time.Duration
	// Parallel caps in-flight calls. Zero means one per member.
	Parallel int
}

// Run never fails as a whole: timeouts, cancellation and panics inside call
// become that member's FAILURE outcome while the others proceed.
func Run(ctx context.Context, args Args, call Call) []report.Outcome {
	results := make([]report.Outcome, len(args.Members))
	if len(args.Members) == 0 {
		return results
	}
	timeout := args.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var g errgroup.Group
	if args.Parallel > 0 {
		g.SetLimit(args.Parallel)
	}
	for i, m := range args.Members {
		g.Go(func() error {
			results[i] = callOne(ctx, m, timeout, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func callOne(ctx context.Context, m membership.Member, timeout time.Duration, call Call) report.Outcome {
	if ctx.Err() != nil {
		return cancelled(m.ID)
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// buffered: an abandoned call can still finish without blocking
	done := make(chan report.Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- report.Failed(m.ID, report.CauseTransport, fmt.Sprintf("panic: %v", r))
			}
		}()
		done <- call(cctx, m)
	}()

	select {
	case o := <-done:
		if o.Member == "" {
			o.Member = m.ID
		}
		return o
	case <-cctx.Done():
		if ctx.Err() != nil {
			return cancelled(m.ID)
		}
		return report.Failed(m.ID, report.CauseTimeout, fmt.Sprintf("no response from %q within %s", m.ID, timeout))
	}
}

func cancelled(id string) report.Outcome {
	return report.Failed(id, report.CauseCancelled, "operation cancelled before the member answered; it may still apply the change")
}
