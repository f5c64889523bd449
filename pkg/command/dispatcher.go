package command

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgrid/internal/logger"
	"github.com/ryandielhenn/zephyrgrid/internal/telemetry"
	"github.com/ryandielhenn/zephyrgrid/pkg/bcast"
	"github.com/ryandielhenn/zephyrgrid/pkg/membership"
	"github.com/ryandielhenn/zephyrgrid/pkg/report"
)

// Transport delivers a descriptor to one member and returns its outcome. An
// error means the member could not be reached or did not answer.
type Transport interface {
	Apply(ctx context.Context, m membership.Member, d Descriptor) (report.Outcome, error)
}

const opAlter = "alter-region"

type Options struct {
	// Timeout bounds each member independently; zero is bcast.DefaultTimeout.
	Timeout  time.Duration
	Parallel int
	// IgnoreMissing drops explicit member ids that are not ALIVE instead of
	// reporting them as member-missing rows.
	IgnoreMissing bool
	Log           *zap.Logger
}

type Dispatcher struct {
	members *membership.Registry
	tr      Transport
	opts    Options
	log     *zap.Logger
}

func NewDispatcher(members *membership.Registry, tr Transport, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = bcast.DefaultTimeout
	}
	log := opts.Log
	if log == nil {
		log = logger.Named("dispatcher")
	}
	return &Dispatcher{members: members, tr: tr, opts: opts, log: log}
}

// Dispatch resolves the descriptor's selector and applies it on every target.
// Only a malformed descriptor is an error; member failures are report rows.
func (d *Dispatcher) Dispatch(ctx context.Context, desc Descriptor) (report.Report, error) {
	if err := desc.Validate(); err != nil {
		return report.Report{}, err
	}
	started := time.Now()
	opID := uuid.NewString()
	log := d.log.With(logger.OpID(opID), logger.Region(desc.Region), zap.Stringer("selector", desc.Selector))

	res := d.members.Resolve(desc.Selector)
	if len(res.Members) == 0 {
		rep := report.Aggregate(nil)
		rep.ID = opID
		telemetry.ObserveDispatch(opAlter, string(rep.Status), started)
		log.Info("selector matched no members", zap.Strings("missing", res.Missing))
		return rep, nil
	}

	ctx = logger.ToContext(ctx, log)
	outcomes := bcast.Run(ctx, bcast.Args{Members: res.Members, Timeout: d.opts.Timeout, Parallel: d.opts.Parallel},
		func(ctx context.Context, m membership.Member) report.Outcome {
			o, err := d.tr.Apply(ctx, m, desc)
			if err != nil {
				return transportFailure(m.ID, err)
			}
			return o
		})
	if !d.opts.IgnoreMissing {
		for _, id := range res.Missing {
			outcomes = append(outcomes, report.Failed(id, report.CauseMemberMissing, "member "+id+" is not an alive cluster member"))
		}
	}

	rep := report.Aggregate(outcomes)
	rep.ID = opID
	for _, o := range rep.Outcomes {
		telemetry.MemberOutcomes.WithLabelValues(opAlter, string(o.Status)).Inc()
		if o.Status == report.Success {
			log.Debug("member outcome", logger.MemberID(o.Member), logger.Status(string(o.Status)))
		} else {
			log.Warn("member outcome", logger.MemberID(o.Member), logger.Status(string(o.Status)),
				zap.String("cause", o.Cause), zap.String("detail", o.Detail))
		}
	}
	telemetry.ObserveDispatch(opAlter, string(rep.Status), started)
	log.Info("alteration dispatched",
		logger.Targets(len(res.Members)),
		logger.Status(string(rep.Status)),
		logger.Duration(time.Since(started)))
	return rep, nil
}

func transportFailure(id string, err error) report.Outcome {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return report.Failed(id, report.CauseTimeout, err.Error())
	case errors.Is(err, context.Canceled):
		return report.Failed(id, report.CauseCancelled, err.Error())
	}
	return report.Failed(id, report.CauseTransport, err.Error())
}
