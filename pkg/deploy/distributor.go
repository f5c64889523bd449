package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgrid/internal/logger"
	"github.com/ryandielhenn/zephyrgrid/internal/telemetry"
	"github.com/ryandielhenn/zephyrgrid/pkg/bcast"
	"github.com/ryandielhenn/zephyrgrid/pkg/membership"
	"github.com/ryandielhenn/zephyrgrid/pkg/report"
)

// Pusher moves artifacts to a member. Implementations: Installers (in process)
// and the node package's HTTP transport.
type Pusher interface {
	Push(ctx context.Context, m membership.Member, a Artifact) error
	Remove(ctx context.Context, m membership.Member, name string) error
}

// DefaultSyncTimeout bounds each artifact push to a joining member.
const DefaultSyncTimeout = 5 * time.Second

type Options struct {
	Timeout time.Duration
	// SyncTimeout bounds each push made while a member joins. Zero means
	// DefaultSyncTimeout.
	SyncTimeout time.Duration
	Parallel    int
	// Validator, when set, checks new content on the coordinator before it
	// is stored, so a rejected artifact never becomes the latest version.
	Validator Validator
	Log       *zap.Logger
}

type Distributor struct {
	reg     *Registry
	members *membership.Registry
	push    Pusher
	opts    Options
	log     *zap.Logger
}

// NewDistributor wires the distributor into members: every joining member
// receives the current artifact set before it turns ALIVE.
func NewDistributor(reg *Registry, members *membership.Registry, push Pusher, opts Options) *Distributor {
	if opts.Timeout <= 0 {
		opts.Timeout = bcast.DefaultTimeout
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = DefaultSyncTimeout
	}
	log := opts.Log
	if log == nil {
		log = logger.Named("distributor")
	}
	d := &Distributor{reg: reg, members: members, push: push, opts: opts, log: log}
	members.OnJoin(d.SyncMember)
	return d
}

func (d *Distributor) Registry() *Registry { return d.reg }

// Deploy validates, stores and distributes the new version. Content that
// fails validation is neither stored nor distributed. For identical content
// nothing is distributed and the returned report is nil.
func (d *Distributor) Deploy(ctx context.Context, name string, content []byte) (Result, *report.Report, error) {
	if d.opts.Validator != nil {
		if err := d.opts.Validator.Validate(Artifact{Name: name, Content: content}); err != nil {
			telemetry.ArtifactDeploys.WithLabelValues("rejected").Inc()
			d.log.Warn("artifact rejected", logger.Artifact(name), zap.Error(err))
			return Result{}, nil, fmt.Errorf("%w: %s: %w", ErrRejected, name, err)
		}
	}
	res, err := d.reg.Deploy(name, content)
	if err != nil {
		return Result{}, nil, err
	}
	if res.Unchanged {
		return res, nil, nil
	}
	rep, err := d.Distribute(ctx, name, res.Artifact.Version)
	if err != nil {
		return res, nil, err
	}
	return res, &rep, nil
}

// Distribute pushes one stored version to every ALIVE member.
func (d *Distributor) Distribute(ctx context.Context, name string, version uint64) (report.Report, error) {
	a, err := d.reg.Get(name, version)
	if err != nil {
		return report.Report{}, err
	}
	detail := fmt.Sprintf("%s v%d deployed", a.Name, a.Version)
	return d.fanOut(ctx, "deploy", func(ctx context.Context, m membership.Member) report.Outcome {
		if err := d.push.Push(ctx, m, a); err != nil {
			return report.Failed(m.ID, report.CauseDistribution, err.Error())
		}
		return report.Succeeded(m.ID, detail)
	}, logger.Artifact(name), logger.Version(version)), nil
}

// Undeploy removes name from the coordinator and from every ALIVE member.
func (d *Distributor) Undeploy(ctx context.Context, name string) (report.Report, error) {
	if _, err := d.reg.Remove(name); err != nil {
		return report.Report{}, err
	}
	return d.fanOut(ctx, "undeploy", func(ctx context.Context, m membership.Member) report.Outcome {
		if err := d.push.Remove(ctx, m, name); err != nil {
			return report.Failed(m.ID, report.CauseDistribution, err.Error())
		}
		return report.Succeeded(m.ID, name+" undeployed")
	}, logger.Artifact(name)), nil
}

func (d *Distributor) fanOut(ctx context.Context, op string, call bcast.Call, fields ...zap.Field) report.Report {
	started := time.Now()
	opID := uuid.NewString()
	log := d.log.With(append(fields, logger.OpID(opID))...)

	targets := d.members.Resolve(membership.All()).Members
	outcomes := bcast.Run(ctx, bcast.Args{Members: targets, Timeout: d.opts.Timeout, Parallel: d.opts.Parallel}, call)
	rep := report.Aggregate(outcomes)
	rep.ID = opID

	for _, o := range rep.Outcomes {
		telemetry.MemberOutcomes.WithLabelValues(op, string(o.Status)).Inc()
		if o.Status != report.Success {
			log.Warn(op+" failed on member", logger.MemberID(o.Member), zap.String("cause", o.Cause), zap.String("detail", o.Detail))
		}
	}
	telemetry.ObserveDispatch(op, string(rep.Status), started)
	log.Info(op+" distributed", logger.Targets(len(targets)), logger.Status(string(rep.Status)), logger.Duration(time.Since(started)))
	return rep
}

// SyncMember pushes the latest version of every artifact to m, repeating
// until no deploy raced with the push. An artifact m rejects is skipped and
// logged; m is still admitted. Any other push failure fails the join.
func (d *Distributor) SyncMember(ctx context.Context, m membership.Member) error {
	for {
		gen := d.reg.Generation()
		var errs []error
		for _, a := range d.reg.Latest() {
			pctx, cancel := context.WithTimeout(ctx, d.opts.SyncTimeout)
			err := d.push.Push(pctx, m, a)
			cancel()
			switch {
			case err == nil:
			case errors.Is(err, ErrRejected):
				d.log.Warn("joining member rejected artifact; skipped",
					logger.MemberID(m.ID), logger.Artifact(a.Name), logger.Version(a.Version), zap.Error(err))
			default:
				errs = append(errs, fmt.Errorf("%s v%d: %w", a.Name, a.Version, err))
			}
		}
		if len(errs) > 0 {
			return errors.Join(errs...)
		}
		if d.reg.Generation() == gen {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}
