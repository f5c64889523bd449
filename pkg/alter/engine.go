// Package alter applies region alteration descriptors on one member.
package alter

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgrid/internal/logger"
	"github.com/ryandielhenn/zephyrgrid/pkg/command"
	"github.com/ryandielhenn/zephyrgrid/pkg/extension"
	"github.com/ryandielhenn/zephyrgrid/pkg/membership"
	"github.com/ryandielhenn/zephyrgrid/pkg/region"
	"github.com/ryandielhenn/zephyrgrid/pkg/report"
)

// Resolver constructs extension instances from references.
type Resolver interface {
	Load(ref extension.Reference, kind extension.Kind) (extension.Instance, error)
}

type Engine struct {
	member  string
	regions *region.Set
	res     Resolver
	log     *zap.Logger
}

func NewEngine(member string, regions *region.Set, res Resolver, log *zap.Logger) *Engine {
	if log == nil {
		log = logger.Named("alter")
	}
	return &Engine{member: member, regions: regions, res: res, log: log}
}

func (e *Engine) Member() string { return e.member }

// Apply alters the local region named by d. Every referenced extension is
// constructed before anything changes; if one fails the region keeps its
// current attributes.
func (e *Engine) Apply(ctx context.Context, d command.Descriptor) report.Outcome {
	log := logger.FromOr(ctx, e.log).With(logger.MemberID(e.member))
	name := region.Normalize(d.Region)
	r, ok := e.regions.Get(name)
	if !ok {
		return report.SkippedRegionAbsent(e.member, fmt.Sprintf("Region %q does not exist on %q", "/"+name, e.member))
	}

	type change struct {
		kind  extension.Kind
		insts []extension.Instance
	}
	changes := make([]change, 0, len(d.Changes))
	for _, k := range d.Kinds() {
		c := change{kind: k}
		for _, ref := range d.Changes[k].Refs {
			inst, err := e.res.Load(ref, k)
			if err != nil {
				log.Warn("alteration rejected", logger.Region(name), zap.Stringer("kind", k), zap.Error(err))
				return report.Failed(e.member, cause(err), err.Error())
			}
			c.insts = append(c.insts, inst)
		}
		changes = append(changes, c)
	}
	if err := ctx.Err(); err != nil {
		return report.Failed(e.member, report.CauseCancelled, err.Error())
	}

	r.Alter(func(a region.Attributes) region.Attributes {
		for _, c := range changes {
			switch c.kind {
			case extension.KindListener:
				a.Listeners = c.insts
			case extension.KindLoader:
				a.Loader = first(c.insts)
			case extension.KindWriter:
				a.Writer = first(c.insts)
			}
		}
		return a
	})
	log.Info("region altered", logger.Region(name), zap.Any("attributes", r.Describe()))
	return report.Succeeded(e.member, fmt.Sprintf("Region %q altered on %q", r.FullPath(), e.member))
}

func first(insts []extension.Instance) *extension.Instance {
	if len(insts) == 0 {
		return nil
	}
	i := insts[0]
	return &i
}

func cause(err error) string {
	switch {
	case errors.Is(err, extension.ErrNotFound):
		return report.CauseExtensionNotFound
	case errors.Is(err, extension.ErrLinkage):
		return report.CauseExtensionLinkage
	default:
		return report.CauseExtensionConstruction
	}
}

// LocalTransport delivers descriptors to engines in this process, keyed by member id.
type LocalTransport map[string]*Engine

func (t LocalTransport) Apply(ctx context.Context, m membership.Member, d command.Descriptor) (report.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return report.Outcome{}, err
	}
	e, ok := t[m.ID]
	if !ok {
		return report.Outcome{}, fmt.Errorf("no engine for member %q", m.ID)
	}
	return e.Apply(ctx, d), nil
}
