package deploy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgrid/internal/logger"
	"github.com/ryandielhenn/zephyrgrid/pkg/membership"
)

// Validator checks that an artifact is loadable without instantiating anything.
type Validator interface {
	Validate(a Artifact) error
	Invalidate(name string)
}

// Installer is the member-side receiver of distributed artifacts.
type Installer struct {
	reg *Registry
	v   Validator
	log *zap.Logger
}

func NewInstaller(reg *Registry, v Validator, log *zap.Logger) *Installer {
	if log == nil {
		log = logger.Named("installer")
	}
	return &Installer{reg: reg, v: v, log: log}
}

// Install validates and then stores a. Nothing is stored if validation fails.
func (i *Installer) Install(a Artifact) error {
	if Digest(a.Content) != a.Digest {
		return fmt.Errorf("%w: %s v%d", ErrDigestMismatch, a.Name, a.Version)
	}
	if err := i.v.Validate(a); err != nil {
		return fmt.Errorf("%w: %s v%d: %w", ErrRejected, a.Name, a.Version, err)
	}
	if err := i.reg.Install(a); err != nil {
		return err
	}
	i.v.Invalidate(a.Name)
	i.log.Debug("artifact installed", logger.Artifact(a.Name), logger.Version(a.Version))
	return nil
}

// Uninstall removes every version of name; an unknown name is not an error.
func (i *Installer) Uninstall(name string) error {
	if _, err := i.reg.Remove(name); err != nil && !errors.Is(err, ErrUnknownArtifact) {
		return err
	}
	i.v.Invalidate(name)
	return nil
}

func (i *Installer) Registry() *Registry { return i.reg }

// Installers delivers artifacts to in-process members keyed by member id.
type Installers map[string]*Installer

func (in Installers) Push(ctx context.Context, m membership.Member, a Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, ok := in[m.ID]
	if !ok {
		return fmt.Errorf("no installer for member %q", m.ID)
	}
	return dst.Install(a)
}

func (in Installers) Remove(ctx context.Context, m membership.Member, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, ok := in[m.ID]
	if !ok {
		return fmt.Errorf("no installer for member %q", m.ID)
	}
	return dst.Uninstall(name)
}
