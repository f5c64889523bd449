package extension

import (
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgrid/internal/logger"
	"github.com/ryandielhenn/zephyrgrid/internal/telemetry"
	"github.com/ryandielhenn/zephyrgrid/pkg/deploy"
)

var (
	ErrNotFound     = errors.New("extension not found")
	ErrLinkage      = errors.New("extension cannot be linked")
	ErrConstruction = errors.New("extension construction failed")
)

// LoadError carries one of ErrNotFound, ErrLinkage or ErrConstruction.
type LoadError struct {
	Ref  string
	Kind error
	Err  error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%q: %v", e.Ref, e.Kind)
	}
	return fmt.Sprintf("%q: %v: %v", e.Ref, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Source lists the latest version of every artifact on this member.
type Source interface {
	Latest() []deploy.Artifact
}

// Loader turns references into instances. Parsed manifests are cached per
// artifact version for the life of the member.
type Loader struct {
	src       Source
	factories *Factories
	defs      *gocache.Cache
	log       *zap.Logger
}

func NewLoader(src Source, factories *Factories, log *zap.Logger) *Loader {
	if log == nil {
		log = logger.Named("loader")
	}
	return &Loader{
		src:       src,
		factories: factories,
		defs:      gocache.New(gocache.NoExpiration, 0),
		log:       log,
	}
}

func defKey(name string, version uint64) string {
	return name + "@" + strconv.FormatUint(version, 10)
}

func (l *Loader) definitions(a deploy.Artifact) (*Manifest, error) {
	key := defKey(a.Name, a.Version)
	if v, ok := l.defs.Get(key); ok {
		return v.(*Manifest), nil
	}
	m, err := ParseManifest(a.Content)
	if err != nil {
		return nil, err
	}
	l.defs.Set(key, m, gocache.NoExpiration)
	return m, nil
}

// Validate loads an artifact without instantiating anything: the manifest
// must parse and every unit must bind to a known factory of its kind.
func (l *Loader) Validate(a deploy.Artifact) error {
	m, err := ParseManifest(a.Content)
	if err != nil {
		return &LoadError{Ref: a.Name, Kind: ErrLinkage, Err: err}
	}
	for _, u := range m.Units {
		k, _ := ParseKind(u.Kind)
		if !l.factories.Has(k, u.Factory) {
			return &LoadError{Ref: u.Name, Kind: ErrLinkage,
				Err: fmt.Errorf("artifact %s: no %s factory %q on this member", a.Name, k, u.Factory)}
		}
	}
	return nil
}

// Invalidate drops cached definitions of every version of the named artifact.
func (l *Loader) Invalidate(name string) {
	prefix := name + "@"
	for key := range l.defs.Items() {
		if strings.HasPrefix(key, prefix) {
			l.defs.Delete(key)
		}
	}
}

// Load resolves ref against the latest artifacts and constructs an instance
// of the requested kind. A malformed artifact only affects lookups of names
// it would have defined.
func (l *Loader) Load(ref Reference, kind Kind) (Instance, error) {
	inst, err := l.load(ref, kind)
	switch {
	case err == nil:
		telemetry.ExtensionLoads.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrNotFound):
		telemetry.ExtensionLoads.WithLabelValues("not_found").Inc()
	case errors.Is(err, ErrLinkage):
		telemetry.ExtensionLoads.WithLabelValues("linkage").Inc()
	default:
		telemetry.ExtensionLoads.WithLabelValues("construction").Inc()
	}
	return inst, err
}

func (l *Loader) load(ref Reference, kind Kind) (Instance, error) {
	var broken []string
	for _, a := range l.src.Latest() {
		m, err := l.definitions(a)
		if err != nil {
			l.log.Debug("skipping unreadable artifact", zap.String("artifact", a.Name), zap.Error(err))
			broken = append(broken, a.Name)
			continue
		}
		u, ok := m.Unit(ref.Name)
		if !ok {
			continue
		}
		uk, _ := ParseKind(u.Kind)
		if uk != kind {
			return Instance{}, &LoadError{Ref: ref.Name, Kind: ErrLinkage,
				Err: fmt.Errorf("defined as a %s, used as a %s", uk, kind)}
		}
		if !l.factories.Has(kind, u.Factory) {
			return Instance{}, &LoadError{Ref: ref.Name, Kind: ErrLinkage,
				Err: fmt.Errorf("no %s factory %q on this member", kind, u.Factory)}
		}
		args := maps.Clone(u.Args)
		if args == nil {
			args = map[string]string{}
		}
		maps.Copy(args, ref.Args)
		impl, err := l.factories.construct(kind, u.Factory, args)
		if err != nil {
			return Instance{}, &LoadError{Ref: ref.Name, Kind: ErrConstruction, Err: err}
		}
		return Instance{Name: ref.Name, Kind: kind, Artifact: a.Name, Version: a.Version, Impl: impl}, nil
	}
	if len(broken) > 0 {
		return Instance{}, &LoadError{Ref: ref.Name, Kind: ErrNotFound,
			Err: fmt.Errorf("unreadable artifacts: %s", strings.Join(broken, ", "))}
	}
	return Instance{}, &LoadError{Ref: ref.Name, Kind: ErrNotFound}
}
