// Package extension resolves named, operator-deployed extensions
// (listeners, loaders, writers) to live instances.
//
// Deployed artifacts carry a YAML manifest whose units bind an extension
// name to a factory compiled into the member binary. Nothing is generated
// at run time: a unit can only refer to factories the member already has.
package extension

import (
	"context"
	"errors"
	"fmt"
)

type Kind uint8

const (
	KindListener Kind = iota + 1
	KindLoader
	KindWriter
)

func (k Kind) String() string {
	switch k {
	case KindListener:
		return "listener"
	case KindLoader:
		return "loader"
	case KindWriter:
		return "writer"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "listener":
		return KindListener, nil
	case "loader":
		return KindLoader, nil
	case "writer":
		return KindWriter, nil
	}
	return 0, fmt.Errorf("unknown extension kind %q", s)
}

type Op uint8

const (
	OpCreate Op = iota + 1
	OpUpdate
	OpDestroy
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDestroy:
		return "destroy"
	}
	return "unknown"
}

// Event describes one region entry operation.
type Event struct {
	Region string
	Key    string
	Op     Op
	Old    []byte
	New    []byte
	// Loaded is set when the value came from the region's loader.
	Loaded bool
}

// Listener observes entry operations after they are applied.
type Listener interface {
	AfterEvent(ctx context.Context, ev Event)
}

// CacheLoader supplies a value on a read miss. ok=false means the loader has no value.
type CacheLoader interface {
	Load(ctx context.Context, region, key string) (val []byte, ok bool, err error)
}

// Writer sees entry operations before they are applied and may veto them.
type Writer interface {
	BeforeEvent(ctx context.Context, ev Event) error
}

// ErrVetoed is returned by writers that reject an operation.
var ErrVetoed = errors.New("operation vetoed by cache writer")

// Instance is a constructed extension together with where it came from.
type Instance struct {
	Name     string
	Kind     Kind
	Artifact string
	Version  uint64
	Impl     any
}

func (i Instance) Listener() Listener {
	l, _ := i.Impl.(Listener)
	return l
}

func (i Instance) Loader() CacheLoader {
	l, _ := i.Impl.(CacheLoader)
	return l
}

func (i Instance) Writer() Writer {
	w, _ := i.Impl.(Writer)
	return w
}
