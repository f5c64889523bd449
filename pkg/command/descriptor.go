// Package command carries region alteration requests from the coordinator to
// the targeted members and collects one outcome per member.
package command

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/ryandielhenn/zephyrgrid/pkg/extension"
	"github.com/ryandielhenn/zephyrgrid/pkg/membership"
)

// ErrMalformedDescriptor is returned before any member is contacted.
var ErrMalformedDescriptor = errors.New("malformed operation descriptor")

// Wire names of the alterable attributes.
const (
	AttrListener = "cache-listener"
	AttrLoader   = "cache-loader"
	AttrWriter   = "cache-writer"

	keyRegion   = "region"
	keySelector = "selector"
)

func AttributeName(k extension.Kind) string {
	switch k {
	case extension.KindListener:
		return AttrListener
	case extension.KindLoader:
		return AttrLoader
	case extension.KindWriter:
		return AttrWriter
	}
	return k.String()
}

func attributeKind(name string) (extension.Kind, bool) {
	switch name {
	case AttrListener:
		return extension.KindListener, true
	case AttrLoader:
		return extension.KindLoader, true
	case AttrWriter:
		return extension.KindWriter, true
	}
	return 0, false
}

// Value is the new value of one attribute: no references clears it.
type Value struct {
	Refs []extension.Reference
}

func Clear() Value { return Value{} }

func Set(refs ...extension.Reference) Value { return Value{Refs: refs} }

func (v Value) IsClear() bool { return len(v.Refs) == 0 }

// Descriptor names a region, the members to alter it on and the new value of
// each attribute that changes. Kinds absent from Changes are left alone.
type Descriptor struct {
	Region   string
	Selector membership.Selector
	Changes  map[extension.Kind]Value
}

// Kinds lists the mentioned attribute kinds in a fixed order.
func (d Descriptor) Kinds() []extension.Kind {
	return slices.Sorted(maps.Keys(d.Changes))
}

func (d Descriptor) Validate() error {
	if d.Region == "" || d.Region == "/" {
		return fmt.Errorf("%w: region name is required", ErrMalformedDescriptor)
	}
	if len(d.Changes) == 0 {
		return fmt.Errorf("%w: no attribute to alter", ErrMalformedDescriptor)
	}
	for k, v := range d.Changes {
		switch k {
		case extension.KindListener:
		case extension.KindLoader, extension.KindWriter:
			if len(v.Refs) > 1 {
				return fmt.Errorf("%w: %s accepts at most one reference, got %d", ErrMalformedDescriptor, AttributeName(k), len(v.Refs))
			}
		default:
			return fmt.Errorf("%w: unknown attribute %s", ErrMalformedDescriptor, k)
		}
		for _, r := range v.Refs {
			if r.Name == "" {
				return fmt.Errorf("%w: %s has an unnamed reference", ErrMalformedDescriptor, AttributeName(k))
			}
		}
	}
	if d.Selector.Kind == membership.SelectExplicit && len(d.Selector.IDs) == 0 {
		return fmt.Errorf("%w: explicit selector without member ids", ErrMalformedDescriptor)
	}
	return nil
}

// Flatten renders d as a flat string map, the form it travels in.
func (d Descriptor) Flatten() map[string]string {
	m := map[string]string{
		keyRegion:   d.Region,
		keySelector: d.Selector.String(),
	}
	for k, v := range d.Changes {
		m[AttributeName(k)] = extension.FormatReferences(v.Refs)
	}
	return m
}

// ParseFlat is the inverse of Flatten. Present attribute keys with an empty
// value clear that attribute.
func ParseFlat(m map[string]string) (Descriptor, error) {
	sel, err := membership.ParseSelector(m[keySelector])
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}
	d := Descriptor{Region: m[keyRegion], Selector: sel, Changes: map[extension.Kind]Value{}}
	for key, raw := range m {
		if key == keyRegion || key == keySelector {
			continue
		}
		k, ok := attributeKind(key)
		if !ok {
			return Descriptor{}, fmt.Errorf("%w: unknown field %q", ErrMalformedDescriptor, key)
		}
		refs, err := extension.ParseReferences(raw)
		if err != nil {
			return Descriptor{}, fmt.Errorf("%w: %s: %v", ErrMalformedDescriptor, key, err)
		}
		d.Changes[k] = Value{Refs: refs}
	}
	return d, d.Validate()
}
