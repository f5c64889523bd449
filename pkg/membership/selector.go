package membership

import (
	"fmt"
	"strings"
)

type SelectorKind uint8

const (
	SelectAll SelectorKind = iota
	SelectGroup
	SelectExplicit
)

// Selector chooses which members an operation targets.
type Selector struct {
	Kind  SelectorKind
	Group string
	IDs   []string
}

func All() Selector { return Selector{Kind: SelectAll} }

func Group(name string) Selector { return Selector{Kind: SelectGroup, Group: name} }

func Explicit(ids ...string) Selector { return Selector{Kind: SelectExplicit, IDs: ids} }

// String renders the selector in the form ParseSelector accepts.
func (s Selector) String() string {
	switch s.Kind {
	case SelectGroup:
		return "group:" + s.Group
	case SelectExplicit:
		return "members:" + strings.Join(s.IDs, ",")
	default:
		return "all"
	}
}

// ParseSelector accepts "", "all", "group:<name>" and "members:<id>[,<id>...]".
func ParseSelector(s string) (Selector, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == "all":
		return All(), nil
	case strings.HasPrefix(s, "group:"):
		g := strings.TrimSpace(strings.TrimPrefix(s, "group:"))
		if g == "" {
			return Selector{}, fmt.Errorf("selector %q: empty group name", s)
		}
		return Group(g), nil
	case strings.HasPrefix(s, "members:"):
		var ids []string
		for _, id := range strings.Split(strings.TrimPrefix(s, "members:"), ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return Selector{}, fmt.Errorf("selector %q: no member ids", s)
		}
		return Explicit(ids...), nil
	default:
		return Selector{}, fmt.Errorf("selector %q: unknown form", s)
	}
}
