package membership

import (
	"fmt"
	"slices"
	"time"
)

type State uint8

const (
	StateJoining State = iota
	StateAlive
	StateDeparted
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "JOINING"
	case StateAlive:
		return "ALIVE"
	case StateDeparted:
		return "DEPARTED"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "JOINING":
		*s = StateJoining
	case "ALIVE":
		*s = StateAlive
	case "DEPARTED":
		*s = StateDeparted
	default:
		return fmt.Errorf("unknown member state %q", b)
	}
	return nil
}

// Member is one process in the cluster. Its group set is fixed at join time.
type Member struct {
	ID       string    `json:"id"`
	Addr     string    `json:"addr"`
	Groups   []string  `json:"groups,omitempty"`
	State    State     `json:"state"`
	JoinedAt time.Time `json:"joined_at"`
}

func (m Member) InGroup(group string) bool {
	return slices.Contains(m.Groups, group)
}

func (m Member) clone() Member {
	m.Groups = slices.Clone(m.Groups)
	return m
}
