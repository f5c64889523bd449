// Package report holds per-member outcomes of cluster-wide operations and
// merges them into one ordered report.
package report

import (
	"slices"
)

type Status string

const (
	Success Status = "SUCCESS"
	Failure Status = "FAILURE"
	Skipped Status = "SKIPPED"
)

// Failure causes. They travel as plain strings on the wire.
const (
	CauseTimeout               = "timeout"
	CauseCancelled             = "cancelled"
	CauseRegionAbsent          = "region-absent"
	CauseExtensionNotFound     = "extension-not-found"
	CauseExtensionLinkage      = "extension-linkage"
	CauseExtensionConstruction = "extension-construction"
	CauseDistribution          = "distribution"
	CauseTransport             = "transport"
	CauseMemberMissing         = "member-missing"
)

// Outcome is one member's result. It is a flat record of primitives.
type Outcome struct {
	Member string `json:"member"`
	Status Status `json:"status"`
	Cause  string `json:"cause,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func Succeeded(member, detail string) Outcome {
	return Outcome{Member: member, Status: Success, Detail: detail}
}

func Failed(member, cause, detail string) Outcome {
	return Outcome{Member: member, Status: Failure, Cause: cause, Detail: detail}
}

func SkippedRegionAbsent(member, detail string) Outcome {
	return Outcome{Member: member, Status: Skipped, Cause: CauseRegionAbsent, Detail: detail}
}

// Text is the human-readable status column.
func (o Outcome) Text() string {
	if o.Detail != "" {
		return o.Detail
	}
	if o.Cause != "" {
		return string(o.Status) + ": " + o.Cause
	}
	return string(o.Status)
}

type Overall string

const (
	AllSuccess Overall = "ALL_SUCCESS"
	Partial    Overall = "PARTIAL"
	AllFailed  Overall = "ALL_FAILED"
	Empty      Overall = "EMPTY"
)

type Report struct {
	// ID correlates the report with log lines of the operation that produced it.
	ID       string    `json:"id,omitempty"`
	Status   Overall   `json:"status"`
	Outcomes []Outcome `json:"outcomes"`
}

// Aggregate derives the overall status. The input is copied, never mutated.
func Aggregate(outcomes []Outcome) Report {
	rep := Report{Outcomes: slices.Clone(outcomes)}
	if rep.Outcomes == nil {
		rep.Outcomes = []Outcome{}
	}
	if len(outcomes) == 0 {
		rep.Status = Empty
		return rep
	}
	ok := 0
	for _, o := range outcomes {
		if o.Status == Success {
			ok++
		}
	}
	switch ok {
	case len(outcomes):
		rep.Status = AllSuccess
	case 0:
		rep.Status = AllFailed
	default:
		rep.Status = Partial
	}
	return rep
}

func (r Report) Successes() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == Success {
			n++
		}
	}
	return n
}

// Row returns the outcome for member, if present.
func (r Report) Row(member string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Member == member {
			return o, true
		}
	}
	return Outcome{}, false
}
