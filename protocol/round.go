package protocol

import (
	"fmt"
	"time"
)

// SessionType selects which phases a round runs.
type SessionType string

const (
	// Bidirectional rounds run exchange, distribute and collect.
	Bidirectional SessionType = "bidirectional"
	// DistributeOnly rounds run exchange and distribute. Members retain the
	// offset for a later collect-only round.
	DistributeOnly SessionType = "distribute"
	// CollectOnly rounds run collect only, using retained offsets.
	CollectOnly SessionType = "collect"
)

// Phase is one step of a round.
type Phase int

const (
	ExchangePhase Phase = iota
	DistributePhase
	CollectPhase
)

func (p Phase) String() string {
	switch p {
	case ExchangePhase:
		return "exchange"
	case DistributePhase:
		return "distribute"
	case CollectPhase:
		return "collect"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Phases returns the phases run by a round of this type, in order.
func (t SessionType) Phases() []Phase {
	switch t {
	case Bidirectional:
		return []Phase{ExchangePhase, DistributePhase, CollectPhase}
	case DistributeOnly:
		return []Phase{ExchangePhase, DistributePhase}
	case CollectOnly:
		return []Phase{CollectPhase}
	}
	return nil
}

// Includes reports whether rounds of this type run phase p.
func (t SessionType) Includes(p Phase) bool {
	for _, q := range t.Phases() {
		if q == p {
			return true
		}
	}
	return false
}

func (t SessionType) Validate() error {
	if t.Phases() == nil {
		return fmt.Errorf("unknown session type %q", string(t))
	}
	return nil
}

// Round identifies one round of a session.
type Round struct {
	Number int
	Type   SessionType

	// Remask enables the second-stage re-mask drawn by Members.
	Remask bool
}

func (r Round) String() string {
	return fmt.Sprintf("round %d (%s)", r.Number, r.Type)
}

// PhaseTiming bounds a phase. Both offsets are relative to the round start.
type PhaseTiming struct {
	Start    time.Duration `json:"start" yaml:"start"`
	Deadline time.Duration `json:"deadline" yaml:"deadline"`
}

// IsSet reports whether the timing describes a window.
func (p PhaseTiming) IsSet() bool {
	return p.Deadline > 0
}

func (p PhaseTiming) String() string {
	return fmt.Sprintf("[%s, %s)", p.Start, p.Deadline)
}

// PhaseSchedule holds the timing of every phase within a round.
type PhaseSchedule struct {
	Exchange   PhaseTiming `json:"exchange" yaml:"exchange"`
	Distribute PhaseTiming `json:"distribute" yaml:"distribute"`
	Collect    PhaseTiming `json:"collect" yaml:"collect"`
}

// Timing returns the window of phase p.
func (s PhaseSchedule) Timing(p Phase) PhaseTiming {
	switch p {
	case ExchangePhase:
		return s.Exchange
	case DistributePhase:
		return s.Distribute
	default:
		return s.Collect
	}
}

// Validate checks the windows used by rounds of type t. Every used phase needs
// a window with Deadline > Start >= 0, and starts must follow phase order.
// Windows may overlap.
func (s PhaseSchedule) Validate(t SessionType) error {
	var prev PhaseTiming
	for i, p := range t.Phases() {
		timing := s.Timing(p)
		field := "phases." + p.String()
		if !timing.IsSet() {
			return configErrorf(field, "missing timing for %s rounds", t)
		}
		if timing.Start < 0 || timing.Deadline <= timing.Start {
			return configErrorf(field, "invalid window %s", timing)
		}
		if i > 0 && timing.Start < prev.Start {
			return configErrorf(field, "starts at %s before the previous phase (%s)", timing.Start, prev.Start)
		}
		prev = timing
	}
	return nil
}

// End returns the latest deadline among the phases of t.
func (s PhaseSchedule) End(t SessionType) time.Duration {
	var end time.Duration
	for _, p := range t.Phases() {
		end = max(end, s.Timing(p).Deadline)
	}
	return end
}
