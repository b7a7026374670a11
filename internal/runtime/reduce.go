package runtime

import (
	"github.com/mirelabs/coherent/go-kernel/internal/belief"
	"github.com/mirelabs/coherent/go-kernel/internal/protocol"
)

// #region initial
// Initial returns the boot state: idle, neutral tempo, high-uncertainty
// belief, empty registry.
func Initial() RuntimeState {
	return RuntimeState{
		Status:         StatusIdle,
		TempoScale:     1.0,
		Belief:         belief.Initial(),
		SafetyRegistry: map[string]SafetyProfile{},
	}
}

// #endregion initial

// #region reduce

// Reduce is the pure state transition. It is total: events that do not
// apply in the current state reduce to the same state. SAFETY_LOCK is only
// entered here via a distress interdiction, which only the safety monitor
// produces; there is no direct status transition into it.
func Reduce(s RuntimeState, e Event) RuntimeState {
	switch e.Type {
	case EventBoot:
		s = Initial()

	case EventLoadProtocol:
		if e.Pattern != nil && s.Status != StatusSafetyLock {
			p := *e.Pattern
			s.Pattern = &p
			s.Phase, _ = FirstPhase(&p)
			s.PhaseStartTime = s.Clock
			s.PhaseDuration = ScaledPhaseDuration(&p, s.Phase, s.TempoScale)
			s.CycleCount = 0
			if s.Status == StatusHalted {
				s.Status = StatusIdle
			}
		}

	case EventStartSession:
		if s.Pattern != nil && s.Status != StatusSafetyLock && s.Status != StatusRunning {
			s.Status = StatusRunning
			s.TempoScale = 1.0
			s.Phase, _ = FirstPhase(s.Pattern)
			s.PhaseStartTime = s.Clock
			s.PhaseDuration = ScaledPhaseDuration(s.Pattern, s.Phase, s.TempoScale)
			s.CycleCount = 0
			s.SessionStart = s.Clock
			s.SessionStartBelief = s.Belief
			s.LastTempoAt = s.Clock
		}

	case EventTick:
		s.Clock += e.DT
		s.LastObservation = e.Observation

	case EventBeliefUpdate:
		if e.Belief != nil {
			s.Belief = *e.Belief
		}

	case EventPhaseTransition:
		if s.Pattern != nil && e.Phase >= 0 && e.Phase < len(s.Pattern.Phases) {
			s.Phase = e.Phase
			s.PhaseStartTime = s.Clock
			s.PhaseDuration = ScaledPhaseDuration(s.Pattern, e.Phase, s.TempoScale)
		}

	case EventCycleComplete:
		s.CycleCount++

	case EventInterruption:
		if s.Status == StatusRunning {
			s.Status = StatusPaused
		}

	case EventResume:
		if s.Status == StatusPaused {
			s.Status = StatusRunning
			s.PhaseStartTime = s.Clock
		}

	case EventHalt:
		if s.Status != StatusSafetyLock {
			s.Status = StatusHalted
		}

	case EventSafetyInterdiction:
		if e.Code == InterdictionDistress {
			s.Status = StatusSafetyLock
		}

	case EventSympatheticOverride:
		if e.Pattern != nil {
			p := *e.Pattern
			s.Pattern = &p
			s.TempoScale = 1.0
			s.LastTempoAt = s.Clock
			s.Phase, _ = FirstPhase(&p)
			s.PhaseStartTime = s.Clock
			s.PhaseDuration = ScaledPhaseDuration(&p, s.Phase, s.TempoScale)
		}

	case EventLoadSafetyRegistry:
		s.SafetyRegistry = cloneRegistry(e.Registry)

	case EventAdjustTempo:
		if e.TempoScale > 0 {
			s.TempoScale = e.TempoScale
			s.LastTempoAt = s.Clock
			if s.Pattern != nil {
				s.PhaseDuration = ScaledPhaseDuration(s.Pattern, s.Phase, s.TempoScale)
			}
		}

	case EventAIIntervention:
		// Logged fact; no state transition.

	case EventAIVoiceMessage:
		s.PendingMessage = e.Message
		s.MessageSeq++

	case EventAIStatusChange:
		s.AgentStatus = e.AgentStatus

	default:
		// Unknown or disallowed event types reduce to a no-op.
	}

	return recomputeDerived(s)
}

// recomputeDerived refreshes the ephemeral fields. They are a pure function
// of the rest of the state and never independently mutated.
func recomputeDerived(s RuntimeState) RuntimeState {
	s.PhaseElapsed = s.Clock - s.PhaseStartTime
	if s.PhaseElapsed < 0 {
		s.PhaseElapsed = 0
	}
	if s.Status.InSession() {
		s.SessionDuration = s.Clock - s.SessionStart
	} else {
		s.SessionDuration = 0
	}
	return s
}

// #endregion reduce

// #region phase-machine

// FirstPhase returns the index of the first non-zero-duration phase.
func FirstPhase(p *protocol.Pattern) (int, bool) {
	for i, ph := range p.Phases {
		if ph.Duration > 0 {
			return i, true
		}
	}
	return 0, false
}

// NextPhase returns the next non-zero-duration phase after from, and whether
// the step wrapped around (completing a cycle).
func NextPhase(p *protocol.Pattern, from int) (int, bool) {
	n := len(p.Phases)
	if n == 0 {
		return 0, false
	}
	wrapped := false
	idx := from
	for step := 0; step < n; step++ {
		idx++
		if idx >= n {
			idx = 0
			wrapped = true
		}
		if p.Phases[idx].Duration > 0 {
			return idx, wrapped
		}
	}
	return from, false
}

// ScaledPhaseDuration returns the phase duration under the current tempo
// scale. Scale above 1.0 slows the guided rhythm.
func ScaledPhaseDuration(p *protocol.Pattern, idx int, tempo float64) float64 {
	if p == nil || idx < 0 || idx >= len(p.Phases) {
		return 0
	}
	return p.Phases[idx].Duration * tempo
}

// #endregion phase-machine

// #region registry

// WithProfile returns a state with one profile replaced, cloning the
// registry map so prior snapshots stay immutable.
func (s RuntimeState) WithProfile(id string, p SafetyProfile) RuntimeState {
	reg := cloneRegistry(s.SafetyRegistry)
	reg[id] = p
	s.SafetyRegistry = reg
	return s
}

func cloneRegistry(in map[string]SafetyProfile) map[string]SafetyProfile {
	out := make(map[string]SafetyProfile, len(in))
	for k, v := range in {
		h := make([]float64, len(v.ResonanceHistory))
		copy(h, v.ResonanceHistory)
		v.ResonanceHistory = h
		out[k] = v
	}
	return out
}

// #endregion registry
