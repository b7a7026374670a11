package safety

import (
	"fmt"
	"math"

	"github.com/mirelabs/coherent/go-kernel/internal/runtime"
)

// #region monitor
// Monitor vets every state-changing command against the declared invariants
// before the reducer applies it. The gate is uniform: user, AI and watchdog
// commands all pass through the same checks with no privileged bypass.
type Monitor struct {
	config     MonitorConfig
	violations []Violation

	distressFor  float64 // seconds of prediction error above critical
	offCenterFor float64 // seconds of tempo away from 1.0
}

// NewMonitor creates a monitor with the given envelope.
func NewMonitor(config MonitorConfig) *Monitor {
	return &Monitor{config: config}
}

// Violations returns a copy of the bounded violation ring, oldest first.
func (m *Monitor) Violations() []Violation {
	out := make([]Violation, len(m.violations))
	copy(out, m.violations)
	return out
}

// #endregion monitor

// #region check-event

// CheckEvent evaluates a proposed event against the current state. HALT is
// the cancellation primitive and always passes untouched.
func (m *Monitor) CheckEvent(e runtime.Event, s runtime.RuntimeState) CheckResult {
	switch e.Type {
	case runtime.EventHalt:
		return pass()

	case runtime.EventAdjustTempo:
		return m.checkTempo(e, s)

	case runtime.EventStartSession:
		if s.Status == runtime.StatusSafetyLock {
			return reject(m.record(Violation{
				Invariant: InvariantStartLocked,
				Severity:  SeverityCritical,
				Reason:    "session start refused while safety lock is active",
				At:        e.At,
			}))
		}
		return pass()

	case runtime.EventLoadProtocol:
		return m.checkLoad(e, s)

	case runtime.EventBeliefUpdate:
		return m.checkBelief(e, s)

	default:
		return pass()
	}
}

// #endregion check-event

// #region tempo

// checkTempo shields tempo commands: the corrected value is the tighter of
// the absolute bounds and the rate limit since the last tempo change.
func (m *Monitor) checkTempo(e runtime.Event, s runtime.RuntimeState) CheckResult {
	proposed := e.TempoScale
	corrected := proposed

	// Absolute bounds.
	if corrected < m.config.TempoMin {
		corrected = m.config.TempoMin
	}
	if corrected > m.config.TempoMax {
		corrected = m.config.TempoMax
	}

	// Rate limit against the current value.
	elapsed := s.Clock - s.LastTempoAt
	if elapsed < 0 {
		elapsed = 0
	}
	allowed := m.config.TempoRatePerSec * elapsed
	if delta := corrected - s.TempoScale; math.Abs(delta) > allowed {
		if delta > 0 {
			corrected = s.TempoScale + allowed
		} else {
			corrected = s.TempoScale - allowed
		}
	}

	if corrected == proposed {
		return pass()
	}

	invariant := InvariantTempoRate
	if proposed < m.config.TempoMin || proposed > m.config.TempoMax {
		invariant = InvariantTempoBounds
	}
	v := m.record(Violation{
		Invariant: invariant,
		Severity:  SeverityWarning,
		Reason:    fmt.Sprintf("tempo %.3f corrected to %.3f", proposed, corrected),
		At:        e.At,
	})

	fixed := e
	fixed.TempoScale = corrected
	fixed.Corrected = true
	fixed.CorrectionNote = v.Reason
	return CheckResult{Safe: true, Corrected: &fixed, Violation: &v}
}

// #endregion tempo

// #region load

func (m *Monitor) checkLoad(e runtime.Event, s runtime.RuntimeState) CheckResult {
	if e.Pattern == nil {
		return reject(m.record(Violation{
			Invariant: InvariantUnknownPattern,
			Severity:  SeverityWarning,
			Reason:    "load refused: no such pattern",
			At:        e.At,
		}))
	}
	if profile := s.Profile(e.Pattern.ID); profile.Locked(e.At) {
		return reject(m.record(Violation{
			Invariant: InvariantPatternLocked,
			Severity:  SeverityCritical,
			Reason:    fmt.Sprintf("pattern %s is under a safety lock", e.Pattern.ID),
			At:        e.At,
		}))
	}
	return pass()
}

// #endregion load

// #region distress

// checkBelief passes every belief update but tracks sustained distress and
// tempo liveness. The distress invariant trips only after the error stays
// above critical for the sustained window, and never inside the session
// warm-up — a single transient spike cannot lock the session.
func (m *Monitor) checkBelief(e runtime.Event, s runtime.RuntimeState) CheckResult {
	if s.Status != runtime.StatusRunning || e.Belief == nil {
		return pass()
	}

	if e.Belief.PredictionError > m.config.CriticalPredictionError {
		m.distressFor += e.DT
	} else {
		m.distressFor = 0
	}

	// Liveness: tempo should trend back to 1.0. Warning only, never blocks.
	if math.Abs(s.TempoScale-1.0) > 0.01 {
		m.offCenterFor += e.DT
		if m.offCenterFor > m.config.TempoLivenessSec {
			m.record(Violation{
				Invariant: InvariantTempoLiveness,
				Severity:  SeverityWarning,
				Reason:    fmt.Sprintf("tempo %.3f has not returned to 1.0 for %.0fs", s.TempoScale, m.offCenterFor),
				At:        e.At,
			})
			m.offCenterFor = 0
		}
	} else {
		m.offCenterFor = 0
	}

	if m.distressFor >= m.config.SustainedDistressSec && s.SessionDuration > m.config.MinSessionSec {
		m.distressFor = 0
		v := m.record(Violation{
			Invariant: InvariantDistress,
			Severity:  SeverityCritical,
			Reason: fmt.Sprintf("prediction error %.2f above %.2f for %.1fs",
				e.Belief.PredictionError, m.config.CriticalPredictionError, m.config.SustainedDistressSec),
			At: e.At,
		})
		return CheckResult{Safe: true, Violation: &v}
	}
	return pass()
}

// #endregion distress

// #region record

// record appends to the bounded violation ring, dropping the oldest entry
// past capacity.
func (m *Monitor) record(v Violation) Violation {
	m.violations = append(m.violations, v)
	if max := m.config.MaxViolations; max > 0 && len(m.violations) > max {
		m.violations = m.violations[len(m.violations)-max:]
	}
	return v
}

// #endregion record
