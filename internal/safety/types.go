package safety

import (
	"time"

	"github.com/mirelabs/coherent/go-kernel/internal/runtime"
)

// #region severity
// Severity classes a recorded violation.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
)

// #endregion severity

// #region invariants
// Invariant names, stable strings used in violation records and logs.
const (
	InvariantTempoBounds     = "tempo_bounds"
	InvariantTempoRate       = "tempo_rate"
	InvariantStartLocked     = "start_while_locked"
	InvariantPatternLocked   = "pattern_locked"
	InvariantUnknownPattern  = "unknown_pattern"
	InvariantDistress        = "sustained_distress"
	InvariantTempoLiveness   = "tempo_liveness"
)

// #endregion invariants

// #region violation
// Violation is one recorded invariant breach.
type Violation struct {
	Invariant string
	Severity  Severity
	Reason    string
	At        time.Time
}

// #endregion violation

// #region check-result
// CheckResult is the shield's verdict on a proposed event.
//
// Safe=true, Corrected=nil   — pass the event unchanged.
// Safe=true, Corrected=&e    — apply the corrected substitute instead.
// Safe=false                 — drop the event; no safe correction exists.
//
// Violation may accompany any verdict: a passing event can still surface an
// invariant breach the kernel must escalate (sustained distress).
type CheckResult struct {
	Safe      bool
	Corrected *runtime.Event
	Violation *Violation
}

func pass() CheckResult              { return CheckResult{Safe: true} }
func reject(v Violation) CheckResult { return CheckResult{Safe: false, Violation: &v} }

// #endregion check-result

// #region config
// MonitorConfig holds the declared safety envelope.
type MonitorConfig struct {
	TempoMin        float64 // absolute tempo scale bounds
	TempoMax        float64
	TempoRatePerSec float64 // max tempo change per second

	CriticalPredictionError float64 // distress threshold on prediction error
	MinSessionSec           float64 // distress cannot trip before this
	SustainedDistressSec    float64 // error must persist this long

	TempoLivenessSec float64 // warn when tempo stays off 1.0 this long
	MaxViolations    int     // violation ring size
}

// DefaultMonitorConfig returns sensible defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		TempoMin:                0.5,
		TempoMax:                1.5,
		TempoRatePerSec:         0.1,
		CriticalPredictionError: 0.95,
		MinSessionSec:           10,
		SustainedDistressSec:    2,
		TempoLivenessSec:        60,
		MaxViolations:           100,
	}
}

// #endregion config
