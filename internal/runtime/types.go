package runtime

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mirelabs/coherent/go-kernel/internal/belief"
	"github.com/mirelabs/coherent/go-kernel/internal/protocol"
)

// #region status
// Status is the kernel's protocol lifecycle state.
type Status string

const (
	StatusIdle       Status = "IDLE"
	StatusRunning    Status = "RUNNING"
	StatusPaused     Status = "PAUSED"
	StatusHalted     Status = "HALTED"
	StatusSafetyLock Status = "SAFETY_LOCK"
)

// IsValid reports whether s is a recognized status.
func (s Status) IsValid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusPaused, StatusHalted, StatusSafetyLock:
		return true
	default:
		return false
	}
}

// InSession reports whether a session clock is meaningful in this status.
func (s Status) InSession() bool {
	return s == StatusRunning || s == StatusPaused
}

// #endregion status

// #region safety-profile
// SafetyProfile is the per-pattern long-term safety record. Created lazily
// on a pattern's first session, never deleted except by explicit user reset.
// JSON tags match the persisted schema (including its historical spelling).
type SafetyProfile struct {
	CumulativeStress float64   `json:"cummulative_stress_score"`
	LastIncident     int64     `json:"last_incident_timestamp"` // epoch ms, 0 = none
	SafetyLockUntil  int64     `json:"safety_lock_until"`       // epoch ms, 0 = unlocked
	ResonanceHistory []float64 `json:"resonance_history"`       // <= 5 scores, newest first
	ResonanceScore   float64   `json:"resonance_score"`         // mean of history
	StressStrikes    float64   `json:"stress_strikes"`
}

// Locked reports whether the pattern is under an active 24h lock.
func (p SafetyProfile) Locked(now time.Time) bool {
	return p.SafetyLockUntil > 0 && now.UnixMilli() < p.SafetyLockUntil
}

// #endregion safety-profile

// #region event-type
// EventType enumerates the closed set of kernel commands and facts.
type EventType string

const (
	EventBoot                EventType = "BOOT"
	EventLoadProtocol        EventType = "LOAD_PROTOCOL"
	EventStartSession        EventType = "START_SESSION"
	EventTick                EventType = "TICK"
	EventBeliefUpdate        EventType = "BELIEF_UPDATE"
	EventPhaseTransition     EventType = "PHASE_TRANSITION"
	EventCycleComplete       EventType = "CYCLE_COMPLETE"
	EventInterruption        EventType = "INTERRUPTION"
	EventResume              EventType = "RESUME"
	EventHalt                EventType = "HALT"
	EventSafetyInterdiction  EventType = "SAFETY_INTERDICTION"
	EventSympatheticOverride EventType = "SYMPATHETIC_OVERRIDE"
	EventLoadSafetyRegistry  EventType = "LOAD_SAFETY_REGISTRY"
	EventAdjustTempo         EventType = "ADJUST_TEMPO"
	EventAIIntervention      EventType = "AI_INTERVENTION"
	EventAIVoiceMessage      EventType = "AI_VOICE_MESSAGE"
	EventAIStatusChange      EventType = "AI_STATUS_CHANGE"
)

// AllEventTypes returns the closed set, in declaration order.
func AllEventTypes() []EventType {
	return []EventType{
		EventBoot, EventLoadProtocol, EventStartSession, EventTick,
		EventBeliefUpdate, EventPhaseTransition, EventCycleComplete,
		EventInterruption, EventResume, EventHalt, EventSafetyInterdiction,
		EventSympatheticOverride, EventLoadSafetyRegistry, EventAdjustTempo,
		EventAIIntervention, EventAIVoiceMessage, EventAIStatusChange,
	}
}

// IsValid reports whether t is a member of the closed set.
func (t EventType) IsValid() bool {
	for _, known := range AllEventTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// #endregion event-type

// #region interdiction
// InterdictionCode classifies a SAFETY_INTERDICTION fact.
type InterdictionCode string

const (
	InterdictionDistress       InterdictionCode = "sustained_distress"
	InterdictionPatternLocked  InterdictionCode = "pattern_locked"
	InterdictionUnknownPattern InterdictionCode = "unknown_pattern"
	InterdictionStartLocked    InterdictionCode = "start_while_locked"
)

// #endregion interdiction

// #region origin
// Origin identifies who issued a command. Audit metadata only: the safety
// gate treats every origin identically.
type Origin string

const (
	OriginUser     Origin = "user"
	OriginAgent    Origin = "agent"
	OriginWatchdog Origin = "watchdog"
	OriginKernel   Origin = "kernel"
)

// #endregion origin

// #region event
// Event is one kernel command or fact. Payload fields are optional and
// keyed by Type; unused fields stay zero.
type Event struct {
	ID     string    `json:"id"`
	Type   EventType `json:"type"`
	At     time.Time `json:"at"`
	Origin Origin    `json:"origin,omitempty"`

	DT          float64              `json:"dt,omitempty"`           // TICK, BELIEF_UPDATE
	Pattern     *protocol.Pattern    `json:"pattern,omitempty"`      // LOAD_PROTOCOL, SYMPATHETIC_OVERRIDE
	Belief      *belief.BeliefState  `json:"belief,omitempty"`       // BELIEF_UPDATE
	Observation *belief.Observation  `json:"observation,omitempty"`  // TICK
	TempoScale  float64              `json:"tempo_scale,omitempty"`  // ADJUST_TEMPO
	Phase       int                  `json:"phase,omitempty"`        // PHASE_TRANSITION
	Registry    map[string]SafetyProfile `json:"registry,omitempty"` // LOAD_SAFETY_REGISTRY

	Code    InterdictionCode `json:"code,omitempty"`    // SAFETY_INTERDICTION
	Reason  string           `json:"reason,omitempty"`  // HALT, SAFETY_INTERDICTION
	Message string           `json:"message,omitempty"` // AI_VOICE_MESSAGE

	AgentStatus  string           `json:"agent_status,omitempty"` // AI_STATUS_CHANGE
	Intervention *structpb.Struct `json:"intervention,omitempty"` // AI_INTERVENTION

	Corrected      bool   `json:"corrected,omitempty"`
	CorrectionNote string `json:"correction_note,omitempty"`
}

// #endregion event

// #region runtime-state
// RuntimeState is the kernel's complete state. Owned exclusively by the
// kernel and replaced wholesale on each dispatch; consumers receive it as a
// value and must never observe partial updates. The reducer copies the
// registry map before modifying it.
type RuntimeState struct {
	Status     Status
	Pattern    *protocol.Pattern
	TempoScale float64

	Phase          int
	PhaseStartTime float64 // session-clock seconds
	PhaseDuration  float64 // scaled by TempoScale
	CycleCount     int

	Belief         belief.BeliefState
	SafetyRegistry map[string]SafetyProfile

	Clock              float64 // seconds since boot
	SessionStart       float64 // Clock at START_SESSION
	SessionStartBelief belief.BeliefState
	LastTempoAt        float64 // Clock of last tempo change

	AgentStatus     string
	PendingMessage  string
	MessageSeq      int
	LastObservation *belief.Observation

	// Derived, recomputed every dispatch; never independently mutated.
	PhaseElapsed    float64
	SessionDuration float64
}

// Profile returns the safety profile for a pattern id, zero if absent.
func (s RuntimeState) Profile(patternID string) SafetyProfile {
	if p, ok := s.SafetyRegistry[patternID]; ok {
		return p
	}
	return SafetyProfile{}
}

// #endregion runtime-state
