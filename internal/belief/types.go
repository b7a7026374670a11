package belief

import (
	"time"

	"github.com/mirelabs/coherent/go-kernel/internal/protocol"
)

// #region observation
// Observation is one per-tick sensor snapshot from the rPPG pipeline.
// Every field except Timestamp, DT and Visible is optional; a nil pointer
// means the sensor produced nothing this tick and the estimator dead-reckons.
type Observation struct {
	Timestamp time.Time
	DT        float64 // seconds since previous observation
	Visible   bool    // face in frame and app foregrounded

	HeartRate     *float64 // beats per minute
	HRConfidence  *float64 // [0, 1] extraction confidence
	Respiration   *float64 // breaths per minute
	StressIndex   *float64 // [0, 1]
	FacialValence *float64 // [-1, 1]
}

// #endregion observation

// #region belief-state
// BeliefState is the kernel's probabilistic estimate of the user's
// physiological and affective condition. Mutated only by the estimator,
// read-only everywhere else.
type BeliefState struct {
	Arousal         float64 // [0, 1]
	Attention       float64 // [0, 1]
	RhythmAlignment float64 // [0, 1]
	Valence         float64 // [-1, 1]

	ArousalVar   float64 // >= 0
	AttentionVar float64 // >= 0
	RhythmVar    float64 // >= 0
	ValenceVar   float64 // >= 0

	PredictionError     float64 // >= 0, distance from protocol target
	Innovation          float64 // last measurement residual
	MahalanobisDistance float64 // normalized residual
	Confidence          float64 // [0, 1]
}

// Initial returns the boot-time belief: target-neutral means with high
// uncertainty so early corrections dominate the prior.
func Initial() BeliefState {
	return BeliefState{
		Arousal:         0.5,
		Attention:       0.5,
		RhythmAlignment: 0.5,
		Valence:         0,
		ArousalVar:      1.0,
		AttentionVar:    1.0,
		RhythmVar:       1.0,
		ValenceVar:      1.0,
		Confidence:      0.1,
	}
}

// #endregion belief-state

// #region target
// Target is the protocol-derived state vector the belief relaxes toward.
type Target struct {
	Arousal         float64
	Attention       float64
	RhythmAlignment float64
	Valence         float64
}

var (
	targetParasympathetic = Target{Arousal: 0.25, Attention: 0.7, RhythmAlignment: 0.8, Valence: 0.4}
	targetBalanced        = Target{Arousal: 0.5, Attention: 0.6, RhythmAlignment: 0.7, Valence: 0.2}
	targetSympathetic     = Target{Arousal: 0.75, Attention: 0.8, RhythmAlignment: 0.7, Valence: 0.3}
	targetDefault         = Target{Arousal: 0.5, Attention: 0.5, RhythmAlignment: 0.5, Valence: 0}
)

// TargetFor selects the target vector from a pattern's arousal impact.
func TargetFor(p *protocol.Pattern) Target {
	if p == nil {
		return targetDefault
	}
	switch {
	case p.ArousalImpact <= -0.3:
		return targetParasympathetic
	case p.ArousalImpact >= 0.3:
		return targetSympathetic
	default:
		return targetBalanced
	}
}

// #endregion target

// #region config
// FilterConfig holds tuning knobs for the adaptive filter.
type FilterConfig struct {
	ArousalTau   float64 // relaxation time constant, seconds (slowest)
	AttentionTau float64 // fastest
	RhythmTau    float64
	ValenceTau   float64

	ProcessNoise     float64 // variance growth per second without data
	MeasurementNoise float64 // base measurement variance
	MaxVariance      float64 // per-dimension variance ceiling

	ConfidenceFloor  float64 // HR corrections below this confidence are ignored
	OutlierThreshold float64 // Mahalanobis gate, sigma
	HRWeight         float64 // heart-rate share of the fused arousal measurement
	StressWeight     float64 // stress-index share
	ValenceBlend     float64 // retained share of prior valence per facial sample
	ModelWeight      float64 // model-certainty share of output confidence

	DistractedAttention float64 // attention floor while not visible
	DistractionTau      float64 // seconds to decay toward it
}

// DefaultFilterConfig returns sensible defaults.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		ArousalTau:          30,
		AttentionTau:        5,
		RhythmTau:           12,
		ValenceTau:          20,
		ProcessNoise:        0.005,
		MeasurementNoise:    0.02,
		MaxVariance:         1.5,
		ConfidenceFloor:     0.3,
		OutlierThreshold:    3.0,
		HRWeight:            0.6,
		StressWeight:        0.4,
		ValenceBlend:        0.8,
		ModelWeight:         0.7,
		DistractedAttention: 0.1,
		DistractionTau:      1.5,
	}
}

// #endregion config
