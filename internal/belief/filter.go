package belief

import (
	"math"

	"github.com/mirelabs/coherent/go-kernel/internal/protocol"
)

// #region filter
// Filter is the adaptive belief estimator wired into the kernel: exponential
// relaxation toward a protocol target (prediction) plus Kalman-gain
// corrections from intermittent sensor data, with a Mahalanobis outlier gate.
type Filter struct {
	config  FilterConfig
	belief  BeliefState
	target  Target
	pattern *protocol.Pattern
}

// NewFilter creates a filter starting from the high-uncertainty boot belief.
func NewFilter(config FilterConfig) *Filter {
	return &Filter{
		config: config,
		belief: Initial(),
		target: targetDefault,
	}
}

// SetProtocol switches the target vector. A nil pattern reverts to the
// default target (no active protocol).
func (f *Filter) SetProtocol(p *protocol.Pattern) {
	f.pattern = p
	f.target = TargetFor(p)
}

// Belief returns the current estimate without advancing it.
func (f *Filter) Belief() BeliefState {
	return f.belief
}

// #endregion filter

// #region update

// Update advances the belief by one tick: predict, then correct with
// whatever sensor fields are present. Missing fields degrade to dead
// reckoning; they never fabricate measurements.
func (f *Filter) Update(obs Observation, dt float64) BeliefState {
	b := f.belief
	if dt <= 0 {
		return b
	}

	// --- Prediction: relax toward target, grow uncertainty ---
	b.Arousal = relax(b.Arousal, f.target.Arousal, dt, f.config.ArousalTau)
	b.Attention = relax(b.Attention, f.target.Attention, dt, f.config.AttentionTau)
	b.RhythmAlignment = relax(b.RhythmAlignment, f.target.RhythmAlignment, dt, f.config.RhythmTau)
	b.Valence = relax(b.Valence, f.target.Valence, dt, f.config.ValenceTau)

	grow := f.config.ProcessNoise * dt
	b.ArousalVar = minf(b.ArousalVar+grow, f.config.MaxVariance)
	b.AttentionVar = minf(b.AttentionVar+grow, f.config.MaxVariance)
	b.RhythmVar = minf(b.RhythmVar+grow, f.config.MaxVariance)
	b.ValenceVar = minf(b.ValenceVar+grow, f.config.MaxVariance)

	// --- Arousal correction from heart rate + stress index ---
	var sensorConf float64
	b.Innovation = 0
	b.MahalanobisDistance = 0
	if obs.HeartRate != nil && obs.HRConfidence != nil && *obs.HRConfidence >= f.config.ConfidenceFloor {
		conf := clamp01(*obs.HRConfidence)
		sensorConf = conf

		z := arousalFromHeartRate(*obs.HeartRate)
		if obs.StressIndex != nil {
			z = f.config.HRWeight*z + f.config.StressWeight*clamp01(*obs.StressIndex)
		}

		r := f.config.MeasurementNoise * (1 + (1 - conf))
		innovation := z - b.Arousal
		s := b.ArousalVar + r
		maha := math.Abs(innovation) / math.Sqrt(s)
		b.Innovation = innovation
		b.MahalanobisDistance = maha

		if maha > f.config.OutlierThreshold {
			// Sensor glitch: do not integrate, only admit a little extra doubt.
			b.ArousalVar = minf(b.ArousalVar+f.config.ProcessNoise, f.config.MaxVariance)
		} else {
			gain := b.ArousalVar / s
			b.Arousal += gain * innovation
			b.ArousalVar *= 1 - gain
		}
	}

	// --- Rhythm alignment from respiration rate ---
	if obs.Respiration != nil && f.pattern != nil {
		paced := f.pattern.BreathsPerMinute()
		if paced > 0 {
			z := 1 - clamp01(math.Abs(*obs.Respiration-paced)/paced)
			r := f.config.MeasurementNoise * 2
			s := b.RhythmVar + r
			gain := b.RhythmVar / s
			b.RhythmAlignment += gain * (z - b.RhythmAlignment)
			b.RhythmVar *= 1 - gain
		}
	}

	// --- Valence blend from facial expression ---
	if obs.FacialValence != nil {
		blend := f.config.ValenceBlend
		b.Valence = blend*b.Valence + (1-blend)*clampSigned(*obs.FacialValence)
		b.ValenceVar *= blend
	}

	// --- Attention: decay under distraction, recover otherwise ---
	if !obs.Visible {
		b.Attention = relax(b.Attention, f.config.DistractedAttention, dt, f.config.DistractionTau)
	} else {
		// Presence itself is weak evidence: shrink attention uncertainty.
		b.AttentionVar = maxf(b.AttentionVar*(1-dt/f.config.AttentionTau), f.config.MeasurementNoise)
	}

	// --- Derived outputs ---
	b.PredictionError = predictionError(b, f.target)
	b.Confidence = f.outputConfidence(b, sensorConf)

	clampBelief(&b)
	f.belief = b
	return b
}

// outputConfidence blends inverse-variance model certainty with raw sensor
// confidence so confidence never collapses purely from sensor absence.
func (f *Filter) outputConfidence(b BeliefState, sensorConf float64) float64 {
	avgVar := (b.ArousalVar + b.AttentionVar + b.RhythmVar + b.ValenceVar) / 4
	certainty := 1 / (1 + avgVar)
	return clamp01(f.config.ModelWeight*certainty + (1-f.config.ModelWeight)*sensorConf)
}

// #endregion update

// #region helpers

// arousalFromHeartRate maps BPM onto [0, 1]: 50 BPM and below reads fully
// calm, 120 and above fully activated.
func arousalFromHeartRate(bpm float64) float64 {
	return clamp01((bpm - 50) / 70)
}

// predictionError is the weighted RMS distance from the protocol target,
// arousal and rhythm alignment weighted equally.
func predictionError(b BeliefState, t Target) float64 {
	da := b.Arousal - t.Arousal
	dr := b.RhythmAlignment - t.RhythmAlignment
	return math.Sqrt(0.5*da*da + 0.5*dr*dr)
}

// relax moves v toward target with time constant tau over dt seconds.
func relax(v, target, dt, tau float64) float64 {
	if tau <= 0 {
		return target
	}
	return v + (target-v)*(1-math.Exp(-dt/tau))
}

func clampBelief(b *BeliefState) {
	b.Arousal = clamp01(b.Arousal)
	b.Attention = clamp01(b.Attention)
	b.RhythmAlignment = clamp01(b.RhythmAlignment)
	b.Valence = clampSigned(b.Valence)
	b.ArousalVar = maxf(b.ArousalVar, 0)
	b.AttentionVar = maxf(b.AttentionVar, 0)
	b.RhythmVar = maxf(b.RhythmVar, 0)
	b.ValenceVar = maxf(b.ValenceVar, 0)
	b.PredictionError = maxf(b.PredictionError, 0)
	b.Confidence = clamp01(b.Confidence)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// #endregion helpers
