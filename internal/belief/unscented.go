package belief

import (
	"math"

	"github.com/mirelabs/coherent/go-kernel/internal/protocol"
)

// #region config
// UnscentedConfig tunes the sigma-point estimator.
type UnscentedConfig struct {
	Filter FilterConfig // shared thresholds (outlier gate, fusion weights, ...)

	Stiffness float64 // pull toward target arousal
	Damping   float64 // arousal velocity damping
	Alpha     float64 // sigma-point spread
	Kappa     float64 // secondary scaling
}

// DefaultUnscentedConfig returns sensible defaults.
func DefaultUnscentedConfig() UnscentedConfig {
	return UnscentedConfig{
		Filter:    DefaultFilterConfig(),
		Stiffness: 0.8,
		Damping:   1.2,
		Alpha:     0.5,
		Kappa:     0,
	}
}

// #endregion config

// #region unscented

const ukfDim = 5 // arousal, arousal velocity, attention, rhythm, valence

// Unscented is the nonlinear sigma-point estimator: it tracks arousal plus
// its velocity under logistic (Yerkes-Dodson) dynamics. Drop-in alternative
// to Filter with the identical Observation→BeliefState contract; not wired
// in by default.
type Unscented struct {
	config  UnscentedConfig
	mean    [ukfDim]float64
	cov     [ukfDim]float64 // diagonal covariance
	target  Target
	pattern *protocol.Pattern
	belief  BeliefState
}

// NewUnscented creates a sigma-point estimator from the boot belief.
func NewUnscented(config UnscentedConfig) *Unscented {
	init := Initial()
	return &Unscented{
		config: config,
		mean:   [ukfDim]float64{init.Arousal, 0, init.Attention, init.RhythmAlignment, init.Valence},
		cov:    [ukfDim]float64{init.ArousalVar, 0.1, init.AttentionVar, init.RhythmVar, init.ValenceVar},
		target: targetDefault,
		belief: init,
	}
}

// SetProtocol switches the target vector.
func (u *Unscented) SetProtocol(p *protocol.Pattern) {
	u.pattern = p
	u.target = TargetFor(p)
}

// Belief returns the current estimate without advancing it.
func (u *Unscented) Belief() BeliefState {
	return u.belief
}

// Update advances the belief by one tick through the unscented transform.
func (u *Unscented) Update(obs Observation, dt float64) BeliefState {
	cfg := u.config.Filter
	if dt <= 0 {
		return u.belief
	}

	// --- Sigma points from the diagonal prior ---
	n := float64(ukfDim)
	lambda := u.config.Alpha*u.config.Alpha*(n+u.config.Kappa) - n
	scale := n + lambda

	var points [2*ukfDim + 1][ukfDim]float64
	points[0] = u.mean
	for i := 0; i < ukfDim; i++ {
		spread := math.Sqrt(scale * maxf(u.cov[i], 1e-9))
		points[1+i] = u.mean
		points[1+i][i] += spread
		points[1+ukfDim+i] = u.mean
		points[1+ukfDim+i][i] -= spread
	}

	w0 := lambda / scale
	wi := 1 / (2 * scale)

	// --- Propagate through the process model ---
	for p := range points {
		points[p] = u.step(points[p], dt, !obs.Visible)
	}

	var mean [ukfDim]float64
	for i := 0; i < ukfDim; i++ {
		mean[i] = w0 * points[0][i]
		for p := 1; p < len(points); p++ {
			mean[i] += wi * points[p][i]
		}
	}
	var cov [ukfDim]float64
	for i := 0; i < ukfDim; i++ {
		d := points[0][i] - mean[i]
		cov[i] = w0 * d * d
		for p := 1; p < len(points); p++ {
			d = points[p][i] - mean[i]
			cov[i] += wi * d * d
		}
		cov[i] = minf(cov[i]+cfg.ProcessNoise*dt, cfg.MaxVariance)
	}

	b := u.belief
	b.Innovation = 0
	b.MahalanobisDistance = 0

	// --- Measurement update: fused arousal observation ---
	var sensorConf float64
	if obs.HeartRate != nil && obs.HRConfidence != nil && *obs.HRConfidence >= cfg.ConfidenceFloor {
		conf := clamp01(*obs.HRConfidence)
		sensorConf = conf

		z := arousalFromHeartRate(*obs.HeartRate)
		if obs.StressIndex != nil {
			z = cfg.HRWeight*z + cfg.StressWeight*clamp01(*obs.StressIndex)
		}

		r := cfg.MeasurementNoise * (1 + (1 - conf))
		innovation := z - mean[0]
		s := cov[0] + r
		maha := math.Abs(innovation) / math.Sqrt(s)
		b.Innovation = innovation
		b.MahalanobisDistance = maha

		if maha > cfg.OutlierThreshold {
			cov[0] = minf(cov[0]+cfg.ProcessNoise, cfg.MaxVariance)
		} else {
			gain := cov[0] / s
			mean[0] += gain * innovation
			// velocity is correlated with arousal through the dynamics;
			// drag it proportionally so the next prediction agrees.
			mean[1] += 0.5 * gain * innovation / maxf(dt, 1e-3) * cfg.ProcessNoise
			cov[0] *= 1 - gain
		}
	}

	// --- Rhythm and valence corrections, shared with the linear filter ---
	if obs.Respiration != nil && u.pattern != nil {
		paced := u.pattern.BreathsPerMinute()
		if paced > 0 {
			z := 1 - clamp01(math.Abs(*obs.Respiration-paced)/paced)
			s := cov[3] + cfg.MeasurementNoise*2
			gain := cov[3] / s
			mean[3] += gain * (z - mean[3])
			cov[3] *= 1 - gain
		}
	}
	if obs.FacialValence != nil {
		mean[4] = cfg.ValenceBlend*mean[4] + (1-cfg.ValenceBlend)*clampSigned(*obs.FacialValence)
		cov[4] *= cfg.ValenceBlend
	}

	u.mean = mean
	u.cov = cov

	b.Arousal = clamp01(mean[0])
	b.Attention = clamp01(mean[2])
	b.RhythmAlignment = clamp01(mean[3])
	b.Valence = clampSigned(mean[4])
	b.ArousalVar = cov[0]
	b.AttentionVar = cov[2]
	b.RhythmVar = cov[3]
	b.ValenceVar = cov[4]
	b.PredictionError = predictionError(b, u.target)

	avgVar := (cov[0] + cov[2] + cov[3] + cov[4]) / 4
	certainty := 1 / (1 + avgVar)
	b.Confidence = clamp01(cfg.ModelWeight*certainty + (1-cfg.ModelWeight)*sensorConf)

	clampBelief(&b)
	u.belief = b
	return b
}

// step integrates one sigma point. Arousal follows a logistic-gated pull
// toward the target (the inverted-U: the pull is strongest mid-range and
// vanishes at the extremes), attention/rhythm/valence relax as in the
// linear filter.
func (u *Unscented) step(x [ukfDim]float64, dt float64, distracted bool) [ukfDim]float64 {
	cfg := u.config.Filter
	a, w := x[0], x[1]

	gate := 4 * clamp01(a) * (1 - clamp01(a))
	accel := -u.config.Stiffness*(a-u.target.Arousal)*gate - u.config.Damping*w
	x[0] = a + w*dt
	x[1] = w + accel*dt

	if distracted {
		x[2] = relax(x[2], cfg.DistractedAttention, dt, cfg.DistractionTau)
	} else {
		x[2] = relax(x[2], u.target.Attention, dt, cfg.AttentionTau)
	}
	x[3] = relax(x[3], u.target.RhythmAlignment, dt, cfg.RhythmTau)
	x[4] = relax(x[4], u.target.Valence, dt, cfg.ValenceTau)
	return x
}

// #endregion unscented
