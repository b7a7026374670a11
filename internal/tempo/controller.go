// Package tempo proposes tempo-scale adjustments from rhythm alignment.
// Proposals are ordinary ADJUST_TEMPO commands and pass through the safety
// gate like any other command; there is no privileged write path.
package tempo

// #region law-config
// LawConfig tunes the threshold control law wired into the kernel.
type LawConfig struct {
	StruggleAlignment  float64 // below this the user is struggling: slow down
	ResonanceAlignment float64 // above this resonance is achieved: ease back
	Step               float64 // fixed adjustment per proposal
	SoftCap            float64 // law never proposes beyond this slowdown
	WarmupSec          float64 // no proposals before this much session time
}

// DefaultLawConfig returns sensible defaults.
func DefaultLawConfig() LawConfig {
	return LawConfig{
		StruggleAlignment:  0.35,
		ResonanceAlignment: 0.8,
		Step:               0.02,
		SoftCap:            1.3,
		WarmupSec:          10,
	}
}

// #endregion law-config

// #region law

// Law is the manual threshold controller.
type Law struct {
	config LawConfig
}

// NewLaw creates the threshold controller.
func NewLaw(config LawConfig) *Law {
	return &Law{config: config}
}

// Propose returns a new tempo scale and true when an adjustment is called
// for, based on the current rhythm alignment and session age.
func (l *Law) Propose(alignment, tempoScale, sessionDuration float64) (float64, bool) {
	if sessionDuration <= l.config.WarmupSec {
		return 0, false
	}
	if alignment < l.config.StruggleAlignment && tempoScale < l.config.SoftCap {
		next := tempoScale + l.config.Step
		if next > l.config.SoftCap {
			next = l.config.SoftCap
		}
		return next, true
	}
	if alignment > l.config.ResonanceAlignment && tempoScale > 1.0 {
		next := tempoScale - l.config.Step
		if next < 1.0 {
			next = 1.0
		}
		return next, true
	}
	return 0, false
}

// #endregion law

// #region pid-config
// PIDConfig tunes the formal controller variant.
type PIDConfig struct {
	Kp, Ki, Kd    float64
	IntegralCap   float64 // anti-windup clamp on the integral term
	DerivativeTau float64 // low-pass time constant for the derivative
	DeltaMax      float64 // clamp on a single output step
}

// DefaultPIDConfig returns sensible defaults.
func DefaultPIDConfig() PIDConfig {
	return PIDConfig{
		Kp:            0.15,
		Ki:            0.02,
		Kd:            0.05,
		IntegralCap:   2.0,
		DerivativeTau: 0.5,
		DeltaMax:      0.1,
	}
}

// #endregion pid-config

// #region pid

// PID is the formal alternative controller with the (error, dt)→Δtempo
// contract: proportional/integral/derivative with anti-windup and a
// low-pass-filtered derivative. Not wired in by default.
type PID struct {
	config    PIDConfig
	integral  float64
	lastError float64
	dFiltered float64
	primed    bool
}

// NewPID creates the controller at rest.
func NewPID(config PIDConfig) *PID {
	return &PID{config: config}
}

// Reset clears accumulated controller state, for session boundaries.
func (c *PID) Reset() {
	c.integral = 0
	c.lastError = 0
	c.dFiltered = 0
	c.primed = false
}

// Delta returns the tempo change for one error sample over dt seconds.
func (c *PID) Delta(err, dt float64) float64 {
	if dt <= 0 {
		return 0
	}

	c.integral += err * dt
	if c.integral > c.config.IntegralCap {
		c.integral = c.config.IntegralCap
	}
	if c.integral < -c.config.IntegralCap {
		c.integral = -c.config.IntegralCap
	}

	var raw float64
	if c.primed {
		raw = (err - c.lastError) / dt
	}
	alpha := dt / (c.config.DerivativeTau + dt)
	c.dFiltered += alpha * (raw - c.dFiltered)

	c.lastError = err
	c.primed = true

	delta := c.config.Kp*err + c.config.Ki*c.integral + c.config.Kd*c.dFiltered
	if delta > c.config.DeltaMax {
		delta = c.config.DeltaMax
	}
	if delta < -c.config.DeltaMax {
		delta = -c.config.DeltaMax
	}
	return delta
}

// #endregion pid
