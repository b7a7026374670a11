// Package watchdog detects sustained divergence or harm in the adaptation
// loop and issues corrective commands that can seize control away from any
// upstream actor, including the AI agent.
package watchdog

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/mirelabs/coherent/go-kernel/internal/protocol"
	"github.com/mirelabs/coherent/go-kernel/internal/runtime"
)

// #region config
// Config holds thresholds for both leaky integrators and trauma learning.
type Config struct {
	TempoDeadband       float64 // tempo counts as off-center beyond this
	DivergenceError     float64 // prediction error that counts as diverging
	DivergenceWindowSec float64 // sustained divergence before correction

	TraumaArousal   float64 // arousal that counts as overshoot
	TraumaWindowSec float64 // sustained overshoot before override

	StrikeArousalRise float64       // arousal rise on a relaxing pattern that earns a strike
	StrikeLimit       float64       // strikes before a lock
	StrikeDecay       float64       // strike decay per clean session
	LockDuration      time.Duration // pattern lock length
	HistorySize       int           // rolling resonance history length
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TempoDeadband:       0.01,
		DivergenceError:     0.6,
		DivergenceWindowSec: 30,
		TraumaArousal:       0.7,
		TraumaWindowSec:     5,
		StrikeArousalRise:   0.2,
		StrikeLimit:         3,
		StrikeDecay:         0.5,
		LockDuration:        24 * time.Hour,
		HistorySize:         5,
	}
}

// #endregion config

// #region watchdog

// Watchdog runs two independent leaky integrators every RUNNING tick.
type Watchdog struct {
	config     Config
	divergence float64 // seconds of tempo-off-center divergence
	trauma     float64 // seconds of sympathetic overshoot ("hot stove")
}

// New creates a watchdog.
func New(config Config) *Watchdog {
	return &Watchdog{config: config}
}

// Reset clears both accumulators, for session boundaries.
func (w *Watchdog) Reset() {
	w.divergence = 0
	w.trauma = 0
}

// Inspect advances both integrators by dt against the post-dispatch state
// and returns any corrective commands to enqueue. Commands pass through the
// safety gate like every other event; the watchdog has no privileged path.
func (w *Watchdog) Inspect(s runtime.RuntimeState, dt float64, now time.Time) []runtime.Event {
	if s.Status != runtime.StatusRunning {
		return nil
	}
	var commands []runtime.Event

	// Divergence: the controller is pushing tempo without closing the error.
	offCenter := math.Abs(s.TempoScale-1.0) > w.config.TempoDeadband
	if offCenter && s.Belief.PredictionError > w.config.DivergenceError {
		w.divergence += dt
	} else {
		w.divergence = math.Max(0, w.divergence-2*dt)
	}
	if w.divergence > w.config.DivergenceWindowSec {
		w.divergence = 0
		commands = append(commands,
			runtime.Event{
				ID:         uuid.New().String(),
				Type:       runtime.EventAdjustTempo,
				At:         now,
				Origin:     runtime.OriginWatchdog,
				TempoScale: 1.0,
			},
			runtime.Event{
				ID:      uuid.New().String(),
				Type:    runtime.EventAIVoiceMessage,
				At:      now,
				Origin:  runtime.OriginWatchdog,
				Message: "Let's return to the natural pace for a moment.",
			},
		)
	}

	// Hot stove: a stimulating pattern is overshooting sympathetic arousal.
	if s.Pattern != nil && s.Pattern.Stimulating() && s.Belief.Arousal > w.config.TraumaArousal {
		w.trauma += dt
	} else {
		w.trauma = math.Max(0, w.trauma-dt)
	}
	if w.trauma > w.config.TraumaWindowSec {
		w.trauma = 0
		fallback := protocol.Fallback()
		commands = append(commands,
			runtime.Event{
				ID:      uuid.New().String(),
				Type:    runtime.EventSympatheticOverride,
				At:      now,
				Origin:  runtime.OriginWatchdog,
				Pattern: &fallback,
				Reason:  "sustained sympathetic overshoot",
			},
		)
	}

	return commands
}

// #endregion watchdog
