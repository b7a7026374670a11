// Package clock drives the kernel at a bounded control frequency. The
// driver is the only place wall-clock time enters the loop; everything
// downstream sees fixed dt steps.
package clock

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mirelabs/coherent/go-kernel/internal/belief"
)

// #region types

// Source produces per-frame observations. A failing source degrades the
// frame to a blind observation, never stalls the loop.
type Source interface {
	Observe(ctx context.Context) (belief.Observation, error)
}

// TickFunc receives one fixed control step.
type TickFunc func(dt float64, obs belief.Observation)

// Config bounds the driver's work per frame.
type Config struct {
	Interval    time.Duration // control step, default 100ms (10 Hz)
	MaxFrameSec float64       // cap on accumulated wall delta per frame
	MaxCatchUp  int           // cap on catch-up steps after a stall
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    100 * time.Millisecond,
		MaxFrameSec: 0.5,
		MaxCatchUp:  4,
	}
}

// #endregion types

// #region driver

// Driver accumulates wall-clock delta and emits fixed-interval ticks.
type Driver struct {
	config Config
	tick   TickFunc
	source Source // may be nil: dead-reckoning only
	logger *zap.Logger

	accumulator float64
}

// NewDriver creates a driver.
func NewDriver(config Config, tick TickFunc, source Source, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{config: config, tick: tick, source: source, logger: logger}
}

// Run blocks until ctx is cancelled, emitting ticks at the control
// frequency. Stalls (backgrounding, GC pauses) are absorbed by the frame
// cap and the catch-up bound rather than replayed in full.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			delta := now.Sub(last).Seconds()
			last = now
			d.Advance(ctx, delta)
		}
	}
}

// Advance feeds one frame's wall-clock delta through the accumulator.
// Split out from Run so tests can drive it deterministically.
func (d *Driver) Advance(ctx context.Context, delta float64) {
	if delta < 0 {
		delta = 0
	}
	if delta > d.config.MaxFrameSec {
		d.logger.Debug("capping stalled frame", zap.Float64("delta", delta))
		delta = d.config.MaxFrameSec
	}
	d.accumulator += delta

	step := d.config.Interval.Seconds()
	obs := d.observe(ctx, step)

	steps := 0
	for d.accumulator >= step && steps < d.config.MaxCatchUp {
		d.tick(step, obs)
		d.accumulator -= step
		steps++
	}
	if steps == d.config.MaxCatchUp && d.accumulator >= step {
		// Worst-case work per frame is bounded; drop the remainder.
		d.accumulator = 0
	}
}

func (d *Driver) observe(ctx context.Context, step float64) belief.Observation {
	blind := belief.Observation{Timestamp: time.Now(), DT: step, Visible: false}
	if d.source == nil {
		return blind
	}
	obs, err := d.source.Observe(ctx)
	if err != nil {
		d.logger.Debug("sensor unavailable, dead reckoning", zap.Error(err))
		return blind
	}
	return obs
}

// #endregion driver
