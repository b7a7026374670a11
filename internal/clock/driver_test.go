package clock

import (
	"context"
	"errors"
	"testing"

	"github.com/mirelabs/coherent/go-kernel/internal/belief"
)

type fakeSource struct {
	obs  belief.Observation
	err  error
	hits int
}

func (f *fakeSource) Observe(ctx context.Context) (belief.Observation, error) {
	f.hits++
	return f.obs, f.err
}

type tickRecorder struct {
	steps []float64
}

func (r *tickRecorder) tick(dt float64, obs belief.Observation) {
	r.steps = append(r.steps, dt)
}

func TestAdvanceEmitsFixedSteps(t *testing.T) {
	rec := &tickRecorder{}
	d := NewDriver(DefaultConfig(), rec.tick, nil, nil)

	d.Advance(context.Background(), 0.35)

	if len(rec.steps) != 3 {
		t.Fatalf("0.35s at 10Hz should emit 3 steps, got %d", len(rec.steps))
	}
	for _, dt := range rec.steps {
		if dt != 0.1 {
			t.Fatalf("steps must be fixed-size, got %.3f", dt)
		}
	}

	// The ~0.05 remainder carries into the next frame.
	d.Advance(context.Background(), 0.06)
	if len(rec.steps) != 4 {
		t.Fatalf("accumulated remainder should emit the 4th step, got %d", len(rec.steps))
	}
}

func TestAdvanceCapsStalledFrame(t *testing.T) {
	rec := &tickRecorder{}
	d := NewDriver(DefaultConfig(), rec.tick, nil, nil)

	// 10s of background stall arrives as one frame: capped at 0.5s of
	// wall time, at most MaxCatchUp steps run, the rest is dropped.
	d.Advance(context.Background(), 10)

	if len(rec.steps) != DefaultConfig().MaxCatchUp {
		t.Fatalf("expected %d catch-up steps, got %d", DefaultConfig().MaxCatchUp, len(rec.steps))
	}

	// The dropped remainder must not leak into later frames.
	d.Advance(context.Background(), 0.05)
	if len(rec.steps) != DefaultConfig().MaxCatchUp {
		t.Fatalf("remainder leaked: %d steps", len(rec.steps))
	}
}

func TestAdvanceIgnoresNegativeDelta(t *testing.T) {
	rec := &tickRecorder{}
	d := NewDriver(DefaultConfig(), rec.tick, nil, nil)
	d.Advance(context.Background(), -5)
	if len(rec.steps) != 0 {
		t.Fatalf("negative wall delta should emit nothing, got %d", len(rec.steps))
	}
}

func TestSensorFeedsObservations(t *testing.T) {
	hr := 70.0
	src := &fakeSource{obs: belief.Observation{Visible: true, HeartRate: &hr}}
	var got belief.Observation
	d := NewDriver(DefaultConfig(), func(dt float64, obs belief.Observation) { got = obs }, src, nil)

	d.Advance(context.Background(), 0.1)

	if src.hits != 1 {
		t.Fatalf("source consulted %d times", src.hits)
	}
	if !got.Visible || got.HeartRate == nil {
		t.Fatalf("observation not forwarded: %+v", got)
	}
}

func TestSensorFailureDegradesToBlindFrame(t *testing.T) {
	src := &fakeSource{err: errors.New("camera gone")}
	var got belief.Observation
	d := NewDriver(DefaultConfig(), func(dt float64, obs belief.Observation) { got = obs }, src, nil)

	d.Advance(context.Background(), 0.1)

	if got.Visible {
		t.Fatal("a failing sensor must degrade to a blind observation")
	}
	if got.DT != DefaultConfig().Interval.Seconds() {
		t.Fatalf("blind frame dt %.3f", got.DT)
	}
}
