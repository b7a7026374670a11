package belief

import (
	"math"
	"testing"
)

func TestUnscentedConvergesOnCalmReadings(t *testing.T) {
	u := NewUnscented(DefaultUnscentedConfig())
	u.SetProtocol(relaxingPattern())

	var b BeliefState
	for i := 0; i < 40; i++ {
		b = u.Update(Observation{Visible: true, HeartRate: ptr(60), HRConfidence: ptr(0.95)}, 0.25)
	}

	if b.Arousal >= 0.3 {
		t.Fatalf("arousal should settle below 0.3 on steady 60 BPM, got %.3f", b.Arousal)
	}
	if b.ArousalVar >= 0.1 {
		t.Fatalf("arousal variance should collapse, got %.4f", b.ArousalVar)
	}
}

func TestUnscentedRejectsOutlierReading(t *testing.T) {
	u := NewUnscented(DefaultUnscentedConfig())
	u.SetProtocol(relaxingPattern())

	var b BeliefState
	for i := 0; i < 40; i++ {
		b = u.Update(Observation{Visible: true, HeartRate: ptr(60), HRConfidence: ptr(0.95)}, 0.25)
	}
	before := b.Arousal

	b = u.Update(Observation{Visible: true, HeartRate: ptr(220), HRConfidence: ptr(0.95)}, 0.25)

	if b.MahalanobisDistance <= DefaultFilterConfig().OutlierThreshold {
		t.Fatalf("glitch reading should gate out, distance %.2f", b.MahalanobisDistance)
	}
	if math.Abs(b.Arousal-before) > 0.05 {
		t.Fatalf("rejected measurement moved arousal %.3f -> %.3f", before, b.Arousal)
	}
}

func TestUnscentedBoundedWithoutData(t *testing.T) {
	u := NewUnscented(DefaultUnscentedConfig())
	u.SetProtocol(relaxingPattern())

	var b BeliefState
	for i := 0; i < 200; i++ {
		b = u.Update(Observation{Visible: true}, 0.1)
	}

	if b.Arousal < 0 || b.Arousal > 1 {
		t.Fatalf("arousal left [0,1]: %.3f", b.Arousal)
	}
	if b.ArousalVar > DefaultFilterConfig().MaxVariance {
		t.Fatalf("variance above ceiling: %.3f", b.ArousalVar)
	}
}

func TestUnscentedZeroDTIsNoOp(t *testing.T) {
	u := NewUnscented(DefaultUnscentedConfig())
	before := u.Belief()
	if after := u.Update(Observation{Visible: true}, 0); after != before {
		t.Fatal("dt <= 0 must not advance the belief")
	}
}
