package belief

import (
	"math"
	"testing"

	"github.com/mirelabs/coherent/go-kernel/internal/protocol"
)

func relaxingPattern() *protocol.Pattern {
	p, _ := protocol.Builtin("4-7-8")
	return &p
}

func ptr(v float64) *float64 { return &v }

func TestFilterConvergesOnCalmReadings(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())
	f.SetProtocol(relaxingPattern())

	var b BeliefState
	for i := 0; i < 20; i++ {
		b = f.Update(Observation{
			Visible:      true,
			HeartRate:    ptr(60),
			HRConfidence: ptr(0.95),
		}, 0.5)
	}

	if b.Arousal >= 0.3 {
		t.Fatalf("arousal should converge below 0.3 on steady 60 BPM, got %.3f", b.Arousal)
	}
	if b.Confidence <= 0.5 {
		t.Fatalf("confidence should rise above 0.5 after 20 corrections, got %.3f", b.Confidence)
	}
	if b.ArousalVar >= 0.1 {
		t.Fatalf("arousal variance should collapse under steady data, got %.4f", b.ArousalVar)
	}
}

func TestFilterRejectsOutlierReading(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())
	f.SetProtocol(relaxingPattern())

	var b BeliefState
	for i := 0; i < 20; i++ {
		b = f.Update(Observation{Visible: true, HeartRate: ptr(60), HRConfidence: ptr(0.95)}, 0.5)
	}
	before := b.Arousal

	b = f.Update(Observation{Visible: true, HeartRate: ptr(220), HRConfidence: ptr(0.95)}, 0.5)

	if b.MahalanobisDistance <= DefaultFilterConfig().OutlierThreshold {
		t.Fatalf("220 BPM after stabilizing at 60 should gate out, distance %.2f", b.MahalanobisDistance)
	}
	if math.Abs(b.Arousal-before) > 0.05 {
		t.Fatalf("rejected measurement moved arousal %.3f -> %.3f", before, b.Arousal)
	}
}

func TestFilterDeadReckonsWithoutSensorData(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())
	f.SetProtocol(relaxingPattern())
	v0 := f.Belief().ArousalVar

	b := f.Update(Observation{Visible: true}, 1.0)

	if b.Arousal >= 0.5 {
		t.Fatalf("arousal should relax toward the calm target, got %.3f", b.Arousal)
	}
	if b.ArousalVar <= v0 {
		t.Fatalf("uncertainty should grow without measurements: %.4f <= %.4f", b.ArousalVar, v0)
	}
	if b.Innovation != 0 || b.MahalanobisDistance != 0 {
		t.Fatal("no measurement, no residual")
	}
}

func TestFilterIgnoresLowConfidenceHeartRate(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())
	f.SetProtocol(relaxingPattern())

	b := f.Update(Observation{Visible: true, HeartRate: ptr(120), HRConfidence: ptr(0.1)}, 0.5)

	if b.Innovation != 0 {
		t.Fatalf("confidence 0.1 is below the floor, reading must be ignored, innovation %.3f", b.Innovation)
	}
}

func TestFilterFusesStressIndexIntoArousal(t *testing.T) {
	low := NewFilter(DefaultFilterConfig())
	low.SetProtocol(relaxingPattern())
	high := NewFilter(DefaultFilterConfig())
	high.SetProtocol(relaxingPattern())

	calm := low.Update(Observation{Visible: true, HeartRate: ptr(80), HRConfidence: ptr(0.9), StressIndex: ptr(0.0)}, 0.5)
	tense := high.Update(Observation{Visible: true, HeartRate: ptr(80), HRConfidence: ptr(0.9), StressIndex: ptr(1.0)}, 0.5)

	if tense.Arousal <= calm.Arousal {
		t.Fatalf("same heart rate, higher stress should read more aroused: %.3f <= %.3f", tense.Arousal, calm.Arousal)
	}
}

func TestFilterBlendsFacialValence(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())
	f.SetProtocol(relaxingPattern())

	var b BeliefState
	for i := 0; i < 30; i++ {
		b = f.Update(Observation{Visible: true, FacialValence: ptr(-0.8)}, 0.5)
	}

	if b.Valence >= -0.3 {
		t.Fatalf("repeated negative expression should pull valence down, got %.3f", b.Valence)
	}
	if b.Valence < -1 || b.Valence > 1 {
		t.Fatalf("valence out of range: %.3f", b.Valence)
	}
}

func TestFilterAttentionDecaysWhenNotVisible(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())
	f.SetProtocol(relaxingPattern())

	var b BeliefState
	for i := 0; i < 10; i++ {
		b = f.Update(Observation{Visible: false}, 0.5)
	}

	if b.Attention >= 0.3 {
		t.Fatalf("attention should decay while the face is out of frame, got %.3f", b.Attention)
	}
}

func TestFilterRhythmAlignmentFromRespiration(t *testing.T) {
	p := relaxingPattern() // 19s cycle, ~3.16 breaths/min
	aligned := NewFilter(DefaultFilterConfig())
	aligned.SetProtocol(p)
	misaligned := NewFilter(DefaultFilterConfig())
	misaligned.SetProtocol(p)

	var onPace, offPace BeliefState
	for i := 0; i < 10; i++ {
		onPace = aligned.Update(Observation{Visible: true, Respiration: ptr(p.BreathsPerMinute())}, 0.5)
		offPace = misaligned.Update(Observation{Visible: true, Respiration: ptr(20.0)}, 0.5)
	}

	if onPace.RhythmAlignment <= offPace.RhythmAlignment {
		t.Fatalf("breathing on pace should align better: %.3f <= %.3f",
			onPace.RhythmAlignment, offPace.RhythmAlignment)
	}
}

func TestFilterZeroDTIsNoOp(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())
	before := f.Belief()

	after := f.Update(Observation{Visible: true, HeartRate: ptr(120), HRConfidence: ptr(0.9)}, 0)

	if after != before {
		t.Fatal("dt <= 0 must not advance the belief")
	}
}

func TestTargetForSelectsByArousalImpact(t *testing.T) {
	calm := TargetFor(&protocol.Pattern{ArousalImpact: -0.7})
	if calm != targetParasympathetic {
		t.Fatalf("impact -0.7 should map to the parasympathetic target, got %+v", calm)
	}
	hot := TargetFor(&protocol.Pattern{ArousalImpact: 0.6})
	if hot != targetSympathetic {
		t.Fatalf("impact 0.6 should map to the sympathetic target, got %+v", hot)
	}
	mid := TargetFor(&protocol.Pattern{ArousalImpact: 0.1})
	if mid != targetBalanced {
		t.Fatalf("impact 0.1 should map to the balanced target, got %+v", mid)
	}
	if TargetFor(nil) != targetDefault {
		t.Fatal("nil pattern should map to the default target")
	}
}
