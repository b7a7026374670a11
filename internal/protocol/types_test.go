package protocol

import (
	"math"
	"testing"
)

func TestCycleDurationAndBreathRate(t *testing.T) {
	p, ok := Builtin("4-7-8")
	if !ok {
		t.Fatal("4-7-8 should be built in")
	}
	if p.CycleDuration() != 19 {
		t.Fatalf("4-7-8 cycle should be 19s, got %.1f", p.CycleDuration())
	}
	if math.Abs(p.BreathsPerMinute()-60.0/19.0) > 1e-9 {
		t.Fatalf("unexpected breath rate %.3f", p.BreathsPerMinute())
	}
}

func TestBreathsPerMinuteEmptyPattern(t *testing.T) {
	if bpm := (Pattern{}).BreathsPerMinute(); bpm != 0 {
		t.Fatalf("empty pattern should report 0 breaths/min, got %.3f", bpm)
	}
}

func TestStimulating(t *testing.T) {
	if (Pattern{ArousalImpact: -0.5}).Stimulating() {
		t.Fatal("negative impact is sedative")
	}
	if !(Pattern{ArousalImpact: 0.6}).Stimulating() {
		t.Fatal("positive impact is stimulating")
	}
}

func TestValidateRejectsMalformedPatterns(t *testing.T) {
	cases := []Pattern{
		{Name: "no id", Phases: []Phase{{Name: "inhale", Duration: 4}}},
		{ID: "empty"},
		{ID: "zero", Phases: []Phase{{Name: "inhale", Duration: 0}}},
		{ID: "neg", Phases: []Phase{{Name: "inhale", Duration: 4}, {Name: "exhale", Duration: -1}}},
		{ID: "impact", Phases: []Phase{{Name: "inhale", Duration: 4}}, ArousalImpact: 1.5},
	}
	for _, p := range cases {
		if err := p.Validate(); err == nil {
			t.Fatalf("pattern %q should fail validation", p.ID)
		}
	}
}

func TestValidateAllowsZeroDurationPhase(t *testing.T) {
	p := Pattern{ID: "ok", Phases: []Phase{{Name: "inhale", Duration: 4}, {Name: "hold", Duration: 0}}}
	if err := p.Validate(); err != nil {
		t.Fatalf("zero-duration phase inside a positive cycle is legal: %v", err)
	}
}

func TestBuiltinsAreValid(t *testing.T) {
	lib := NewLibrary()
	if len(lib.All()) < 5 {
		t.Fatalf("expected at least 5 builtins, got %d", len(lib.All()))
	}
	for _, p := range lib.All() {
		if err := p.Validate(); err != nil {
			t.Fatalf("builtin %s invalid: %v", p.ID, err)
		}
	}
}

func TestFallbackIsSedative(t *testing.T) {
	fb := Fallback()
	if fb.ID != FallbackID {
		t.Fatalf("fallback id %q", fb.ID)
	}
	if fb.Stimulating() {
		t.Fatal("the override fallback must never be stimulating")
	}
}

func TestLibraryPutValidatesAndReplaces(t *testing.T) {
	lib := NewLibrary()
	if err := lib.Put(Pattern{ID: "bad"}); err == nil {
		t.Fatal("invalid pattern must not enter the library")
	}

	custom := Pattern{ID: "box", Name: "Custom Box", Phases: []Phase{
		{Name: "inhale", Duration: 5}, {Name: "exhale", Duration: 5},
	}}
	if err := lib.Put(custom); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok := lib.Get("box")
	if !ok || got.Name != "Custom Box" {
		t.Fatalf("put should replace the builtin, got %+v", got)
	}
}
