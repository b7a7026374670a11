package runtime

import (
	"testing"

	"github.com/mirelabs/coherent/go-kernel/internal/protocol"
)

func boxPattern() *protocol.Pattern {
	p, _ := protocol.Builtin("box")
	return &p
}

func runningState(t *testing.T) RuntimeState {
	t.Helper()
	s := Initial()
	s = Reduce(s, Event{Type: EventLoadProtocol, Pattern: boxPattern()})
	s = Reduce(s, Event{Type: EventStartSession})
	if s.Status != StatusRunning {
		t.Fatalf("setup: expected RUNNING, got %s", s.Status)
	}
	return s
}

func TestInitialState(t *testing.T) {
	s := Initial()
	if s.Status != StatusIdle || s.TempoScale != 1.0 || s.Pattern != nil {
		t.Fatalf("unexpected initial state %+v", s)
	}
	if s.SafetyRegistry == nil {
		t.Fatal("registry must be non-nil")
	}
}

func TestStartRequiresLoadedPattern(t *testing.T) {
	s := Reduce(Initial(), Event{Type: EventStartSession})
	if s.Status != StatusIdle {
		t.Fatalf("start without a pattern should not run, got %s", s.Status)
	}
}

func TestLoadThenStart(t *testing.T) {
	s := runningState(t)
	if s.Pattern.ID != "box" {
		t.Fatalf("pattern %s", s.Pattern.ID)
	}
	if s.Phase != 0 || s.PhaseDuration != 4 {
		t.Fatalf("expected phase 0 of 4s, got phase %d of %.1fs", s.Phase, s.PhaseDuration)
	}
	if s.TempoScale != 1.0 {
		t.Fatalf("start must reset tempo, got %.2f", s.TempoScale)
	}
}

func TestStartCapturesSessionBaseline(t *testing.T) {
	s := Initial()
	s = Reduce(s, Event{Type: EventLoadProtocol, Pattern: boxPattern()})
	b := s.Belief
	b.Arousal = 0.8
	s = Reduce(s, Event{Type: EventBeliefUpdate, Belief: &b})
	s = Reduce(s, Event{Type: EventStartSession})
	if s.SessionStartBelief.Arousal != 0.8 {
		t.Fatalf("session baseline should snapshot the belief at start, got %.2f", s.SessionStartBelief.Arousal)
	}
}

func TestTickAdvancesClockAndDerivedFields(t *testing.T) {
	s := runningState(t)
	s = Reduce(s, Event{Type: EventTick, DT: 2.5})
	s = Reduce(s, Event{Type: EventTick, DT: 1.0})
	if s.Clock != 3.5 {
		t.Fatalf("clock %.1f", s.Clock)
	}
	if s.PhaseElapsed != 3.5 || s.SessionDuration != 3.5 {
		t.Fatalf("derived fields: elapsed %.1f duration %.1f", s.PhaseElapsed, s.SessionDuration)
	}
}

func TestPhaseTransitionResetsElapsed(t *testing.T) {
	s := runningState(t)
	s = Reduce(s, Event{Type: EventTick, DT: 4})
	s = Reduce(s, Event{Type: EventPhaseTransition, Phase: 1})
	if s.Phase != 1 || s.PhaseElapsed != 0 {
		t.Fatalf("phase %d elapsed %.1f", s.Phase, s.PhaseElapsed)
	}
}

func TestPauseResume(t *testing.T) {
	s := runningState(t)
	s = Reduce(s, Event{Type: EventTick, DT: 2})
	s = Reduce(s, Event{Type: EventInterruption})
	if s.Status != StatusPaused {
		t.Fatalf("status %s", s.Status)
	}
	s = Reduce(s, Event{Type: EventTick, DT: 30})
	s = Reduce(s, Event{Type: EventResume})
	if s.Status != StatusRunning {
		t.Fatalf("status %s", s.Status)
	}
	if s.PhaseElapsed != 0 {
		t.Fatalf("resume should restart the current phase, elapsed %.1f", s.PhaseElapsed)
	}
}

func TestResumeOnlyFromPaused(t *testing.T) {
	s := Reduce(Initial(), Event{Type: EventResume})
	if s.Status != StatusIdle {
		t.Fatalf("resume while idle is a no-op, got %s", s.Status)
	}
}

func TestAdjustTempoRescalesPhase(t *testing.T) {
	s := runningState(t)
	s = Reduce(s, Event{Type: EventTick, DT: 5})
	s = Reduce(s, Event{Type: EventAdjustTempo, TempoScale: 1.2})
	if s.TempoScale != 1.2 {
		t.Fatalf("tempo %.2f", s.TempoScale)
	}
	if s.PhaseDuration != 4*1.2 {
		t.Fatalf("phase duration should rescale, got %.2f", s.PhaseDuration)
	}
	if s.LastTempoAt != 5 {
		t.Fatalf("last tempo change at %.1f", s.LastTempoAt)
	}
}

func TestSafetyLockOnlyFromDistressInterdiction(t *testing.T) {
	s := runningState(t)
	s = Reduce(s, Event{Type: EventSafetyInterdiction, Code: InterdictionStartLocked})
	if s.Status == StatusSafetyLock {
		t.Fatal("a non-distress interdiction must not lock")
	}
	s = Reduce(s, Event{Type: EventSafetyInterdiction, Code: InterdictionDistress})
	if s.Status != StatusSafetyLock {
		t.Fatalf("status %s", s.Status)
	}
	// Nothing the reducer sees leaves the lock.
	for _, e := range []Event{
		{Type: EventHalt},
		{Type: EventStartSession},
		{Type: EventLoadProtocol, Pattern: boxPattern()},
		{Type: EventResume},
	} {
		if next := Reduce(s, e); next.Status != StatusSafetyLock {
			t.Fatalf("%s escaped the safety lock", e.Type)
		}
	}
}

func TestSympatheticOverrideSwapsPatternAndResetsTempo(t *testing.T) {
	s := runningState(t)
	s = Reduce(s, Event{Type: EventAdjustTempo, TempoScale: 1.3})
	fb := protocol.Fallback()
	s = Reduce(s, Event{Type: EventSympatheticOverride, Pattern: &fb})
	if s.Pattern.ID != protocol.FallbackID {
		t.Fatalf("pattern %s", s.Pattern.ID)
	}
	if s.TempoScale != 1.0 {
		t.Fatalf("override should neutralize tempo, got %.2f", s.TempoScale)
	}
	if s.Status != StatusRunning {
		t.Fatalf("override keeps the session running, got %s", s.Status)
	}
}

func TestLoadSkipsZeroDurationFirstPhase(t *testing.T) {
	p := protocol.Pattern{ID: "odd", Phases: []protocol.Phase{
		{Name: "hold", Duration: 0},
		{Name: "inhale", Duration: 3},
	}}
	s := Reduce(Initial(), Event{Type: EventLoadProtocol, Pattern: &p})
	if s.Phase != 1 {
		t.Fatalf("zero-duration leading phase should be skipped, got phase %d", s.Phase)
	}
}

func TestNextPhaseWrapsAndSkipsZero(t *testing.T) {
	p := protocol.Pattern{ID: "g", Phases: []protocol.Phase{
		{Name: "inhale", Duration: 4},
		{Name: "exhale", Duration: 6},
		{Name: "hold", Duration: 0},
	}}
	next, wrapped := NextPhase(&p, 0)
	if next != 1 || wrapped {
		t.Fatalf("next %d wrapped %v", next, wrapped)
	}
	next, wrapped = NextPhase(&p, 1)
	if next != 0 || !wrapped {
		t.Fatalf("skipping the zero phase should wrap to 0, got %d wrapped %v", next, wrapped)
	}
}

func TestHaltFromRunning(t *testing.T) {
	s := runningState(t)
	s = Reduce(s, Event{Type: EventHalt, Reason: "user"})
	if s.Status != StatusHalted {
		t.Fatalf("status %s", s.Status)
	}
	if s.SessionDuration != 0 {
		t.Fatalf("session duration should clear outside a session, got %.1f", s.SessionDuration)
	}
}

func TestLoadAfterHaltReturnsToIdle(t *testing.T) {
	s := runningState(t)
	s = Reduce(s, Event{Type: EventHalt})
	s = Reduce(s, Event{Type: EventLoadProtocol, Pattern: boxPattern()})
	if s.Status != StatusIdle {
		t.Fatalf("status %s", s.Status)
	}
}

func TestVoiceMessageAndAgentStatus(t *testing.T) {
	s := Reduce(Initial(), Event{Type: EventAIVoiceMessage, Message: "breathe out slowly"})
	if s.PendingMessage != "breathe out slowly" || s.MessageSeq != 1 {
		t.Fatalf("message %q seq %d", s.PendingMessage, s.MessageSeq)
	}
	s = Reduce(s, Event{Type: EventAIStatusChange, AgentStatus: "observing"})
	if s.AgentStatus != "observing" {
		t.Fatalf("agent status %q", s.AgentStatus)
	}
}

func TestRegistryCloneIsolation(t *testing.T) {
	s := Initial()
	s = s.WithProfile("box", SafetyProfile{StressStrikes: 1, ResonanceHistory: []float64{0.4}})

	mutated := s.WithProfile("box", SafetyProfile{StressStrikes: 2})
	if s.Profile("box").StressStrikes != 1 {
		t.Fatal("prior snapshot mutated through the registry map")
	}
	if mutated.Profile("box").StressStrikes != 2 {
		t.Fatal("updated snapshot lost the write")
	}
}

func TestReduceIsTotalOverUnknownEvents(t *testing.T) {
	s := runningState(t)
	next := Reduce(s, Event{Type: EventType("SOMETHING_ELSE")})
	if next.Status != s.Status || next.Clock != s.Clock {
		t.Fatal("unknown event types must reduce to a no-op")
	}
}

func TestEventTypeClosedSet(t *testing.T) {
	for _, et := range AllEventTypes() {
		if !et.IsValid() {
			t.Fatalf("%s should be valid", et)
		}
	}
	if EventType("MYSTERY").IsValid() {
		t.Fatal("unknown type should be invalid")
	}
}
