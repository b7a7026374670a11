// Package bridge adapts the conversational AI agent to the kernel. The
// agent only ever sees immutable snapshots and only ever submits ordinary
// events through Dispatch; its commands get no special treatment from the
// safety gate.
package bridge

import (
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mirelabs/coherent/go-kernel/internal/protocol"
	"github.com/mirelabs/coherent/go-kernel/internal/runtime"
)

// #region dispatcher
// Dispatcher is the slice of the kernel the bridge needs.
type Dispatcher interface {
	Dispatch(e runtime.Event)
	State() runtime.RuntimeState
}

// #endregion dispatcher

// #region proposal
// Proposal is one upstream command before translation. Origin defaults to
// the agent; the user UI sets its own.
type Proposal struct {
	Action     string // load_protocol | start_session | adjust_tempo | halt | pause | resume | voice_message | status
	PatternID  string
	TempoScale float64
	Message    string
	Status     string
	Origin     runtime.Origin
	Payload    *structpb.Struct // free-form agent context, logged for audit
}

// #endregion proposal

// #region bridge

// Bridge translates agent proposals into kernel events and kernel snapshots
// into agent-readable records.
type Bridge struct {
	kernel  Dispatcher
	library *protocol.Library
	logger  *zap.Logger
}

// New creates a bridge.
func New(kernel Dispatcher, library *protocol.Library, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{kernel: kernel, library: library, logger: logger}
}

// Propose submits one agent command. Unknown pattern ids are forwarded with
// a nil pattern so the safety gate records the interdiction uniformly.
func (b *Bridge) Propose(p Proposal) {
	origin := p.Origin
	if origin == "" {
		origin = runtime.OriginAgent
	}
	e := runtime.Event{Origin: origin, Intervention: p.Payload}

	switch p.Action {
	case "load_protocol":
		e.Type = runtime.EventLoadProtocol
		if pattern, ok := b.library.Get(p.PatternID); ok {
			e.Pattern = &pattern
		}
	case "start_session":
		e.Type = runtime.EventStartSession
	case "adjust_tempo":
		e.Type = runtime.EventAdjustTempo
		e.TempoScale = p.TempoScale
	case "halt":
		e.Type = runtime.EventHalt
		e.Reason = "agent requested halt"
	case "pause":
		e.Type = runtime.EventInterruption
	case "resume":
		e.Type = runtime.EventResume
	case "voice_message":
		e.Type = runtime.EventAIVoiceMessage
		e.Message = p.Message
	case "status":
		e.Type = runtime.EventAIStatusChange
		e.AgentStatus = p.Status
	default:
		b.logger.Warn("unknown agent action, recording intervention only",
			zap.String("action", p.Action))
		e.Type = runtime.EventAIIntervention
		e.Reason = fmt.Sprintf("unrecognized action %q", p.Action)
	}

	b.kernel.Dispatch(e)
}

// #endregion bridge

// #region snapshot

// Snapshot renders a state snapshot as a structpb document for the agent.
func Snapshot(s runtime.RuntimeState) (*structpb.Struct, error) {
	fields := map[string]any{
		"status":           string(s.Status),
		"tempo_scale":      s.TempoScale,
		"cycle_count":      s.CycleCount,
		"phase":            s.Phase,
		"phase_elapsed":    s.PhaseElapsed,
		"session_duration": s.SessionDuration,
		"belief": map[string]any{
			"arousal":          s.Belief.Arousal,
			"attention":        s.Belief.Attention,
			"rhythm_alignment": s.Belief.RhythmAlignment,
			"valence":          s.Belief.Valence,
			"prediction_error": s.Belief.PredictionError,
			"confidence":       s.Belief.Confidence,
		},
	}
	if s.Pattern != nil {
		fields["pattern_id"] = s.Pattern.ID
	}
	if s.PendingMessage != "" {
		fields["pending_message"] = s.PendingMessage
	}
	doc, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("snapshot struct: %w", err)
	}
	return doc, nil
}

// #endregion snapshot
