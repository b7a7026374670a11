// Package kernel is the homeostatic control kernel: an event-sourced reducer
// that owns protocol state, gates every command through the safety monitor,
// and lets the resonance watchdog seize control when the loop diverges.
package kernel

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mirelabs/coherent/go-kernel/internal/belief"
	"github.com/mirelabs/coherent/go-kernel/internal/protocol"
	"github.com/mirelabs/coherent/go-kernel/internal/runtime"
	"github.com/mirelabs/coherent/go-kernel/internal/safety"
	"github.com/mirelabs/coherent/go-kernel/internal/tempo"
	"github.com/mirelabs/coherent/go-kernel/internal/watchdog"
)

// #region collaborators

// Estimator turns per-tick observations into belief states. The linear
// adaptive filter is the wired-in default; the sigma-point variant satisfies
// the same contract.
type Estimator interface {
	SetProtocol(p *protocol.Pattern)
	Update(obs belief.Observation, dt float64) belief.BeliefState
}

// Persister is the external persistence collaborator. Failures are logged
// and swallowed: the control loop proceeds as if the write succeeded.
type Persister interface {
	GetMeta(key string, out any) (bool, error)
	SetMeta(key string, value any) error
	WriteEvent(e runtime.Event) error
	GarbageCollect(retention time.Duration) error
}

// Middleware inspects each applied event and may enqueue follow-up commands
// into the bounded queue. It must not dispatch directly.
type Middleware func(s runtime.RuntimeState, e runtime.Event, enqueue func(runtime.Event))

// Subscriber receives immutable state snapshots after dispatch.
type Subscriber func(s runtime.RuntimeState)

// #endregion collaborators

// #region config
// Config bundles the kernel's own knobs with its components'.
type Config struct {
	LogSize        int           // bounded event ring for replay/audit
	QueueDepth     int           // max queued follow-up commands per dispatch
	NotifyInterval time.Duration // subscriber throttle; critical events bypass
	MetaRegistry   string        // meta key the safety registry persists under

	Monitor  safety.MonitorConfig
	Watchdog watchdog.Config
	Law      tempo.LawConfig

	Now func() time.Time // injectable clock, nil means time.Now
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogSize:        1000,
		QueueDepth:     5,
		NotifyInterval: 16 * time.Millisecond,
		MetaRegistry:   "safety_registry",
		Monitor:        safety.DefaultMonitorConfig(),
		Watchdog:       watchdog.DefaultConfig(),
		Law:            tempo.DefaultLawConfig(),
	}
}

// #endregion config

// #region kernel

// Kernel owns RuntimeState exclusively. All mutation is synchronous and
// single-threaded; the state is a value replaced wholesale per dispatch, so
// subscribers never observe partial updates.
type Kernel struct {
	config    Config
	logger    *zap.Logger
	estimator Estimator
	persister Persister // may be nil: in-memory operation
	monitor   *safety.Monitor
	watchdog  *watchdog.Watchdog
	law       *tempo.Law

	state       runtime.RuntimeState
	middlewares []Middleware
	subscribers map[int]Subscriber
	nextSub     int

	log      []runtime.Event
	queue    []runtime.Event
	draining bool

	lastNotify time.Time
	now        func() time.Time
}

// New constructs a kernel with explicit dependencies. One instance is
// created at process start and passed by reference to every consumer; there
// is no ambient global.
func New(config Config, estimator Estimator, persister Persister, logger *zap.Logger) *Kernel {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	k := &Kernel{
		config:      config,
		logger:      logger,
		estimator:   estimator,
		persister:   persister,
		monitor:     safety.NewMonitor(config.Monitor),
		watchdog:    watchdog.New(config.Watchdog),
		law:         tempo.NewLaw(config.Law),
		state:       runtime.Initial(),
		subscribers: map[int]Subscriber{},
		now:         now,
	}
	k.Use(k.tempoLaw)
	return k
}

// State returns the current immutable state snapshot.
func (k *Kernel) State() runtime.RuntimeState {
	return k.state
}

// LogBuffer returns a copy of the bounded event-sourcing log, oldest first.
func (k *Kernel) LogBuffer() []runtime.Event {
	out := make([]runtime.Event, len(k.log))
	copy(out, k.log)
	return out
}

// Violations exposes the safety monitor's bounded violation ring.
func (k *Kernel) Violations() []safety.Violation {
	return k.monitor.Violations()
}

// Use registers a middleware.
func (k *Kernel) Use(m Middleware) {
	k.middlewares = append(k.middlewares, m)
}

// Subscribe registers a snapshot observer and returns its unsubscribe func.
func (k *Kernel) Subscribe(cb Subscriber) func() {
	id := k.nextSub
	k.nextSub++
	k.subscribers[id] = cb
	return func() { delete(k.subscribers, id) }
}

// #endregion kernel

// #region boot

// Boot garbage-collects the event log, loads the persisted safety registry,
// and dispatches BOOT. Persistence failures degrade to in-memory operation.
func (k *Kernel) Boot(retention time.Duration) {
	if k.persister != nil {
		if err := k.persister.GarbageCollect(retention); err != nil {
			k.logger.Warn("event log gc failed", zap.Error(err))
		}
	}
	k.Dispatch(runtime.Event{Type: runtime.EventBoot, Origin: runtime.OriginKernel})

	if k.persister != nil {
		var registry map[string]runtime.SafetyProfile
		ok, err := k.persister.GetMeta(k.config.MetaRegistry, &registry)
		if err != nil {
			k.logger.Warn("safety registry load failed", zap.Error(err))
		} else if ok {
			k.LoadSafetyRegistry(registry)
		}
	}
}

// LoadSafetyRegistry replaces the in-state registry.
func (k *Kernel) LoadSafetyRegistry(registry map[string]runtime.SafetyProfile) {
	k.Dispatch(runtime.Event{
		Type:     runtime.EventLoadSafetyRegistry,
		Origin:   runtime.OriginKernel,
		Registry: registry,
	})
}

// #endregion boot

// #region dispatch

// Dispatch runs one command through the full pipeline, then processes any
// follow-up commands breadth-first. Never panics into the caller and never
// returns an error: unsafe events are corrected or dropped.
func (k *Kernel) Dispatch(e runtime.Event) {
	if k.draining {
		// A command produced mid-pipeline (a subscriber reacting to a
		// snapshot) joins the bounded queue instead of recursing.
		k.enqueue(e)
		return
	}
	k.draining = true
	defer func() { k.draining = false }()
	k.dispatchOne(e)
	k.drain()
}

func (k *Kernel) dispatchOne(e runtime.Event) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.At.IsZero() {
		e.At = k.now()
	}

	// HALT is unconditional and triggers trauma learning synchronously
	// before anything else sees the event.
	if e.Type == runtime.EventHalt {
		k.learnFrom(k.state, "halt")
		k.watchdog.Reset()
	}

	// 1. Safety gate. Uniform for every origin.
	res := k.monitor.CheckEvent(e, k.state)
	if !res.Safe {
		k.rejected(e, res)
		return
	}
	if res.Corrected != nil {
		k.logger.Info("event corrected by shield",
			zap.String("type", string(e.Type)),
			zap.String("note", res.Corrected.CorrectionNote))
		e = *res.Corrected
	}

	// 2. Durable log. High-frequency TICKs stay out of persistence.
	k.appendLog(e)
	if e.Type != runtime.EventTick && k.persister != nil {
		k.persistEvent(e)
	}

	// 3. Pure reduction.
	prev := k.state
	k.state = runtime.Reduce(k.state, e)

	// Keep the estimator's target in step with the active protocol.
	switch e.Type {
	case runtime.EventBoot, runtime.EventLoadProtocol, runtime.EventSympatheticOverride:
		k.estimator.SetProtocol(k.state.Pattern)
	case runtime.EventStartSession:
		k.watchdog.Reset()
	}

	// A forced override is a harm signal: learn from it immediately,
	// against the pattern that caused it.
	if e.Type == runtime.EventSympatheticOverride {
		k.learnFrom(prev, "override")
	}

	// Sustained distress escalates to a sticky safety lock.
	if res.Violation != nil && res.Violation.Invariant == safety.InvariantDistress {
		k.enqueue(runtime.Event{
			Type:   runtime.EventSafetyInterdiction,
			Origin: runtime.OriginKernel,
			Code:   runtime.InterdictionDistress,
			Reason: res.Violation.Reason,
		})
	}

	// 4. Middlewares may enqueue follow-up commands, never dispatch.
	for _, mw := range k.middlewares {
		mw(k.state, e, k.enqueue)
	}

	// 5. Broadcast the new snapshot.
	k.notify(e)
}

// rejected handles a dropped event: protocol errors surface as
// SAFETY_INTERDICTION facts for observability, everything is logged.
func (k *Kernel) rejected(e runtime.Event, res safety.CheckResult) {
	reason := "invariant violation"
	code := runtime.InterdictionCode("")
	if res.Violation != nil {
		reason = res.Violation.Reason
		switch res.Violation.Invariant {
		case safety.InvariantPatternLocked:
			code = runtime.InterdictionPatternLocked
		case safety.InvariantUnknownPattern:
			code = runtime.InterdictionUnknownPattern
		case safety.InvariantStartLocked:
			code = runtime.InterdictionStartLocked
		}
	}
	k.logger.Warn("event dropped by safety gate",
		zap.String("type", string(e.Type)),
		zap.String("origin", string(e.Origin)),
		zap.String("reason", reason))
	if code != "" {
		k.enqueue(runtime.Event{
			Type:   runtime.EventSafetyInterdiction,
			Origin: runtime.OriginKernel,
			Code:   code,
			Reason: reason,
		})
	}
}

// #endregion dispatch

// #region queue

// enqueue adds a follow-up command to the bounded queue. Overflow is
// dropped with a log line; cascades cannot grow without bound.
func (k *Kernel) enqueue(e runtime.Event) {
	if len(k.queue) >= k.config.QueueDepth {
		k.logger.Warn("command queue full, dropping",
			zap.String("type", string(e.Type)),
			zap.String("origin", string(e.Origin)))
		return
	}
	k.queue = append(k.queue, e)
}

// drain processes queued commands breadth-first. Each command runs the full
// dispatch pipeline and may enqueue more, up to the depth bound. The caller
// (Dispatch) holds the draining flag for the whole run.
func (k *Kernel) drain() {
	for len(k.queue) > 0 {
		e := k.queue[0]
		k.queue = k.queue[1:]
		k.dispatchOne(e)
	}
}

// #endregion queue

// #region tick

// Tick is the per-frame entry point from the clock driver: estimator,
// watchdog, phase machine, then the TICK fact itself.
func (k *Kernel) Tick(dt float64, obs belief.Observation) {
	if dt <= 0 {
		return
	}

	b := k.estimator.Update(obs, dt)
	k.Dispatch(runtime.Event{
		Type:   runtime.EventBeliefUpdate,
		Origin: runtime.OriginKernel,
		DT:     dt,
		Belief: &b,
	})

	if k.state.Status == runtime.StatusRunning {
		for _, cmd := range k.watchdog.Inspect(k.state, dt, k.now()) {
			k.enqueue(cmd)
		}
		k.drain()
	}

	// Advance the phase machine. PhaseElapsed still reflects the previous
	// tick's clock, so the step about to be applied counts toward it.
	if s := k.state; s.Status == runtime.StatusRunning && s.Pattern != nil &&
		s.PhaseDuration > 0 && s.PhaseElapsed+dt >= s.PhaseDuration {
		next, wrapped := runtime.NextPhase(s.Pattern, s.Phase)
		if wrapped {
			k.Dispatch(runtime.Event{Type: runtime.EventCycleComplete, Origin: runtime.OriginKernel})
		}
		k.Dispatch(runtime.Event{Type: runtime.EventPhaseTransition, Origin: runtime.OriginKernel, Phase: next})
	}

	k.Dispatch(runtime.Event{
		Type:        runtime.EventTick,
		Origin:      runtime.OriginKernel,
		DT:          dt,
		Observation: &obs,
	})
}

// #endregion tick

// #region tempo-law

// tempoLaw is the wired-in controller: proposals are ordinary ADJUST_TEMPO
// commands and pass the safety gate like anything else.
func (k *Kernel) tempoLaw(s runtime.RuntimeState, e runtime.Event, enqueue func(runtime.Event)) {
	if e.Type != runtime.EventBeliefUpdate || s.Status != runtime.StatusRunning {
		return
	}
	if next, ok := k.law.Propose(s.Belief.RhythmAlignment, s.TempoScale, s.SessionDuration); ok {
		enqueue(runtime.Event{
			Type:       runtime.EventAdjustTempo,
			Origin:     runtime.OriginKernel,
			TempoScale: next,
		})
	}
}

// #endregion tempo-law

// #region registry

// UpdateSafetyProfile replaces one pattern's profile and persists the
// registry asynchronously.
func (k *Kernel) UpdateSafetyProfile(id string, p runtime.SafetyProfile) {
	k.state = k.state.WithProfile(id, p)
	k.persistRegistry()
}

// ResetSafetyProfile is the explicit user reset: it clears a pattern's lock
// and score, and releases a kernel-level safety lock. Nothing else unlocks
// a locked kernel.
func (k *Kernel) ResetSafetyProfile(id string) {
	if k.state.Status == runtime.StatusSafetyLock {
		// Leaving the lock is the one transition reserved for the user.
		k.state.Status = runtime.StatusIdle
	}
	// The cleared registry goes through the normal pipeline so the reset is
	// logged, reduced, and broadcast like any other command.
	registry := k.state.WithProfile(id, runtime.SafetyProfile{}).SafetyRegistry
	k.Dispatch(runtime.Event{
		Type:     runtime.EventLoadSafetyRegistry,
		Origin:   runtime.OriginUser,
		Registry: registry,
	})
	k.persistRegistry()
	k.logger.Info("safety profile reset", zap.String("pattern", id))
}

// learnFrom folds the ending session into the active pattern's profile.
func (k *Kernel) learnFrom(s runtime.RuntimeState, cause string) {
	if s.Pattern == nil || !s.Status.InSession() {
		return
	}
	id := s.Pattern.ID
	updated := watchdog.Learn(s.Profile(id), s.Pattern, s.SessionStartBelief, s.Belief, k.now(), k.config.Watchdog)
	k.state = k.state.WithProfile(id, updated)
	k.persistRegistry()
	k.logger.Info("trauma learning applied",
		zap.String("pattern", id),
		zap.String("cause", cause),
		zap.Float64("resonance", updated.ResonanceScore),
		zap.Float64("strikes", updated.StressStrikes))
}

func (k *Kernel) persistRegistry() {
	if k.persister == nil {
		return
	}
	registry := k.state.SafetyRegistry
	go func() {
		if err := k.persister.SetMeta(k.config.MetaRegistry, registry); err != nil {
			k.logger.Warn("safety registry persist failed", zap.Error(err))
		}
	}()
}

// #endregion registry

// #region persistence

func (k *Kernel) persistEvent(e runtime.Event) {
	p := k.persister
	go func() {
		if err := p.WriteEvent(e); err != nil {
			k.logger.Warn("event persist failed",
				zap.String("type", string(e.Type)), zap.Error(err))
		}
	}()
}

func (k *Kernel) appendLog(e runtime.Event) {
	k.log = append(k.log, e)
	if max := k.config.LogSize; max > 0 && len(k.log) > max {
		k.log = k.log[len(k.log)-max:]
	}
}

// #endregion persistence

// #region notify

// notify broadcasts the snapshot, throttled to the minimum interval except
// for critical transitions. A panicking subscriber is isolated and logged;
// it cannot break dispatch or other observers.
func (k *Kernel) notify(e runtime.Event) {
	now := k.now()
	if !k.critical(e) && now.Sub(k.lastNotify) < k.config.NotifyInterval {
		return
	}
	k.lastNotify = now

	snapshot := k.state
	for id, cb := range k.subscribers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					k.logger.Error("subscriber panicked",
						zap.Int("subscriber", id), zap.Any("panic", r))
				}
			}()
			cb(snapshot)
		}()
	}
}

func (k *Kernel) critical(e runtime.Event) bool {
	switch e.Type {
	case runtime.EventPhaseTransition, runtime.EventAIStatusChange, runtime.EventAIVoiceMessage:
		return true
	}
	return k.state.Status != runtime.StatusRunning
}

// #endregion notify
