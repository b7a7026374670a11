package protocol

import "sync"

// #region builtins
// FallbackID is the safe pattern forced by a sympathetic override.
const FallbackID = "grounding"

var builtins = []Pattern{
	{
		ID:   "4-7-8",
		Name: "4-7-8 Relaxing Breath",
		Phases: []Phase{
			{Name: "inhale", Duration: 4},
			{Name: "hold", Duration: 7},
			{Name: "exhale", Duration: 8},
		},
		ArousalImpact: -0.7,
	},
	{
		ID:   "box",
		Name: "Box Breathing",
		Phases: []Phase{
			{Name: "inhale", Duration: 4},
			{Name: "hold", Duration: 4},
			{Name: "exhale", Duration: 4},
			{Name: "hold", Duration: 4},
		},
		ArousalImpact: -0.3,
	},
	{
		ID:   "coherence",
		Name: "Coherent Breathing",
		Phases: []Phase{
			{Name: "inhale", Duration: 5.5},
			{Name: "exhale", Duration: 5.5},
		},
		ArousalImpact: -0.4,
	},
	{
		ID:   "energize",
		Name: "Energizing Breath",
		Phases: []Phase{
			{Name: "inhale", Duration: 2},
			{Name: "exhale", Duration: 2},
		},
		ArousalImpact: 0.6,
	},
	{
		ID:   FallbackID,
		Name: "Grounding Breath",
		Phases: []Phase{
			{Name: "inhale", Duration: 4},
			{Name: "exhale", Duration: 6},
			{Name: "hold", Duration: 0},
		},
		ArousalImpact: -0.5,
	},
}

// Fallback returns the fixed safe pattern used when the watchdog seizes control.
func Fallback() Pattern {
	p, _ := Builtin(FallbackID)
	return p
}

// Builtin looks up a built-in pattern by id.
func Builtin(id string) (Pattern, bool) {
	for _, p := range builtins {
		if p.ID == id {
			return p, true
		}
	}
	return Pattern{}, false
}

// #endregion builtins

// #region library

// Library holds the runtime set of available patterns: builtins plus any
// user patterns loaded from disk. Safe for concurrent readers because the
// file watcher replaces entries from its own goroutine.
type Library struct {
	mu       sync.RWMutex
	patterns map[string]Pattern
}

// NewLibrary returns a library seeded with the built-in patterns.
func NewLibrary() *Library {
	lib := &Library{patterns: make(map[string]Pattern, len(builtins))}
	for _, p := range builtins {
		lib.patterns[p.ID] = p
	}
	return lib
}

// Get returns the pattern with the given id.
func (l *Library) Get(id string) (Pattern, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.patterns[id]
	return p, ok
}

// Put validates and stores a pattern, replacing any previous entry.
func (l *Library) Put(p Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.patterns[p.ID] = p
	return nil
}

// All returns a copy of every pattern in the library.
func (l *Library) All() []Pattern {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Pattern, 0, len(l.patterns))
	for _, p := range l.patterns {
		out = append(out, p)
	}
	return out
}

// #endregion library
