package protocol

import "fmt"

// #region phase
// Phase is a single segment of a breathing cycle. Duration is in seconds at
// tempo scale 1.0; zero-duration phases are legal and skipped at runtime.
type Phase struct {
	Name     string  `yaml:"name"`
	Duration float64 `yaml:"duration"`
}

// #endregion phase

// #region pattern
// Pattern describes one guided breathing protocol.
type Pattern struct {
	ID            string  `yaml:"id"`
	Name          string  `yaml:"name"`
	Phases        []Phase `yaml:"phases"`
	ArousalImpact float64 `yaml:"arousal_impact"` // [-1, 1]: <0 sedative, >0 stimulating
}

// CycleDuration returns the unscaled length of one full cycle in seconds.
func (p Pattern) CycleDuration() float64 {
	var total float64
	for _, ph := range p.Phases {
		total += ph.Duration
	}
	return total
}

// BreathsPerMinute returns the paced breath rate at tempo scale 1.0.
// Returns 0 for an empty or zero-length pattern.
func (p Pattern) BreathsPerMinute() float64 {
	cycle := p.CycleDuration()
	if cycle <= 0 {
		return 0
	}
	return 60.0 / cycle
}

// Stimulating reports whether the pattern is expected to raise arousal.
func (p Pattern) Stimulating() bool {
	return p.ArousalImpact > 0
}

// Validate checks structural constraints before a pattern enters the library.
func (p Pattern) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("pattern missing id")
	}
	if len(p.Phases) == 0 {
		return fmt.Errorf("pattern %s has no phases", p.ID)
	}
	if p.CycleDuration() <= 0 {
		return fmt.Errorf("pattern %s has zero total duration", p.ID)
	}
	if p.ArousalImpact < -1 || p.ArousalImpact > 1 {
		return fmt.Errorf("pattern %s arousal impact %.2f out of [-1, 1]", p.ID, p.ArousalImpact)
	}
	for i, ph := range p.Phases {
		if ph.Duration < 0 {
			return fmt.Errorf("pattern %s phase %d has negative duration", p.ID, i)
		}
	}
	return nil
}

// #endregion pattern
