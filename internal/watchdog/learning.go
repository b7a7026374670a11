package watchdog

import (
	"time"

	"github.com/mirelabs/coherent/go-kernel/internal/belief"
	"github.com/mirelabs/coherent/go-kernel/internal/protocol"
	"github.com/mirelabs/coherent/go-kernel/internal/runtime"
)

// #region learn
// Learn folds one finished (or force-ended) session into a pattern's safety
// profile: session outcome scoring, the rolling resonance history, and the
// stress-strike counter that accrues 24h locks.
func Learn(profile runtime.SafetyProfile, p *protocol.Pattern, start, end belief.BeliefState, now time.Time, config Config) runtime.SafetyProfile {
	if p == nil {
		return profile
	}

	rawDeltaArousal := end.Arousal - start.Arousal
	deltaValence := end.Valence - start.Valence

	// Sign correction: on an energizing pattern a rise in arousal is the
	// intended outcome, not a cost.
	deltaArousal := rawDeltaArousal
	if p.Stimulating() {
		deltaArousal = -rawDeltaArousal
	}

	outcomeCost := deltaArousal - deltaValence
	sessionScore := clampScore(0.5 - outcomeCost*0.5)

	// Rolling history, newest first.
	history := append([]float64{sessionScore}, profile.ResonanceHistory...)
	if len(history) > config.HistorySize {
		history = history[:config.HistorySize]
	}
	profile.ResonanceHistory = history
	profile.ResonanceScore = mean(history)

	// Hot-stove strikes: a relaxing pattern that raised arousal.
	if !p.Stimulating() && rawDeltaArousal > config.StrikeArousalRise {
		profile.StressStrikes++
		profile.CumulativeStress += rawDeltaArousal
		profile.LastIncident = now.UnixMilli()
		if profile.StressStrikes >= config.StrikeLimit {
			profile.SafetyLockUntil = now.Add(config.LockDuration).UnixMilli()
			profile.StressStrikes = 0
		}
	} else {
		profile.StressStrikes -= config.StrikeDecay
		if profile.StressStrikes < 0 {
			profile.StressStrikes = 0
		}
	}

	return profile
}

// #endregion learn

// #region helpers

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// #endregion helpers
