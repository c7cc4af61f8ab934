// Package completion decides when a session is done: tiered completion
// thresholds first, kill switches second. Evaluation is a pure function of
// its inputs — identical inputs always produce identical results.
package completion

import (
	"fmt"

	"github.com/codeready-toolchain/ganaudit/pkg/config"
	"github.com/codeready-toolchain/ganaudit/pkg/models"
)

// Kill switch names.
const (
	KillSwitchHardStop   = "Hard Stop"
	KillSwitchStagnation = "Stagnation"
	KillSwitchCritical   = "Critical Persistence"
)

// Input carries everything one evaluation needs. Stagnant and HasCritical are
// computed by the caller from the session window so the evaluator itself
// stays pure.
type Input struct {
	Score       int
	Loop        int
	Stagnant    bool
	HasCritical bool
}

// Evaluator applies completion tiers and kill switches.
type Evaluator struct {
	cfg *config.CompletionConfig
}

// NewEvaluator creates an evaluator over the given completion configuration.
func NewEvaluator(cfg *config.CompletionConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate runs tiers top-down (first match wins), then kill switches
// top-down. A tier match wins over any kill switch. No match means the
// session is still in progress with another thought needed.
func (e *Evaluator) Evaluate(in Input) *models.CompletionResult {
	for _, tier := range e.cfg.Tiers {
		if in.Score >= tier.ScoreThreshold && in.Loop >= tier.IterationThreshold {
			t := tier
			return &models.CompletionResult{
				Status:            models.StatusCompleted,
				Reason:            fmt.Sprintf("score %d ≥ %d and loop %d ≥ %d", in.Score, tier.ScoreThreshold, in.Loop, tier.IterationThreshold),
				NextThoughtNeeded: false,
				Tier:              &t,
			}
		}
	}

	if ks := e.matchKillSwitch(in); ks != nil {
		return &models.CompletionResult{
			Status:            models.StatusTerminated,
			Reason:            ks.Condition,
			NextThoughtNeeded: false,
			KillSwitch:        ks,
		}
	}

	return &models.CompletionResult{
		Status:            models.StatusInProgress,
		Reason:            fmt.Sprintf("no tier met at score %d, loop %d", in.Score, in.Loop),
		NextThoughtNeeded: true,
	}
}

func (e *Evaluator) matchKillSwitch(in Input) *models.KillSwitchMatch {
	if in.Loop >= e.cfg.MaxIterations {
		return &models.KillSwitchMatch{
			Name:      KillSwitchHardStop,
			Condition: fmt.Sprintf("loop %d reached the maximum of %d iterations", in.Loop, e.cfg.MaxIterations),
		}
	}
	if in.Stagnant && in.Loop >= e.cfg.StagnationStartLoop {
		return &models.KillSwitchMatch{
			Name:      KillSwitchStagnation,
			Condition: fmt.Sprintf("candidate content stagnant at loop %d", in.Loop),
		}
	}
	if in.HasCritical && in.Loop >= e.cfg.CriticalPersistLoop {
		return &models.KillSwitchMatch{
			Name:      KillSwitchCritical,
			Condition: fmt.Sprintf("critical issues still present at loop %d", in.Loop),
		}
	}
	return nil
}
