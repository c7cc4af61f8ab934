package config

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate performs struct-tag validation plus cross-field checks that tags
// cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if _, err := semver.NewVersion(cfg.Codex.MinVersion); err != nil {
		return NewValidationError("codex", "min_version",
			fmt.Errorf("%w: %q is not a semantic version", ErrInvalidValue, cfg.Codex.MinVersion))
	}

	for i, tier := range cfg.Completion.Tiers {
		if tier.Name == "" {
			return NewValidationError("completion", fmt.Sprintf("tiers[%d].name", i), ErrInvalidValue)
		}
		if tier.ScoreThreshold < 0 || tier.ScoreThreshold > 100 {
			return NewValidationError("completion", fmt.Sprintf("tiers[%d].scoreThreshold", i),
				fmt.Errorf("%w: %d outside 0..100", ErrInvalidValue, tier.ScoreThreshold))
		}
		if tier.IterationThreshold < 1 {
			return NewValidationError("completion", fmt.Sprintf("tiers[%d].iterationThreshold", i),
				fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
		}
	}

	// Tiers are evaluated top-down with first match winning: a later tier with a
	// higher score threshold would be unreachable.
	for i := 1; i < len(cfg.Completion.Tiers); i++ {
		if cfg.Completion.Tiers[i].ScoreThreshold >= cfg.Completion.Tiers[i-1].ScoreThreshold {
			return NewValidationError("completion", fmt.Sprintf("tiers[%d]", i),
				fmt.Errorf("%w: score thresholds must strictly decrease", ErrInvalidValue))
		}
	}

	if cfg.Completion.IdenticalThreshold < cfg.Completion.StagnationThreshold {
		return NewValidationError("completion", "identical_threshold",
			fmt.Errorf("%w: must be >= stagnation_threshold", ErrInvalidValue))
	}

	return nil
}
