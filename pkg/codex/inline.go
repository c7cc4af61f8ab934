package codex

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/codeready-toolchain/ganaudit/pkg/models"
)

// inlineConfigRegex matches a fenced config block inside free text:
//
//	```config
//	task: tighten error handling
//	threshold: 90
//	```
var inlineConfigRegex = regexp.MustCompile("(?s)```(?:config|ganaudit-config)\\s*\\n(.*?)\\n?```")

// InlineConfig is the caller's in-band override of audit parameters, carried
// as a fenced config block in the thought text. The schema is fixed: unknown
// keys are a validation error, never silently accepted.
type InlineConfig struct {
	Task      string   `yaml:"task"`
	Scope     string   `yaml:"scope"`
	Paths     []string `yaml:"paths"`
	Threshold int      `yaml:"threshold"`
	Judges    []string `yaml:"judges"`
	MaxCycles int      `yaml:"maxCycles"`
}

// ExtractInlineConfig finds and strictly parses the first fenced config block
// in the thought text. Returns (nil, nil) when no block is present.
func ExtractInlineConfig(thought string) (*InlineConfig, error) {
	match := inlineConfigRegex.FindStringSubmatch(thought)
	if match == nil {
		return nil, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader([]byte(match[1])))
	dec.KnownFields(true)

	var cfg InlineConfig
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, models.NewDiagnostic(models.CategoryValidation,
			"invalid inline config block", err.Error()).
			WithSuggestions("Allowed keys: task, scope, paths, threshold, judges, maxCycles")
	}

	if cfg.Scope != "" && !models.ContextScope(cfg.Scope).Valid() {
		return nil, models.NewDiagnostic(models.CategoryValidation,
			fmt.Sprintf("inline config scope %q not in {diff, paths, workspace}", cfg.Scope), "")
	}
	if cfg.Threshold < 0 || cfg.Threshold > 100 {
		return nil, models.NewDiagnostic(models.CategoryValidation,
			fmt.Sprintf("inline config threshold %d outside 0..100", cfg.Threshold), "")
	}
	if cfg.MaxCycles < 0 {
		return nil, models.NewDiagnostic(models.CategoryValidation,
			"inline config maxCycles must be >= 0", "")
	}

	return &cfg, nil
}

// StripInlineConfig removes the fenced config block from the thought text so
// the candidate payload sent to the CLI is the code alone.
func StripInlineConfig(thought string) string {
	return strings.TrimSpace(inlineConfigRegex.ReplaceAllString(thought, ""))
}
