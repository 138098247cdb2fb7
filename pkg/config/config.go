// Package config defines the tunable surface of the refinement and search
// engine and loads it from YAML with struct-tag validation.
package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/XiaoConstantine/reflexion-go/pkg/errors"
)

// Config is the complete configuration for the engine.
type Config struct {
	// Correction configures the iterative refinement loop
	Correction CorrectionConfig `yaml:"correction"`

	// Search configures tree exploration
	Search SearchConfig `yaml:"search"`

	// Budget configures the exploration budget
	Budget BudgetConfig `yaml:"budget"`

	// Exploration configures alternative-path generation
	Exploration ExplorationConfig `yaml:"exploration"`

	// DeadEnd configures unrecoverable-trace detection
	DeadEnd DeadEndConfig `yaml:"dead_end"`

	// Logging configures log output
	Logging LoggingConfig `yaml:"logging"`
}

// CorrectionConfig tunes the refinement loop.
type CorrectionConfig struct {
	MaxIterations    int           `yaml:"max_iterations" validate:"min=1"`
	QualityThreshold float64       `yaml:"quality_threshold" validate:"gte=0,lte=1"`
	Criticality      string        `yaml:"criticality" validate:"oneof=low medium high"`
	CallTimeout      time.Duration `yaml:"call_timeout" validate:"gte=0"`
}

// SearchConfig tunes tree search.
type SearchConfig struct {
	Strategy       string        `yaml:"strategy" validate:"oneof=bfs dfs best_first"`
	BeamWidth      int           `yaml:"beam_width" validate:"min=1"`
	MaxDepth       int           `yaml:"max_depth" validate:"min=1"`
	PruneThreshold float64       `yaml:"prune_threshold" validate:"gte=0,lte=1"`
	MaxConcurrency int           `yaml:"max_concurrency" validate:"min=1"`
	CallTimeout    time.Duration `yaml:"call_timeout" validate:"gte=0"`
}

// BudgetConfig tunes the exploration budget.
type BudgetConfig struct {
	Total                   int     `yaml:"total" validate:"min=0"`
	PriorityReserveFraction float64 `yaml:"priority_reserve_fraction" validate:"gte=0,lt=1"`
}

// ExplorationConfig tunes alternative-path generation.
type ExplorationConfig struct {
	DiversityThreshold float64  `yaml:"diversity_threshold" validate:"gt=0,lte=1"`
	ParameterStep      float64  `yaml:"parameter_step" validate:"gt=0,lte=1"`
	Strategies         []string `yaml:"strategies" validate:"min=1,dive,required"`
}

// DeadEndConfig tunes dead-end detection.
type DeadEndConfig struct {
	RepeatThreshold     int     `yaml:"repeat_threshold" validate:"min=1"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" validate:"gte=0,lte=1"`
	StallWindow         int     `yaml:"stall_window" validate:"min=1"`
	HistoryWindow       int     `yaml:"history_window" validate:"min=1"`
}

// LoggingConfig tunes log output.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=DEBUG INFO WARN ERROR FATAL"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, errors.InvalidInput, "invalid configuration")
	}
	return nil
}

// Load reads a YAML configuration file over the defaults and validates the
// result, so partial files only override what they name.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.ResourceNotFound, "configuration file not found"),
				errors.Fields{"path": path},
			)
		}
		return nil, errors.Wrap(err, errors.Unknown, "failed to read configuration file")
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses YAML configuration over the defaults.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to parse configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
