package config

import "time"

// DefaultConfig returns the engine defaults. Several of these thresholds
// (notably the 0.7 quality bar) are starting points for empirical tuning
// rather than derived constants.
func DefaultConfig() *Config {
	return &Config{
		Correction: CorrectionConfig{
			MaxIterations:    3,
			QualityThreshold: 0.7,
			Criticality:      "medium",
			CallTimeout:      60 * time.Second,
		},
		Search: SearchConfig{
			Strategy:       "bfs",
			BeamWidth:      3,
			MaxDepth:       3,
			PruneThreshold: 0.0,
			MaxConcurrency: 1,
			CallTimeout:    60 * time.Second,
		},
		Budget: BudgetConfig{
			Total:                   30,
			PriorityReserveFraction: 0.2,
		},
		Exploration: ExplorationConfig{
			DiversityThreshold: 0.3,
			ParameterStep:      0.15,
			Strategies:         []string{"analytical", "creative", "systematic", "intuitive"},
		},
		DeadEnd: DeadEndConfig{
			RepeatThreshold:     3,
			ConfidenceThreshold: 0.3,
			StallWindow:         3,
			HistoryWindow:       10,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "console",
		},
	}
}
