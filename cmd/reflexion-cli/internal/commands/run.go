package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/reflexion-go/pkg/config"
	"github.com/XiaoConstantine/reflexion-go/pkg/engine"
	"github.com/XiaoConstantine/reflexion-go/pkg/llms/anthropic"
	"github.com/XiaoConstantine/reflexion-go/pkg/logging"
	"github.com/XiaoConstantine/reflexion-go/pkg/state"
)

// NewRunCommand runs one backtracking refinement attempt against an expected
// answer.
func NewRunCommand() *cobra.Command {
	var (
		apiKey     string
		configPath string
		expected   string
		strategy   string
	)

	cmd := &cobra.Command{
		Use:   "run <problem>",
		Short: "Refine an answer with retry and backtracking",
		Long: `Run the backtracking engine on a single problem. The engine generates
candidate answers, measures how far each diverges from the expected one, and
retries, backtracks, or accepts a partial result within its budget.`,
		Example: `  # Refine until the answer matches
  reflexion-cli run "6 * 60" --expected 360

  # Tune the engine from a config file
  reflexion-cli run "6 * 60" --expected 360 --config engine.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			client, err := anthropic.New(apiKey)
			if err != nil {
				return err
			}

			initial := state.ReasoningState{"problem": args[0]}
			if strategy != "" {
				initial["strategy"] = strategy
			}

			eng := engine.New(engine.WithConfig(cfg))
			res, err := eng.Run(context.Background(), initial, expected, client.GenerateFn())
			if err != nil {
				return err
			}

			fmt.Printf("Status:     %s\n", res.Status)
			fmt.Printf("Answer:     %v\n", res.Output["value"])
			fmt.Printf("Quality:    %.3f\n", res.Quality)
			fmt.Printf("Attempts:   %d\n", res.Attempts)
			fmt.Printf("Backtracks: %d\n", res.Backtracks)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "Anthropic API key (defaults to ANTHROPIC_API_KEY)")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML engine configuration")
	cmd.Flags().StringVar(&expected, "expected", "", "Expected answer the run refines toward")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Initial reasoning strategy hint")
	_ = cmd.MarkFlagRequired("expected")

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	configureLogging(cfg)
	return cfg, nil
}

func configureLogging(cfg *config.Config) {
	var output logging.Output
	switch cfg.Logging.Format {
	case "json":
		output = logging.NewJSONOutput(os.Stderr)
	default:
		output = logging.NewConsoleOutput(true)
	}

	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: logging.ParseSeverity(cfg.Logging.Level),
		Outputs:  []logging.Output{output},
	}))
}
