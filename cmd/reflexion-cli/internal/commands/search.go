package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/reflexion-go/pkg/engine"
	"github.com/XiaoConstantine/reflexion-go/pkg/llms/anthropic"
	"github.com/XiaoConstantine/reflexion-go/pkg/treesearch"
)

// NewSearchCommand explores a tree of candidate reasoning steps.
func NewSearchCommand() *cobra.Command {
	var (
		apiKey     string
		configPath string
		strategy   string
		maxDepth   int
		beamWidth  int
		minValue   float64
	)

	cmd := &cobra.Command{
		Use:   "search <problem>",
		Short: "Explore candidate reasoning steps as a tree",
		Long: `Search a tree of model-proposed reasoning steps. Each step is scored by
the model; traversal order follows the configured strategy and stops at the
first step whose score clears the solution bar.`,
		Example: `  # Breadth-first over three candidates per step
  reflexion-cli search "prove the sum of two even numbers is even"

  # Deeper best-first search
  reflexion-cli search "plan a migration" --strategy best_first --max-depth 4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if strategy != "" {
				cfg.Search.Strategy = strategy
			}
			if maxDepth > 0 {
				cfg.Search.MaxDepth = maxDepth
			}
			if beamWidth > 0 {
				cfg.Search.BeamWidth = beamWidth
			}

			client, err := anthropic.New(apiKey)
			if err != nil {
				return err
			}

			solutionCheck := func(node *treesearch.Node) bool {
				return node.Evaluated && node.Value >= minValue
			}

			eng := engine.New(engine.WithConfig(cfg))
			res, err := eng.SearchTree(context.Background(), args[0],
				client.ThoughtFn(), client.EvaluationFn(), solutionCheck)
			if err != nil {
				return err
			}

			fmt.Printf("Reason:   %s\n", res.Reason)
			fmt.Printf("Explored: %d nodes\n", res.Explored)
			if res.Solution != nil {
				fmt.Printf("Solution: %s (%.3f)\n", res.Solution.Thought, res.Solution.Value)
			} else if res.Best != nil {
				fmt.Printf("Best:     %s (%.3f)\n", res.Best.Thought, res.Best.Value)
			}
			return nil
		},
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "Anthropic API key (defaults to ANTHROPIC_API_KEY)")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML engine configuration")
	cmd.Flags().StringVar(&strategy, "strategy", "", fmt.Sprintf("Traversal strategy (%s)", strings.Join([]string{"bfs", "dfs", "best_first"}, ", ")))
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Maximum tree depth")
	cmd.Flags().IntVar(&beamWidth, "beam-width", 0, "Candidate steps per expansion")
	cmd.Flags().Float64Var(&minValue, "solution-value", 0.9, "Score at which a step counts as a solution")

	return cmd
}
