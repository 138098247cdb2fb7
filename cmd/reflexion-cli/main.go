package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/reflexion-go/cmd/reflexion-cli/internal/commands"
)

var rootCmd = &cobra.Command{
	Use:   "reflexion-cli",
	Short: "CLI for running backtracking reasoning and tree search",
	Long: `A command-line interface for the reflexion-go engine that runs iterative
refinement with backtracking, or tree-structured thought search, against an
Anthropic model without writing boilerplate code.

The CLI provides:
- One-shot refinement runs with an expected answer
- Tree search over candidate reasoning steps
- YAML configuration for every engine tunable`,
	Version: "0.1.0",
}

func main() {
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewSearchCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
