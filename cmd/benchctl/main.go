package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/snow-ghost/llmbench/core"
)

var (
	resultsDir string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "benchctl",
	Short:         "Run and analyse LLM benchmark scenarios",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `benchctl executes capability and paradox scenarios against a model,
stores every run under a strict run id and compares or profiles the stored
results.

Settings come from the environment (see RESULTS_DIR, MODELS_FILE,
OPENROUTER_API_KEY, AI_CONCURRENCY_LIMIT and friends); flags override them.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&resultsDir, "results-dir", "", "run store directory (overrides RESULTS_DIR)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describe(err))
		os.Exit(1)
	}
}

// describe keeps typed engine errors to their public message plus detail and
// passes flag or usage errors through.
func describe(err error) string {
	if e, ok := core.AsError(err); ok {
		return fmt.Sprintf("%s (%s)", core.PublicMessage(err), e.Msg)
	}
	return err.Error()
}
