package main

import (
	"github.com/spf13/cobra"

	"github.com/snow-ghost/llmbench/pkg/limiter"
	"github.com/snow-ghost/llmbench/pkg/registry"
)

var modelsCmd = &cobra.Command{
	Use:   "models [MODEL...]",
	Short: "Show registry entries with their pricing and call protection",
	Long: `Models prints the registry entries from MODELS_FILE together with the
rate limits, circuit breaker settings, retry policy and per-call timeout a
run would apply. Named models that have no entry resolve through the
registry fallback.`,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

type modelView struct {
	registry.ModelConfig
	Upstream   string             `json:"upstream"`
	Protection limiter.ModelStats `json:"protection"`
}

func runModels(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), needs{provider: true}, func(a *app) error {
		ids := args
		if len(ids) == 0 {
			for _, m := range a.models.Models {
				ids = append(ids, m.ID)
			}
		}

		views := make([]modelView, 0, len(ids))
		for _, id := range ids {
			mc, ok := a.models.Resolve(id)
			if !ok {
				return a.checkModel(id)
			}
			stats, _ := a.client.Snapshot(id)
			views = append(views, modelView{ModelConfig: mc, Upstream: mc.UpstreamModel(), Protection: stats})
		}
		return printJSON(cmd.OutOrStdout(), views)
	})
}
