package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/snow-ghost/llmbench/core"
	"github.com/snow-ghost/llmbench/pkg/profile"
	"github.com/snow-ghost/llmbench/pkg/stats"
)

var profileCmd = &cobra.Command{
	Use:   "profile MODEL [MODEL...]",
	Short: "Build strength profiles from stored capability runs",
	Long: `Profile aggregates the newest capability run of every scenario for each
model into a strength profile. With more than one model the profiles are
ranked by overall score.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProfile,
}

var compareCmd = &cobra.Command{
	Use:   "compare RUN_A RUN_B",
	Short: "Statistically compare two stored runs of the same scenario type",
	Args:  cobra.ExactArgs(2),
	RunE:  runCompare,
}

var profileFlags struct {
	categories []string
}

var compareFlags struct {
	confidence float64
	alpha      float64
	resamples  int
	seed       uint64
}

func init() {
	rootCmd.AddCommand(profileCmd, compareCmd)

	profileCmd.Flags().StringSliceVar(&profileFlags.categories, "category", nil, "restrict to these scenario categories")

	compareCmd.Flags().Float64Var(&compareFlags.confidence, "confidence", stats.DefaultConfidence, "interval confidence level")
	compareCmd.Flags().Float64Var(&compareFlags.alpha, "alpha", 0.05, "chi-square significance level")
	compareCmd.Flags().IntVar(&compareFlags.resamples, "resamples", stats.DefaultResamples, "bootstrap resamples")
	compareCmd.Flags().Uint64Var(&compareFlags.seed, "seed", 0, "bootstrap seed for reproducible intervals")
}

type profileReport struct {
	Profiles []profile.Profile `json:"profiles"`
	Ranking  []profile.Ranking `json:"ranking"`
}

func runProfile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, needs{store: true, catalog: true}, func(a *app) error {
		all, err := a.catalog.Capabilities(ctx)
		if err != nil {
			return err
		}
		scenarios := profile.FilterCapabilities(all, profileFlags.categories)
		allowed := make(map[string]bool, len(scenarios))
		for _, s := range scenarios {
			allowed[s.ID] = true
		}

		now := time.Now()
		profiles := make([]profile.Profile, 0, len(args))
		for _, model := range args {
			runs, err := profile.LatestRuns(ctx, a.store, model)
			if err != nil {
				return err
			}
			if len(profileFlags.categories) > 0 {
				runs = keepScenarios(runs, allowed)
			}
			profiles = append(profiles, profile.Build(model, runs, scenarios, now))
		}

		if len(profiles) == 1 {
			return printJSON(cmd.OutOrStdout(), profiles[0])
		}
		return printJSON(cmd.OutOrStdout(), profileReport{Profiles: profiles, Ranking: profile.Rank(profiles)})
	})
}

func keepScenarios(runs []*core.RunRecord, allowed map[string]bool) []*core.RunRecord {
	out := runs[:0]
	for _, r := range runs {
		if allowed[r.ScenarioID] {
			out = append(out, r)
		}
	}
	return out
}

func runCompare(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, needs{store: true}, func(a *app) error {
		runA, err := a.store.Get(ctx, args[0])
		if err != nil {
			return err
		}
		runB, err := a.store.Get(ctx, args[1])
		if err != nil {
			return err
		}

		boot := stats.BootstrapConfig{Resamples: compareFlags.resamples, Confidence: compareFlags.confidence}
		if cmd.Flags().Changed("seed") {
			boot.Seed = stats.Seeded(compareFlags.seed).Seed
		}
		cmp, err := stats.CompareRuns(runA, runB, stats.CompareConfig{
			Confidence: compareFlags.confidence,
			Alpha:      compareFlags.alpha,
			Bootstrap:  boot,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), cmp)
	})
}
