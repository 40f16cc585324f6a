package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/snow-ghost/llmbench/core"
	"github.com/snow-ghost/llmbench/pkg/cost"
	"github.com/snow-ghost/llmbench/pkg/scoring"
	"github.com/snow-ghost/llmbench/pkg/tokens"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one scenario against a model and store the run",
	Long: `Run sends the scenario prompt to the model --iterations times, scores
every response and stores the summarised run. The stored record is printed
as JSON.

Examples:
  benchctl run --model openai/gpt-4o-mini --scenario trolley --iterations 20
  benchctl run --scenario arithmetic --temperature 0 --seed 7
  benchctl run --scenario trolley --option 2="Do nothing and let events unfold"`,
	RunE: runBenchmark,
}

var runFlags struct {
	model        string
	scenario     string
	scenarioType string
	iterations   int
	systemPrompt string
	options      []string

	temperature      float64
	topP             float64
	maxTokens        int
	frequencyPenalty float64
	presencePenalty  float64
	seed             int64

	dryRun bool
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVarP(&runFlags.model, "model", "m", "", "model id (defaults to DEFAULT_MODEL)")
	f.StringVarP(&runFlags.scenario, "scenario", "s", "", "scenario id (required)")
	f.StringVar(&runFlags.scenarioType, "type", "", "restrict the lookup to capability or paradox")
	f.IntVarP(&runFlags.iterations, "iterations", "n", 10, "number of iterations")
	f.StringVar(&runFlags.systemPrompt, "system-prompt", "", "system prompt sent with every iteration")
	f.StringArrayVar(&runFlags.options, "option", nil, "override an option description as ID=TEXT (repeatable)")

	defaults := core.DefaultParams()
	f.Float64Var(&runFlags.temperature, "temperature", defaults.Temperature, "sampling temperature")
	f.Float64Var(&runFlags.topP, "top-p", defaults.TopP, "nucleus sampling mass")
	f.IntVar(&runFlags.maxTokens, "max-tokens", defaults.MaxTokens, "completion token budget")
	f.Float64Var(&runFlags.frequencyPenalty, "frequency-penalty", 0, "frequency penalty")
	f.Float64Var(&runFlags.presencePenalty, "presence-penalty", 0, "presence penalty")
	f.Int64Var(&runFlags.seed, "seed", 0, "sampling seed (unset unless given)")

	f.BoolVar(&runFlags.dryRun, "dry-run", false, "print the rendered prompt and a cost ceiling without calling the model")

	_ = runCmd.MarkFlagRequired("scenario")
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	return withApp(ctx, needs{store: true, catalog: true, provider: true}, func(a *app) error {
		model := runFlags.model
		if model == "" {
			model = a.cfg.DefaultModel
		}
		if model == "" {
			return core.New(core.EValidation, "no model given and DEFAULT_MODEL is unset")
		}
		scenario, err := lookupScenario(ctx, a, runFlags.scenario, runFlags.scenarioType)
		if err != nil {
			return err
		}

		cfg := core.NewRunConfig(model, scenario, runFlags.iterations)
		cfg.SystemPrompt = runFlags.systemPrompt
		cfg.Params = runParams(cmd)
		if cfg.OptionOverrides, err = parseOverrides(runFlags.options); err != nil {
			return err
		}

		if runFlags.dryRun {
			est, err := a.estimate(cfg)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), est)
		}
		if err := a.checkModel(model); err != nil {
			return err
		}

		rec, err := a.processor().Execute(ctx, cfg)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rec)
	})
}

func lookupScenario(ctx context.Context, a *app, id, typ string) (core.Scenario, error) {
	if typ == "" {
		return a.catalog.Scenario(ctx, id)
	}
	return a.catalog.Lookup(ctx, core.ScenarioType(typ), id)
}

func runParams(cmd *cobra.Command) core.Params {
	p := core.Params{
		Temperature:      runFlags.temperature,
		TopP:             runFlags.topP,
		MaxTokens:        runFlags.maxTokens,
		FrequencyPenalty: runFlags.frequencyPenalty,
		PresencePenalty:  runFlags.presencePenalty,
	}
	if cmd.Flags().Changed("seed") {
		seed := runFlags.seed
		p.Seed = &seed
	}
	return p.Normalize()
}

// parseOverrides reads ID=TEXT pairs.
func parseOverrides(values []string) ([]core.OptionOverride, error) {
	var out []core.OptionOverride
	for _, v := range values {
		idText, desc, ok := strings.Cut(v, "=")
		if !ok {
			return nil, core.Newf(core.EValidation, "option override %q is not ID=TEXT", v)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idText))
		if err != nil {
			return nil, core.Newf(core.EValidation, "option override id %q is not a number", idText)
		}
		out = append(out, core.OptionOverride{ID: id, Description: strings.TrimSpace(desc)})
	}
	return out, nil
}

type runEstimate struct {
	ModelName      string           `json:"modelName"`
	ScenarioID     string           `json:"scenarioId"`
	IterationCount int              `json:"iterationCount"`
	Prompt         string           `json:"prompt"`
	PromptTokens   int              `json:"promptTokens"`
	MaxCost        *cost.CostResult `json:"maxCost"`
}

// estimate renders the prompt of cfg once and prices the run as if every
// completion used its full token budget.
func (a *app) estimate(cfg core.RunConfig) (*runEstimate, error) {
	if err := cfg.Validate(a.cfg.MaxIterations); err != nil {
		return nil, err
	}
	mc, ok := a.models.Resolve(cfg.ModelName)
	if !ok {
		return nil, core.Newf(core.EModelNotFound, "model %q is not in the registry", cfg.ModelName)
	}
	prompt, _, err := scoring.RenderPrompt(cfg.PromptTemplate, cfg.Rules, cfg.OptionOverrides)
	if err != nil {
		return nil, err
	}

	texts := []string{prompt}
	if cfg.SystemPrompt != "" {
		texts = append(texts, cfg.SystemPrompt)
	}
	promptTokens := tokens.GetDefaultRegistry().CountPrompt(mc.UpstreamModel(), texts)

	return &runEstimate{
		ModelName:      cfg.ModelName,
		ScenarioID:     cfg.ScenarioID,
		IterationCount: cfg.IterationCount,
		Prompt:         prompt,
		PromptTokens:   promptTokens,
		MaxCost:        cost.EstimateRun(mc, promptTokens, cfg.Params.MaxTokens, cfg.IterationCount),
	}, nil
}
