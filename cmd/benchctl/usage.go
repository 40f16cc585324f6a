package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/snow-ghost/llmbench/core"
	"github.com/snow-ghost/llmbench/pkg/accounting"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Report provider token usage and cost from the ledger",
	Long: `Usage reads the SQLite usage ledger configured by LEDGER_PATH. Without
--group-by it prints a summary; --export prints the matching records as
json or csv.`,
	Args: cobra.NoArgs,
	RunE: runUsage,
}

var usageFlags struct {
	model    string
	provider string
	attempt  string
	since    time.Duration
	groupBy  string
	export   string
	limit    int
}

func init() {
	rootCmd.AddCommand(usageCmd)

	f := usageCmd.Flags()
	f.StringVar(&usageFlags.model, "model", "", "only calls to this model")
	f.StringVar(&usageFlags.provider, "provider", "", "only calls to this provider")
	f.StringVar(&usageFlags.attempt, "attempt", "", "only calls of this run attempt")
	f.DurationVar(&usageFlags.since, "since", 0, "only calls newer than this (e.g. 168h)")
	f.StringVar(&usageFlags.groupBy, "group-by", "", "provider, model or attempt")
	f.StringVar(&usageFlags.export, "export", "", "print records as json or csv")
	f.IntVar(&usageFlags.limit, "limit", 0, "maximum records to export")
}

func runUsage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, needs{ledger: true}, func(a *app) error {
		if a.cfg.LedgerPath == "" {
			return core.New(core.EValidation, "LEDGER_PATH is not set; usage is only kept for the lifetime of a run")
		}

		filter := accounting.Filter{
			Model:    usageFlags.model,
			Provider: usageFlags.provider,
			Attempt:  usageFlags.attempt,
			Limit:    usageFlags.limit,
		}
		if usageFlags.since > 0 {
			from := time.Now().Add(-usageFlags.since)
			filter.From = &from
		}

		switch {
		case usageFlags.export != "":
			data, err := a.ledger.Export(ctx, filter, accounting.ExportFormat(usageFlags.export))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		case usageFlags.groupBy != "":
			by := accounting.GroupBy(usageFlags.groupBy)
			if !by.Valid() {
				return core.Newf(core.EValidation, "cannot group by %q", usageFlags.groupBy)
			}
			groups, err := a.ledger.Groups(ctx, filter, by)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), groups)
		default:
			summary, err := a.ledger.Summary(ctx, filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		}
	})
}
