package main

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/snow-ghost/llmbench/core"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var showCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Print a stored run",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Rename legacy run ids to the strict format",
	Long: `Migrate renames stored runs whose ids predate the strict
<model>-NNN format. It is idempotent and also runs before every command
that opens the run store; this command prints the mapping it applied.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

var insightCmd = &cobra.Command{
	Use:   "insight RUN_ID [FILE]",
	Short: "Append a JSON insight to a stored run",
	Long: `Insight appends one JSON document to the run's insights. The
document is read from FILE, or from stdin when FILE is omitted or "-".`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInsight,
}

var listFlags struct {
	model string
	since time.Duration
}

func init() {
	rootCmd.AddCommand(listCmd, showCmd, migrateCmd, insightCmd)

	listCmd.Flags().StringVar(&listFlags.model, "model", "", "only runs of this model")
	listCmd.Flags().DurationVar(&listFlags.since, "since", 0, "only runs newer than this (e.g. 24h)")
}

func runList(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), needs{store: true}, func(a *app) error {
		metas, err := a.store.List(cmd.Context())
		if err != nil {
			return err
		}

		var cutoff time.Time
		if listFlags.since > 0 {
			cutoff = time.Now().Add(-listFlags.since)
		}
		out := make([]core.RunMeta, 0, len(metas))
		for _, m := range metas {
			if listFlags.model != "" && m.ModelName != listFlags.model {
				continue
			}
			if !cutoff.IsZero() && m.Timestamp.Before(cutoff) {
				continue
			}
			out = append(out, m)
		}
		return printJSON(cmd.OutOrStdout(), out)
	})
}

func runShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), needs{store: true}, func(a *app) error {
		rec, err := a.store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rec)
	})
}

func runMigrate(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), needs{store: true}, func(a *app) error {
		migrated := a.migrated
		if migrated == nil {
			migrated = map[string]string{}
		}
		return printJSON(cmd.OutOrStdout(), migrated)
	})
}

func runInsight(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 || args[1] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[1])
	}
	if err != nil {
		return err
	}
	if !json.Valid(data) {
		return core.New(core.EInvalidInput, "insight is not valid JSON")
	}

	return withApp(cmd.Context(), needs{store: true}, func(a *app) error {
		return a.store.AppendInsight(cmd.Context(), args[0], json.RawMessage(data))
	})
}
