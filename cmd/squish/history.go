package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"squish/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently finished jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(cmd, ctx, limit, jsonOut)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit entries as JSON")
	cmd.AddCommand(newHistoryClearCommand(ctx))
	return cmd
}

func runHistoryList(cmd *cobra.Command, ctx *commandContext, limit int, jsonOut bool) error {
	store, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if jsonOut {
		return writeJSON(cmd, entries)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No finished jobs recorded.")
		return nil
	}

	title := cases.Title(language.Und)
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		result := title.String(entry.Outcome)
		if entry.ErrorSummary != "" {
			result = fmt.Sprintf("%s: %s", result, entry.ErrorSummary)
		}
		rows = append(rows, []string{
			entry.CreatedAt.Local().Format("2006-01-02 15:04"),
			title.String(entry.Kind),
			filepath.Base(entry.InputPath),
			entry.Codec,
			strconv.Itoa(entry.Quality),
			result,
			formatBytes(entry.OutputBytes),
			formatSeconds(float64(entry.DurationMS) / 1000),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"When", "Kind", "Input", "Codec", "Quality", "Result", "Output", "Time"},
		rows, 4, 6, 7))
	return nil
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
			return nil
		},
	}
}

func openHistory(ctx *commandContext) (*history.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.History.Enabled {
		return nil, fmt.Errorf("history is disabled in the configuration")
	}
	return history.Open(cfg.HistoryDBPath())
}
