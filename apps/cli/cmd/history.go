package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitfetch/packages/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the local log of past exchanges",
	Long: `Every fetch is recorded in a SQLite log (historyPath in the config,
.hitfetch/history.db by default) unless --no-history is given.

Examples:
  hitfetch history list --failed
  hitfetch history show 3f2a
  hitfetch history prune --older-than 720h
  hitfetch history query "SELECT url, count(*) FROM exchanges GROUP BY url"`,
}

var (
	historyLimitFlag     int
	historyFailedFlag    bool
	historyOlderThanFlag string
	historyJSONFlag      bool
)

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent exchanges",
	Args:  cobra.NoArgs,
	RunE: withHistory(func(cmd *cobra.Command, store *history.Store, args []string) error {
		var (
			entries []history.Entry
			err     error
		)
		if historyFailedFlag {
			entries, err = store.Failures(cmd.Context(), historyLimitFlag)
		} else {
			entries, err = store.Recent(cmd.Context(), historyLimitFlag)
		}
		if err != nil {
			return err
		}
		if historyJSONFlag {
			return writeJSON(cmd.OutOrStdout(), entries)
		}
		printEntries(cmd.OutOrStdout(), entries)
		return nil
	}),
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one exchange by id or unique id prefix",
	Args:  cobra.ExactArgs(1),
	RunE: withHistory(func(cmd *cobra.Command, store *history.Store, args []string) error {
		e, err := store.Get(cmd.Context(), args[0])
		if errors.Is(err, history.ErrNotFound) {
			return exitWith(ExitUsageError, err)
		}
		if err != nil {
			return err
		}
		if historyJSONFlag {
			return writeJSON(cmd.OutOrStdout(), e)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "id:        %s\n", e.ID)
		fmt.Fprintf(w, "started:   %s\n", e.StartedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "request:   %s %s\n", e.Method, e.URL)
		if e.FinalURL != "" && e.FinalURL != e.URL {
			fmt.Fprintf(w, "final url: %s\n", e.FinalURL)
		}
		if e.StatusCode > 0 {
			fmt.Fprintf(w, "status:    %d\n", e.StatusCode)
		}
		fmt.Fprintf(w, "redirects: %d\n", e.Redirects)
		fmt.Fprintf(w, "received:  %d bytes\n", e.Received)
		fmt.Fprintf(w, "duration:  %s\n", e.Duration.Round(time.Millisecond))
		if e.Failed() {
			fmt.Fprintf(w, "error:     %s (%s)\n", e.Error, e.ErrorKind)
		}
		return nil
	}),
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the whole log",
	Args:  cobra.NoArgs,
	RunE: withHistory(func(cmd *cobra.Command, store *history.Store, args []string) error {
		stats, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if historyJSONFlag {
			return writeJSON(cmd.OutOrStdout(), stats)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "exchanges: %d\n", stats.Total)
		fmt.Fprintf(w, "failed:    %d\n", stats.Failed)
		fmt.Fprintf(w, "avg time:  %.1fms\n", stats.AvgMs)
		fmt.Fprintf(w, "received:  %d bytes\n", stats.Received)
		return nil
	}),
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete exchanges older than a duration",
	Args:  cobra.NoArgs,
	RunE: withHistory(func(cmd *cobra.Command, store *history.Store, args []string) error {
		age, err := time.ParseDuration(historyOlderThanFlag)
		if err != nil || age <= 0 {
			return exitWith(ExitUsageError, fmt.Errorf("invalid --older-than %q", historyOlderThanFlag))
		}
		n, err := store.Prune(cmd.Context(), time.Now().Add(-age))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d exchange(s)\n", n)
		return nil
	}),
}

var historyQueryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run a read-only SQL query against the log",
	Args:  cobra.ExactArgs(1),
	RunE: withHistory(func(cmd *cobra.Command, store *history.Store, args []string) error {
		result, err := store.Query(args[0])
		if err != nil {
			return exitWith(ExitUsageError, err)
		}
		if historyJSONFlag {
			return writeJSON(cmd.OutOrStdout(), result.Rows)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(result.Columns, "\t"))
		for _, row := range result.Rows {
			cells := make([]string, len(result.Columns))
			for i, col := range result.Columns {
				cells[i] = fmt.Sprint(row[col])
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
		return tw.Flush()
	}),
}

func init() {
	historyListCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 20, "Maximum number of exchanges to list")
	historyListCmd.Flags().BoolVar(&historyFailedFlag, "failed", false, "Only list failed exchanges")
	historyPruneCmd.Flags().StringVar(&historyOlderThanFlag, "older-than", "720h", "Age of the exchanges to delete")
	historyCmd.PersistentFlags().BoolVar(&historyJSONFlag, "json", false, "Output as JSON")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyStatsCmd, historyPruneCmd, historyQueryCmd)
}

// withHistory opens the configured log for the duration of one subcommand.
func withHistory(fn func(cmd *cobra.Command, store *history.Store, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadSettings()
		if err != nil {
			return err
		}
		if cfg.HistoryPath == "" {
			return exitWith(ExitConfigError, fmt.Errorf("history is disabled: historyPath is empty"))
		}

		store, err := history.Open(cfg.HistoryPath)
		if err != nil {
			return exitWith(ExitConfigError, err)
		}
		defer store.Close()

		return fn(cmd, store, args)
	}
}

func printEntries(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No exchanges recorded")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tREQUEST\tRESULT\tTIME")
	for _, e := range entries {
		result := fmt.Sprintf("%d", e.StatusCode)
		if e.Failed() {
			result = color.RedString(string(e.ErrorKind))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s %s\t%s\t%s\n",
			e.ID[:8],
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.Method, e.URL,
			result,
			e.Duration.Round(time.Millisecond),
		)
	}
	tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
