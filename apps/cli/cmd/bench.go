package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitfetch/packages/bench"
	"github.com/abdul-hamid-achik/hitfetch/packages/export/metrics"
	"github.com/abdul-hamid-achik/hitfetch/packages/http"
	"github.com/abdul-hamid-achik/hitfetch/packages/notify"
)

var benchCmd = &cobra.Command{
	Use:   "bench <file|url>",
	Short: "Repeat one request and report latency percentiles",
	Long: `Repeat one request at a fixed rate and report latency percentiles,
throughput and a breakdown of error kinds. All requests share one DNS cache.

Examples:
  hitfetch bench https://api.example.com/health --duration 30s --rate 50
  hitfetch bench requests/search.yaml -n 1000 -c 20 --rate 0
  hitfetch bench requests/search.yaml -D 1m -r 100 --threshold "p95<200ms,errors<0.1%"
  hitfetch bench https://api.example.com/health --export prometheus=bench.prom`,
	Args: cobra.ExactArgs(1),
	RunE: benchCommand,
}

var (
	benchRequest         requestFlags
	benchDurationFlag    string
	benchCountFlag       int
	benchRateFlag        float64
	benchConcurrencyFlag int
	benchThresholdFlag   string
	benchNoProgressFlag  bool
	benchJSONFlag        bool
	benchExportFlags     []string
	benchNotify          notifyFlags
)

func init() {
	addRequestFlags(benchCmd, &benchRequest)

	fl := benchCmd.Flags()
	fl.StringVarP(&benchDurationFlag, "duration", "D", "10s", "Run duration (e.g., 30s, 5m); 0 runs until --count is reached")
	fl.IntVarP(&benchCountFlag, "count", "n", 0, "Stop after this many requests")
	fl.Float64VarP(&benchRateFlag, "rate", "r", 10, "Target requests per second (0 = as fast as concurrency allows)")
	fl.IntVarP(&benchConcurrencyFlag, "concurrency", "c", getEnvInt("HITFETCH_CONCURRENCY", 10), "Maximum in-flight requests (env: HITFETCH_CONCURRENCY)")
	fl.StringVar(&benchThresholdFlag, "threshold", "", "Pass/fail thresholds (e.g., \"p95<200ms,errors<0.1%\")")
	fl.BoolVar(&benchNoProgressFlag, "no-progress", false, "Disable real-time progress display")
	fl.BoolVar(&benchJSONFlag, "json-summary", false, "Output results as JSON")
	addNotifyFlags(benchCmd, &benchNotify)
	fl.StringArrayVar(&benchExportFlags, "export", nil, "Export the summary: prometheus=<file|->, datadog (repeatable)")
}

func benchCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), verboseFlag)

	duration, err := time.ParseDuration(benchDurationFlag)
	if err != nil {
		return exitWith(ExitUsageError, fmt.Errorf("invalid duration %q: %w", benchDurationFlag, err))
	}
	thresholds, err := bench.ParseThresholds(benchThresholdFlag)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}

	benchCfg := &bench.Config{
		Duration:    duration,
		Count:       benchCountFlag,
		Rate:        benchRateFlag,
		Concurrency: benchConcurrencyFlag,
		Thresholds:  thresholds,
	}
	if err := benchCfg.Validate(); err != nil {
		return exitWith(ExitUsageError, err)
	}

	reqCfg, _, err := buildRequest(args[0], &benchRequest, cfg, logger)
	if err != nil {
		return err
	}

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	// The JSON document replaces the console summary.
	reporterOut := cmd.OutOrStdout()
	if benchJSONFlag {
		reporterOut = io.Discard
	}
	reporter := bench.NewReporter(
		bench.WithWriter(reporterOut),
		bench.WithNoColor(cfg.GetNoColor()),
		bench.WithNoProgress(benchNoProgressFlag || benchJSONFlag),
		bench.WithVerbose(verboseFlag > 0),
	)

	runner := bench.NewRunner(benchCfg, reqCfg,
		bench.WithHTTPClient(client),
		bench.WithReporter(reporter),
		bench.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := runner.Run(ctx)
	if err != nil {
		return exitWith(exitCodeFor(err), err)
	}

	if benchJSONFlag {
		jsonReporter := bench.NewReporter(bench.WithWriter(cmd.OutOrStdout()))
		if err := jsonReporter.JSONSummary(result.Summary, result.Thresholds); err != nil {
			return err
		}
	}

	if err := exportSummary(ctx, cmd.OutOrStdout(), client, reqCfg.URL, result.Summary); err != nil {
		logger.WithError(err).Error("export failed")
		return reportedExit(ExitRequestFailure, err)
	}

	notifier, err := benchNotify.manager(client, logger)
	if err != nil {
		return err
	}
	if notifier != nil {
		_ = notifier.Notify(context.WithoutCancel(ctx), benchNotification(reqCfg.URL, result))
	}

	if result.HasThresholdFailures() {
		return reportedExit(ExitRequestFailure, fmt.Errorf("thresholds failed"))
	}
	return nil
}

// exportSummary sends the summary to every --export destination.
func exportSummary(ctx context.Context, stdout io.Writer, client *http.Client, target string, summary *bench.Summary) error {
	for _, export := range benchExportFlags {
		kind, dest, _ := strings.Cut(export, "=")

		var exporter metrics.Exporter
		switch kind {
		case "prometheus":
			w := stdout
			if dest != "" && dest != "-" {
				f, err := os.Create(dest)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			exporter = metrics.NewPrometheusExporter(w)
		case "datadog":
			opts := []metrics.DataDogOption{metrics.WithDataDogClient(client)}
			if dest != "" {
				opts = append(opts, metrics.WithDataDogSite(dest))
			}
			exporter = metrics.NewDataDogExporter(opts...)
		default:
			return exitWith(ExitUsageError, fmt.Errorf("unknown export %q (want prometheus or datadog)", kind))
		}

		if err := exporter.Export(ctx, target, summary); err != nil {
			return fmt.Errorf("%s export: %w", kind, err)
		}
	}
	return nil
}

func benchNotification(target string, result *bench.Result) *notify.Summary {
	s := result.Summary
	summary := &notify.Summary{
		Title:    "bench " + target,
		// Without thresholds any error counts as a failed run.
		Passed:   result.Passed && (len(result.Thresholds) > 0 || s.ErrorCount == 0),
		Duration: s.Duration,
		Fields: []notify.Field{
			{Title: "Requests", Value: fmt.Sprint(s.TotalRequests)},
			{Title: "Errors", Value: fmt.Sprint(s.ErrorCount)},
			{Title: "RPS", Value: fmt.Sprintf("%.1f", s.RPS)},
			{Title: "p95", Value: s.P95.Round(time.Microsecond).String()},
		},
	}
	for _, tr := range result.Thresholds {
		if !tr.Passed {
			summary.Failures = append(summary.Failures, fmt.Sprintf("%s: expected %s, got %s", tr.Name, tr.Expected, tr.Actual))
		}
	}
	return summary
}
