package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitfetch/packages/core/config"
	"github.com/abdul-hamid-achik/hitfetch/packages/history"
	"github.com/abdul-hamid-achik/hitfetch/packages/notify"
	"github.com/abdul-hamid-achik/hitfetch/packages/http"
	"github.com/abdul-hamid-achik/hitfetch/packages/output"
	"github.com/abdul-hamid-achik/hitfetch/packages/schema"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <file|url>",
	Short: "Perform one request",
	Long: `Perform one HTTP/HTTPS request described by a URL and flags, or by a YAML/JSON
request file.

Examples:
  hitfetch fetch https://api.example.com/users/1 --json
  hitfetch fetch https://api.example.com/users --json --pick "0.name"
  hitfetch fetch https://api.example.com/users -d '{"name":"ada"}'
  hitfetch fetch https://up.example.com -F note=hello -F file=@./report.pdf
  hitfetch fetch https://cdn.example.com/big.tar.gz -O ./big.tar.gz --progress
  hitfetch fetch requests/create-user.yaml --env staging --schema user.schema.json
  hitfetch fetch requests/health.yaml --watch`,
	Args: cobra.ExactArgs(1),
	RunE: fetchCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	fetchRequest   requestFlags
	pickFlag       string
	schemaFlag     string
	watchFlag      bool
	outputFlag     string
	outputFileFlag string
	progressFlag   bool
	noHistoryFlag  bool
	fetchNotify    notifyFlags
)

func init() {
	addRequestFlags(fetchCmd, &fetchRequest)

	fl := fetchCmd.Flags()
	fl.StringVarP(&pickFlag, "pick", "p", "", "gjson path to print from a JSON response")
	fl.StringVar(&schemaFlag, "schema", "", "JSON schema file the JSON response must satisfy")
	fl.BoolVarP(&watchFlag, "watch", "w", false, "Re-run when the request file changes")
	fl.StringVarP(&outputFlag, "output", "o", getEnvString("HITFETCH_OUTPUT", "console"), "Output format: console, json (env: HITFETCH_OUTPUT)")
	fl.StringVar(&outputFileFlag, "output-file", getEnvString("HITFETCH_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: HITFETCH_OUTPUT_FILE)")
	fl.BoolVar(&progressFlag, "progress", false, "Show download progress on stderr")
	addNotifyFlags(fetchCmd, &fetchNotify)
	fl.BoolVar(&noHistoryFlag, "no-history", getEnvBool("HITFETCH_NO_HISTORY", false), "Do not record the exchange in the history log (env: HITFETCH_NO_HISTORY)")
}

// fetcher holds what one fetch invocation reuses across watch re-runs.
type fetcher struct {
	cfg       *config.Config
	logger    *logrus.Logger
	client    *http.Client
	formatter output.Formatter
	store     *history.Store
	schema    *schema.Schema
	progress  io.Writer
	notifier  *notify.Manager
}

func fetchCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), verboseFlag)

	out := cmd.OutOrStdout()
	if outputFileFlag != "" {
		file, err := os.Create(outputFileFlag)
		if err != nil {
			return exitWith(ExitUsageError, fmt.Errorf("cannot create output file: %w", err))
		}
		defer file.Close()
		out = file
	}

	formatter, err := output.New(outputFlag, out, verboseFlag > 0, cfg.GetNoColor())
	if err != nil {
		return exitWith(ExitUsageError, err)
	}

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	f := &fetcher{cfg: cfg, logger: logger, client: client, formatter: formatter}

	if schemaFlag != "" {
		s, err := schema.Load(schemaFlag, "")
		if err != nil {
			return exitWith(ExitConfigError, err)
		}
		f.schema = s
	}

	if !noHistoryFlag && cfg.HistoryPath != "" {
		store, err := history.Open(cfg.HistoryPath)
		if err != nil {
			logger.WithError(err).Warn("history disabled")
		} else {
			defer store.Close()
			f.store = store
		}
	}

	if progressFlag {
		f.progress = cmd.ErrOrStderr()
	}

	if f.notifier, err = fetchNotify.manager(client, logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = f.run(ctx, args[0])
	if !watchFlag {
		return err
	}
	if err != nil {
		var exit *exitError
		if errors.As(err, &exit) && !exit.reported {
			formatter.FormatError(err)
		}
	}
	return f.watch(ctx, cmd, args[0])
}

// run performs the request once and renders it.
func (f *fetcher) run(ctx context.Context, target string) error {
	reqCfg, _, err := buildRequest(target, &fetchRequest, f.cfg, f.logger)
	if err != nil {
		return err
	}
	if f.progress != nil {
		reqCfg.OnProgress = progressPrinter(f.progress)
	}

	plan, err := http.Validate(reqCfg)
	if err != nil {
		f.formatter.FormatExchange(&output.Exchange{Method: "-", URL: reqCfg.URL, Err: err})
		return reportedExit(ExitConfigError, err)
	}

	started := time.Now()
	outcome, err := f.client.Do(ctx, reqCfg)
	if f.progress != nil && reqCfg.OnProgress != nil {
		fmt.Fprintln(f.progress)
	}

	ex := &output.Exchange{
		Method:      plan.Method,
		URL:         plan.URL.Redacted(),
		Destination: plan.Destination,
		Outcome:     outcome,
		Err:         err,
		Pick:        pickFlag,
	}
	if err == nil && f.schema != nil {
		result, serr := f.schema.CheckOutcome(outcome)
		if serr != nil {
			ex.Schema = &schema.Result{Errors: []string{serr.Error()}}
		} else {
			ex.Schema = result
		}
	}

	f.formatter.FormatExchange(ex)
	f.record(ctx, plan.Method, ex.URL, started, outcome, err)
	f.notify(ctx, ex, time.Since(started))

	switch {
	case err != nil:
		return reportedExit(exitCodeFor(err), err)
	case ex.Failed():
		return reportedExit(ExitRequestFailure, errors.New(ex.Schema.String()))
	}
	return nil
}

func (f *fetcher) record(ctx context.Context, method, url string, started time.Time, outcome *http.Outcome, err error) {
	if f.store == nil {
		return
	}
	entry := history.NewEntry(method, url, started, outcome, err)
	if _, rerr := f.store.Record(context.WithoutCancel(ctx), entry); rerr != nil {
		f.logger.WithError(rerr).Warn("failed to record history")
	}
}

func (f *fetcher) notify(ctx context.Context, ex *output.Exchange, elapsed time.Duration) {
	if f.notifier == nil {
		return
	}

	summary := &notify.Summary{
		Title:    ex.Method + " " + ex.URL,
		Passed:   !ex.Failed(),
		Duration: elapsed,
	}
	if ex.Outcome != nil {
		summary.Fields = append(summary.Fields, notify.Field{Title: "Status", Value: fmt.Sprint(ex.Outcome.StatusCode)})
	}
	if ex.Err != nil {
		summary.Failures = append(summary.Failures, ex.Err.Error())
	}
	if ex.Schema != nil {
		summary.Failures = append(summary.Failures, ex.Schema.Errors...)
	}

	// Failures are logged by the manager.
	_ = f.notifier.Notify(context.WithoutCancel(ctx), summary)
}

// watch re-runs target whenever the request file, or a file next to it, is written.
func (f *fetcher) watch(ctx context.Context, cmd *cobra.Command, target string) error {
	if _, err := os.Stat(target); err != nil {
		return exitWith(ExitUsageError, fmt.Errorf("--watch needs a request file, got %s", target))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(target)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "\nWatching %s for changes... (press Ctrl+C to stop)\n\n", target)

	var debounceTimer *time.Timer
	rerun := make(chan string, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(target) && filepath.Ext(event.Name) != ".env" {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := event.Name
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				select {
				case rerun <- name:
				default:
				}
			})

		case name := <-rerun:
			fmt.Fprintf(cmd.ErrOrStderr(), "\nFile changed: %s\n\n", name)
			if err := f.run(ctx, target); err != nil {
				var exit *exitError
				if errors.As(err, &exit) && !exit.reported {
					f.formatter.FormatError(err)
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "\nWatching %s for changes... (press Ctrl+C to stop)\n", target)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.formatter.FormatError(fmt.Errorf("watcher error: %w", err))
		}
	}
}

func progressPrinter(w io.Writer) http.ProgressFunc {
	return func(chunk int, received, total int64) {
		pct := float64(received) / float64(total) * 100
		fmt.Fprintf(w, "\r\033[K%d / %d bytes (%.0f%%)", received, total, pct)
	}
}
