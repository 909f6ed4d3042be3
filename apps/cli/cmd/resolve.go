package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/abdul-hamid-achik/hitfetch/packages/dns"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <host>...",
	Short: "Resolve hostnames through the DNS cache",
	Long: `Resolve hostnames the same way fetch does: IPv4 and IPv6 lookups race and
the first family with an address wins. The answer is cached until its TTL
expires.

Examples:
  hitfetch resolve api.example.com
  hitfetch resolve api.example.com cdn.example.com --repeat 3
  hitfetch resolve example.com --dns 1.1.1.1`,
	Args: cobra.MinimumNArgs(1),
	RunE: resolveCommand,
}

var (
	resolveRepeatFlag  int
	resolveTimeoutFlag time.Duration
)

func init() {
	resolveCmd.Flags().IntVar(&resolveRepeatFlag, "repeat", 1, "Resolve every host this many times to show cache hits")
	resolveCmd.Flags().DurationVar(&resolveTimeoutFlag, "timeout", 10*time.Second, "Timeout for each round of lookups")
}

func resolveCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	if resolveRepeatFlag < 1 {
		return exitWith(ExitUsageError, fmt.Errorf("--repeat must be at least 1"))
	}
	logger := newLogger(cmd.ErrOrStderr(), verboseFlag)

	cache, err := newDNSCache(cfg, logger)
	if err != nil {
		return exitWith(ExitConfigError, err)
	}

	if cfg.GetNoColor() {
		color.NoColor = true
	}

	w := cmd.OutOrStdout()
	failed := false
	for round := 0; round < resolveRepeatFlag; round++ {
		results := resolveAll(cmd.Context(), cache, args)
		for _, r := range results {
			if r.err != nil {
				failed = true
				fmt.Fprintf(w, "%s %s: %v\n", color.RedString("✗"), r.host, r.err)
				continue
			}
			source := "resolved"
			if r.cached {
				source = "cached"
			}
			fmt.Fprintf(w, "%s %s → %s (%s, %s, expires in %s)\n",
				color.GreenString("✓"), r.host, r.entry.Addr, r.entry.Family, source,
				time.Until(r.entry.Expires).Round(time.Second))
		}
	}

	stats := cache.Stats()
	fmt.Fprintf(w, "\ncache: %d hit(s), %d miss(es), %d entr%s\n",
		stats.Hits, stats.Misses, stats.Entries, plural(stats.Entries, "y", "ies"))

	if failed {
		return reportedExit(ExitNetworkError, fmt.Errorf("resolution failed"))
	}
	return nil
}

type resolution struct {
	host   string
	entry  dns.Entry
	cached bool
	err    error
}

// resolveAll resolves hosts concurrently, keeping one result per host in
// argument order. cached is set when a live entry existed before the lookup.
func resolveAll(ctx context.Context, cache *dns.Cache, hosts []string) []resolution {
	ctx, cancel := context.WithTimeout(ctx, resolveTimeoutFlag)
	defer cancel()

	results := make([]resolution, len(hosts))

	var g errgroup.Group
	for i, host := range hosts {
		g.Go(func() error {
			r := &results[i]
			r.host = host
			_, r.cached = cache.Lookup(host)
			r.entry, r.err = cache.Resolve(ctx, host)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
