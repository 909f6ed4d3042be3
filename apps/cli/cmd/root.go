package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "hitfetch",
	Short: "One HTTP request, done properly.",
	Long: `hitfetch performs HTTP/HTTPS requests described on the command line or in
YAML/JSON request files. Responses stream through size limits, decompression
and content-length checks, and can be decoded as JSON or text, picked with a
gjson path, checked against a JSON schema or saved to a file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configFlag     string
	envFileFlag    string
	envFlag        string
	verboseFlag    int // 0=warn, 1=info, 2=debug, 3=trace
	noColorFlag    bool
	insecureFlag   bool
	dnsServersFlag []string
)

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			if !exit.reported {
				fmt.Fprintf(os.Stderr, "Error: %v\n", exit.err)
			}
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitUsageError)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFlag, "config", getEnvString("HITFETCH_CONFIG", ""), "Path to config file (env: HITFETCH_CONFIG)")
	pf.StringVar(&envFileFlag, "env-file", getEnvString("HITFETCH_ENV_FILE", ""), "Path to .env file for variable interpolation (env: HITFETCH_ENV_FILE)")
	pf.StringVarP(&envFlag, "env", "e", getEnvString("HITFETCH_ENV", ""), "Environment declared in the request file (env: HITFETCH_ENV)")
	pf.CountVarP(&verboseFlag, "verbose", "v", "Verbose logging (-v, -vv, -vvv for more detail)")
	pf.BoolVar(&noColorFlag, "no-color", getEnvBool("HITFETCH_NO_COLOR", false), "Disable colored output (env: HITFETCH_NO_COLOR)")
	pf.BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("HITFETCH_INSECURE", false), "Disable TLS certificate validation (env: HITFETCH_INSECURE)")
	pf.StringSliceVar(&dnsServersFlag, "dns", getEnvList("HITFETCH_DNS"), "Nameservers to query instead of /etc/resolv.conf; /etc/hosts still applies (env: HITFETCH_DNS)")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(completionCmd)

	registerCompletions()
}
