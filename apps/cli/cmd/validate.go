package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitfetch/packages/http"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file|url>...",
	Short: "Check request files without sending anything",
	Long: `Load each request file, resolve its variables and run the same validation
a fetch performs, without touching the network.

Examples:
  hitfetch validate requests/login.yaml
  hitfetch validate requests/*.yaml -e staging`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

var validateRequest requestFlags

func init() {
	addRequestFlags(validateCmd, &validateRequest)
}

func validateCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), verboseFlag)

	code := ExitSuccess
	for _, target := range args {
		reqCfg, _, err := buildRequest(target, &validateRequest, cfg, logger)
		if err == nil {
			var plan *http.Plan
			if plan, err = http.Validate(reqCfg); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s (%s %s)\n", target, plan.Method, plan.URL.Redacted())
				continue
			}
			err = exitWith(ExitConfigError, err)
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: %v\n", target, err)
		if c := exitCodeFor(err); c > code {
			code = c
		}
	}

	if code != ExitSuccess {
		return reportedExit(code, fmt.Errorf("validation failed"))
	}
	return nil
}
