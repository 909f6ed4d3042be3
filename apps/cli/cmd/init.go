package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitfetch/packages/core/config"
	"github.com/abdul-hamid-achik/hitfetch/packages/spec"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new hitfetch project",
	Long: `Initialize a new hitfetch project in the current directory.

This creates:
  - .hitfetch.json   - Configuration file with client defaults
  - request.yaml     - Example request file with environments

Examples:
  hitfetch init
  hitfetch init --force`,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

// exampleRequest is the request file written by init.
func exampleRequest() *spec.File {
	return &spec.File{
		URL:   "{{baseUrl}}/resources",
		Query: map[string]string{"limit": "10"},
		Headers: map[string]string{
			"Accept": "application/json",
		},
		Authorization: "Bearer {{$API_TOKEN}}",
		JSON:          true,
		Compression:   true,
		Timeout:       5000,
		Environments: map[string]map[string]any{
			"dev":  {"baseUrl": "http://localhost:3000"},
			"prod": {"baseUrl": "https://api.example.com"},
		},
	}
}

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, config.ConfigFilenames[0])
	exampleFile := filepath.Join(cwd, "request.yaml")

	if !forceInit {
		for _, f := range []string{configFile, exampleFile} {
			if _, err := os.Stat(f); err == nil {
				return exitWith(ExitUsageError, fmt.Errorf("file already exists: %s (use --force to overwrite)", f))
			}
		}
	}

	if err := config.DefaultConfig().SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	data, err := exampleRequest().Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(exampleFile, data, 0644); err != nil {
		return fmt.Errorf("failed to create example file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", exampleFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\nhitfetch project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'hitfetch fetch request.yaml -e dev' to send the example request.\n")

	return nil
}
