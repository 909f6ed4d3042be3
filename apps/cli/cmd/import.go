package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitfetch/packages/import/curl"
	"github.com/abdul-hamid-achik/hitfetch/packages/import/openapi"
	"github.com/abdul-hamid-achik/hitfetch/packages/spec"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Create request files from curl commands or OpenAPI documents",
	Long: `Create request files from other formats. One YAML file is written per
request, named after the request, into --out (default: current directory).

Examples:
  hitfetch import curl "curl -H 'Accept: application/json' https://api.example.com/users"
  hitfetch import curl requests.sh --out requests/
  hitfetch import openapi openapi.yaml --tags pets --out requests/
  hitfetch import openapi https://api.example.com/openapi.json --stdout`,
}

var (
	importOutFlag         string
	importStdoutFlag      bool
	importForceFlag       bool
	importBaseURLFlag     string
	importTagsFlag        []string
	importExcludeTagsFlag []string
	importOperationsFlag  []string
)

var importCurlCmd = &cobra.Command{
	Use:   "curl <command|file>",
	Short: "Convert curl commands",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			results []*curl.Result
			err     error
		)
		if strings.HasPrefix(strings.TrimSpace(args[0]), "curl") {
			var r *curl.Result
			if r, err = curl.ConvertCommand(args[0]); err == nil {
				results = []*curl.Result{r}
			}
		} else {
			results, err = curl.ConvertFile(args[0])
		}
		if err != nil {
			return exitWith(ExitParseError, err)
		}

		w := newImportWriter(cmd)
		for _, r := range results {
			for _, warning := range r.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %s\n", r.Name, warning)
			}
			if err := w.write(r.Name, r.File); err != nil {
				return err
			}
		}
		return nil
	},
}

var importOpenAPICmd = &cobra.Command{
	Use:   "openapi <file|url>",
	Short: "Convert the GET and POST operations of an OpenAPI 3 document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadSettings()
		if err != nil {
			return err
		}
		client, err := newClient(cfg, newLogger(cmd.ErrOrStderr(), verboseFlag))
		if err != nil {
			return err
		}

		converter := openapi.NewConverter(
			openapi.WithClient(client),
			openapi.WithBaseURL(importBaseURLFlag),
			openapi.WithTags(importTagsFlag),
			openapi.WithExcludeTags(importExcludeTagsFlag),
			openapi.WithOperations(importOperationsFlag),
		)
		result, err := converter.ConvertFile(cmd.Context(), args[0])
		if err != nil {
			return exitWith(ExitParseError, err)
		}

		for _, warning := range result.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warning)
		}
		if len(result.Requests) == 0 {
			return exitWith(ExitUsageError, fmt.Errorf("no operations matched"))
		}

		w := newImportWriter(cmd)
		for _, r := range result.Requests {
			if err := w.write(r.Name, r.File); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	pf := importCmd.PersistentFlags()
	pf.StringVar(&importOutFlag, "out", ".", "Directory for the generated request files")
	pf.BoolVar(&importStdoutFlag, "stdout", false, "Print the request files instead of writing them")
	pf.BoolVarP(&importForceFlag, "force", "f", false, "Overwrite existing files")

	fl := importOpenAPICmd.Flags()
	fl.StringVar(&importBaseURLFlag, "base-url", "", "Base URL overriding the document's first server")
	fl.StringSliceVar(&importTagsFlag, "tags", nil, "Only operations with one of these tags")
	fl.StringSliceVar(&importExcludeTagsFlag, "exclude-tags", nil, "Skip operations with any of these tags")
	fl.StringSliceVar(&importOperationsFlag, "operations", nil, "Only these operation IDs")

	importCmd.AddCommand(importCurlCmd, importOpenAPICmd)
}

type importWriter struct {
	out    io.Writer
	dir    string
	stdout bool
	force  bool
}

func newImportWriter(cmd *cobra.Command) *importWriter {
	return &importWriter{
		out:    cmd.OutOrStdout(),
		dir:    importOutFlag,
		stdout: importStdoutFlag,
		force:  importForceFlag,
	}
}

func (w *importWriter) write(name string, f *spec.File) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}

	if w.stdout {
		fmt.Fprintf(w.out, "# %s.yaml\n%s---\n", name, data)
		return nil
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	path := filepath.Join(w.dir, name+".yaml")
	if !w.force {
		if _, err := os.Stat(path); err == nil {
			return exitWith(ExitUsageError, fmt.Errorf("file already exists: %s (use --force to overwrite)", path))
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	fmt.Fprintf(w.out, "Created: %s\n", path)
	return nil
}
