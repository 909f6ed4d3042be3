package cmd

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for hitfetch.

Bash:
  $ source <(hitfetch completion bash)

Zsh:
  $ hitfetch completion zsh > "${fpath[1]}/_hitfetch"

Fish:
  $ hitfetch completion fish > ~/.config/fish/completions/hitfetch.fish

PowerShell:
  PS> hitfetch completion powershell | Out-String | Invoke-Expression

Environment names (-e) are completed from the request file on the command line.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletionV2(out, true)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

// registerCompletions runs after every command has defined its flags.
func registerCompletions() {
	_ = rootCmd.RegisterFlagCompletionFunc("env", completeEnvironments)
	for _, c := range []*cobra.Command{fetchCmd, benchCmd, validateCmd} {
		c.ValidArgsFunction = completeRequestFiles
	}
	_ = fetchCmd.RegisterFlagCompletionFunc("output", cobra.FixedCompletions([]string{"console", "json"}, cobra.ShellCompDirectiveNoFileComp))
}

// completeEnvironments lists the environments declared by the first request
// file argument.
func completeEnvironments(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	f, err := loadTarget(args[0])
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var names []string
	for name := range f.Environments {
		if strings.HasPrefix(name, toComplete) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, cobra.ShellCompDirectiveNoFileComp
}

func completeRequestFiles(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"yaml", "yml", "json", "jsonc"}, cobra.ShellCompDirectiveFilterFileExt
}
