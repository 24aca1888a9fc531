package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"taxlab-hq/ledger/pkg/config"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate a shell completion script for ledger.

Besides command and flag names, the scripts complete the values of
--country from the countries in --config (or the built-in defaults) and
--format with text, json or csv.

Bash:
  $ source <(ledger completion bash)

Zsh:
  $ ledger completion zsh > "${fpath[1]}/_ledger" && compinit

Fish:
  $ ledger completion fish > ~/.config/fish/completions/ledger.fish

PowerShell:
  PS> ledger completion powershell | Out-String | Invoke-Expression

For example, "ledger parameters --country <TAB>" lists the configured
countries and "ledger dataset warm --country <TAB>" does the same before
warming one country's microdata.`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletionV2(out, true)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		default:
			return fmt.Errorf("unsupported shell: %s", args[0])
		}
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)
}

// completeCountries offers the names of the configured countries. It reads
// the configuration without installing it or opening any store.
func completeCountries(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	var names []string
	for _, c := range cfg.Countries {
		if strings.HasPrefix(c.Name, toComplete) {
			names = append(names, c.Name)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
