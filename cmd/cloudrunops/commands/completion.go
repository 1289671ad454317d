package commands

import (
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/systmms/cloudrunops/internal/config"
)

// completionGenerators writes the completion script of each supported shell.
var completionGenerators = map[string]func(root *cobra.Command, w io.Writer, descriptions bool) error{
	"bash": func(root *cobra.Command, w io.Writer, descriptions bool) error {
		return root.GenBashCompletionV2(w, descriptions)
	},
	"zsh": func(root *cobra.Command, w io.Writer, descriptions bool) error {
		if descriptions {
			return root.GenZshCompletion(w)
		}
		return root.GenZshCompletionNoDesc(w)
	},
	"fish": func(root *cobra.Command, w io.Writer, descriptions bool) error {
		return root.GenFishCompletion(w, descriptions)
	},
	"powershell": func(root *cobra.Command, w io.Writer, descriptions bool) error {
		if descriptions {
			return root.GenPowerShellCompletionWithDesc(w)
		}
		return root.GenPowerShellCompletion(w)
	},
}

// NewCompletionCommand creates the completion command. Account flags
// complete from the configured account names.
func NewCompletionCommand(cfg *config.Config) *cobra.Command {
	var noDescriptions bool

	shells := make([]string, 0, len(completionGenerators))
	for shell := range completionGenerators {
		shells = append(shells, shell)
	}
	sort.Strings(shells)

	cmd := &cobra.Command{
		Use:   "completion SHELL",
		Short: "Generate shell completion scripts",
		Long: `Print a completion script for bash, fish, powershell or zsh.

Account flags (--account) complete from the accounts in the configuration
file, so completion works offline and never logs gcloud in.

  $ source <(cloudrunops completion bash)
  $ cloudrunops completion zsh > "${fpath[1]}/_cloudrunops"
  $ cloudrunops completion fish > ~/.config/fish/completions/cloudrunops.fish
  PS> cloudrunops completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             shells,
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return completionGenerators[args[0]](cmd.Root(), cmd.OutOrStdout(), !noDescriptions)
		},
	}

	cmd.Flags().BoolVar(&noDescriptions, "no-descriptions", false, "Leave command and flag descriptions out of completions")

	return cmd
}

// completeAccounts offers the account names of the configuration file. It
// reads the file only; accounts are not parsed or authenticated.
func completeAccounts(cfg *config.Config) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if cfg.Load() != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		names := make([]string, 0, len(cfg.Definition.Accounts))
		for _, account := range cfg.Definition.Accounts {
			names = append(names, account.Name)
		}
		sort.Strings(names)
		return names, cobra.ShellCompDirectiveNoFileComp
	}
}
