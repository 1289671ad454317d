package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/cloudrunops/internal/config"
)

func NewValidateCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Check cloudrunops.yaml against its schema and print the effective settings.

Accounts are not authenticated; use 'cloudrunops accounts' for that.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}
			def := cfg.Definition
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%s is valid\n", cfg.Path)
			_, _ = fmt.Fprintf(out, "  gcloud:         %s\n", def.GcloudPath)
			_, _ = fmt.Fprintf(out, "  default region: %s\n", def.DefaultRegion)
			_, _ = fmt.Fprintf(out, "  poll interval:  %s\n", def.PollInterval)
			_, _ = fmt.Fprintf(out, "  timeout:        %s\n", def.CommandTimeout)
			_, _ = fmt.Fprintf(out, "  account source: %s\n", def.AccountSource.Type)
			if def.AccountSource.Type == "file" {
				_, _ = fmt.Fprintf(out, "  accounts:       %d\n", len(def.Accounts))
			}
			return nil
		},
	}
}
