package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/systmms/cloudrunops/cmd/cloudrunops/commands"
	"github.com/systmms/cloudrunops/internal/config"
	crerrors "github.com/systmms/cloudrunops/internal/errors"
	"github.com/systmms/cloudrunops/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := run()
	// Key material of loaded accounts lives in enclaves until here.
	memguard.Purge()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", crerrors.SimplifyError(err))
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile string
		noColor    bool
		debug      bool
	)

	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "cloudrunops",
		Short: "Cloud Run account credentials and deployments",
		Long: `cloudrunops loads Cloud Run accounts, logs gcloud into each of them and
deploys or deletes Cloud Run services on their behalf.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Path = configFile
			cfg.Logger = logging.New(debug, noColor)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewValidateCommand(cfg),
		commands.NewAccountsCommand(cfg),
		commands.NewDoctorCommand(cfg),
		commands.NewDeployCommand(cfg),
		commands.NewDestroyCommand(cfg),
		commands.NewServeCommand(cfg),
		commands.NewCompletionCommand(cfg),
	)

	return rootCmd.Execute()
}
