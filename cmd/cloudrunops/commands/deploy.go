package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/cloudrunops/internal/config"
	"github.com/systmms/cloudrunops/internal/deploy"
	crerrors "github.com/systmms/cloudrunops/internal/errors"
	"github.com/systmms/cloudrunops/internal/task"
)

func NewDeployCommand(cfg *config.Config) *cobra.Command {
	var (
		account string
		groups  []string
		files   []string
		region  string
		appRoot string
	)

	cmd := &cobra.Command{
		Use:   "deploy --account <name> --file <service.yaml> [--file ...]",
		Short: "Replace Cloud Run services from YAML definitions",
		Long: `Load the account, stage each service definition in a private working
directory and run 'gcloud run services replace' with all of them.

Staged copies are removed whether or not gcloud succeeds. Use '-' as the
file name to read a definition from stdin.

Examples:
  cloudrunops deploy --account prod --file service.yaml
  cloudrunops deploy --account prod --file api.yaml --file worker.yaml --region europe-west1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			payloads, err := readPayloads(cmd.InOrStdin(), files)
			if err != nil {
				return err
			}

			p, err := newPipeline(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			if err := p.poller.Synchronize(cmd.Context()); err != nil {
				return err
			}
			if err := p.authorize(account, groups, config.AuthorizationWrite); err != nil {
				return err
			}
			t, release, err := p.newTask(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			outcome, err := p.operations.Deploy(cmd.Context(), t, account, deploy.DeployDescription{
				ConfigFiles:              payloads,
				ApplicationDirectoryRoot: appRoot,
				Region:                   region,
			})
			printHistory(cmd.OutOrStdout(), t)
			if err != nil {
				return operationError(err)
			}
			printOutcome(cmd.OutOrStdout(), outcome)
			return nil
		},
	}

	cmd.Flags().StringVarP(&account, "account", "a", "", "Account to deploy with (required)")
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Service definition file, repeatable")
	cmd.Flags().StringVar(&region, "region", "", "Region override")
	cmd.Flags().StringVar(&appRoot, "app-root", "", "Directory under the account repository to stage files in")
	cmd.Flags().StringArrayVar(&groups, "group", nil, "Caller group checked against the account permissions, repeatable")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.RegisterFlagCompletionFunc("account", completeAccounts(cfg))

	return cmd
}

func readPayloads(stdin io.Reader, files []string) ([]string, error) {
	payloads := make([]string, 0, len(files))
	for _, file := range files {
		var (
			data []byte
			err  error
		)
		if file == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return nil, crerrors.UserError{
				Message:    fmt.Sprintf("Failed to read service definition %s", file),
				Details:    err.Error(),
				Suggestion: "Check the --file path",
				Err:        err,
			}
		}
		payloads = append(payloads, string(data))
	}
	return payloads, nil
}

func printHistory(w io.Writer, t *task.Tracked) {
	for _, event := range t.History() {
		_, _ = fmt.Fprintf(w, "[%s] %s %s\n", event.Phase, event.State, event.Status)
	}
}

func printOutcome(w io.Writer, outcome *deploy.Outcome) {
	if outcome == nil || outcome.Result == nil {
		return
	}
	if outcome.Result.Stdout != "" {
		_, _ = fmt.Fprint(w, outcome.Result.Stdout)
	}
	_, _ = fmt.Fprintf(w, "%s finished in %s\n", outcome.Operation, outcome.Result.Duration.Round(time.Millisecond))
}
