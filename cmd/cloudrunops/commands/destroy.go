package commands

import (
	"github.com/spf13/cobra"

	"github.com/systmms/cloudrunops/internal/config"
	"github.com/systmms/cloudrunops/internal/deploy"
)

func NewDestroyCommand(cfg *config.Config) *cobra.Command {
	var (
		account string
		groups  []string
		service string
		region  string
	)

	cmd := &cobra.Command{
		Use:   "destroy --account <name> --service <name>",
		Short: "Delete a Cloud Run service",
		Long: `Load the account and run 'gcloud run services delete' for one service.

Examples:
  cloudrunops destroy --account prod --service api
  cloudrunops destroy --account prod --service api --region europe-west1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			outcome, err := p.operations.Destroy(cmd.Context(), t, account, deploy.DestroyDescription{
				ServiceName: service,
				Region:      region,
			})
			printHistory(cmd.OutOrStdout(), t)
			if err != nil {
				return operationError(err)
			}
			printOutcome(cmd.OutOrStdout(), outcome)
			return nil
		},
	}

	cmd.Flags().StringVarP(&account, "account", "a", "", "Account owning the service (required)")
	cmd.Flags().StringVarP(&service, "service", "s", "", "Service to delete (required)")
	cmd.Flags().StringVar(&region, "region", "", "Region override")
	cmd.Flags().StringArrayVar(&groups, "group", nil, "Caller group checked against the account permissions, repeatable")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.RegisterFlagCompletionFunc("account", completeAccounts(cfg))
	_ = cmd.MarkFlagRequired("service")

	return cmd
}
