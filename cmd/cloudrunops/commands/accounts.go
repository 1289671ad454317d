package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/cloudrunops/internal/config"
	crerrors "github.com/systmms/cloudrunops/internal/errors"
	"github.com/systmms/cloudrunops/internal/permissions"
)

// accountView is the printable part of a loaded account.
type accountView struct {
	Name                    string             `json:"name"`
	Environment             string             `json:"environment"`
	AccountType             string             `json:"accountType"`
	Project                 string             `json:"project"`
	Region                  string             `json:"region"`
	Credentials             string             `json:"credentials"`
	ServiceAccountEmail     string             `json:"serviceAccountEmail,omitempty"`
	RequiredGroupMembership []string           `json:"requiredGroupMembership"`
	Permissions             config.Permissions `json:"permissions"`
}

func NewAccountsCommand(cfg *config.Config) *cobra.Command {
	var (
		output string
		groups []string
	)

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Load and authenticate every configured account",
		Long: `Run one credential load cycle and list the accounts that loaded.

Accounts that fail to resolve their key or to authenticate are logged
with the reason and left out of the list.

Examples:
  cloudrunops accounts
  cloudrunops accounts --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "table" && output != "json" {
				return crerrors.UserError{
					Message:    fmt.Sprintf("Unknown output format %q", output),
					Suggestion: "Use --output table or --output json",
				}
			}

			p, err := newPipeline(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			if err := p.poller.Synchronize(cmd.Context()); err != nil {
				return crerrors.UserError{
					Message:    "Failed to load accounts",
					Details:    err.Error(),
					Suggestion: "Check the account source settings in " + cfg.Path,
					Err:        err,
				}
			}

			loaded := p.repository.All().All()
			if len(groups) > 0 {
				loaded = permissions.NewChecker(cfg.Logger).Filter(loaded, permissions.Request{
					Principal:     strings.Join(groups, ","),
					Groups:        groups,
					Authorization: config.AuthorizationRead,
				})
			}
			views := make([]accountView, 0, len(loaded))
			for _, cred := range loaded {
				views = append(views, accountView{
					Name:                    cred.Name,
					Environment:             cred.Environment,
					AccountType:             cred.AccountType,
					Project:                 cred.Project,
					Region:                  p.def.DefaultRegion,
					Credentials:             cred.Credentials.Kind.String(),
					ServiceAccountEmail:     cred.ServiceAccountEmail,
					RequiredGroupMembership: cred.RequiredGroupMembership,
					Permissions:             cred.Permissions,
				})
				if cred.Region != "" {
					views[len(views)-1].Region = cred.Region
				}
			}

			out := cmd.OutOrStdout()
			if output == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}

			if len(views) == 0 {
				_, _ = fmt.Fprintln(out, "No accounts loaded")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "NAME\tPROJECT\tREGION\tENVIRONMENT\tCREDENTIALS\tGROUPS\n")
			for _, v := range views {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", v.Name, v.Project, v.Region, v.Environment, v.Credentials, groupSummary(v))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table|json)")
	cmd.Flags().StringArrayVar(&groups, "group", nil, "Only list accounts these groups may read, repeatable")

	return cmd
}

// groupSummary renders who may use an account.
func groupSummary(v accountView) string {
	if v.Permissions.IsRestricted() {
		var parts []string
		for _, auth := range v.Permissions.Authorizations() {
			if groups := v.Permissions[auth]; len(groups) > 0 {
				parts = append(parts, string(auth)+"="+strings.Join(groups, ","))
			}
		}
		return strings.Join(parts, " ")
	}
	if len(v.RequiredGroupMembership) > 0 {
		return strings.Join(v.RequiredGroupMembership, ",")
	}
	return "-"
}
