package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/cloudrunops/internal/config"
	"github.com/systmms/cloudrunops/internal/credentials"
	crerrors "github.com/systmms/cloudrunops/internal/errors"
)

// Check statuses shown by doctor.
const (
	statusHealthy = "healthy"
	statusError   = "error"
)

// CheckResult is the outcome of one doctor check.
type CheckResult struct {
	Name        string
	Type        string
	Status      string
	Message     string
	Suggestions []string
}

func NewDoctorCommand(cfg *config.Config) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check gcloud and every configured account",
		Long: `Verify that cloudrunops can work with the current configuration.

This command checks:
- Configuration file validity
- The gcloud binary
- Every configured account, one at a time, including gcloud login

Unlike 'accounts', failures are reported per account with suggestions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg.Logger.Info("Checking cloudrunops configuration...")
			p, err := newPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			results := []CheckResult{p.checkGcloud(ctx)}
			accountResults, err := p.checkAccounts(ctx)
			if err != nil {
				return err
			}
			results = append(results, accountResults...)

			out := cmd.OutOrStdout()
			displayCheckResults(out, results, verbose)

			healthy := 0
			for _, result := range results {
				if result.Status == statusHealthy {
					healthy++
				}
			}
			_, _ = fmt.Fprintf(out, "\nSummary: %d/%d checks healthy\n", healthy, len(results))
			if healthy < len(results) {
				return crerrors.UserError{
					Message:    fmt.Sprintf("%d check(s) failed", len(results)-healthy),
					Suggestion: "Run 'cloudrunops doctor --verbose' for suggestions",
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show suggestions for failed checks")

	return cmd
}

func (p *pipeline) checkGcloud(ctx context.Context) CheckResult {
	result := CheckResult{Name: p.def.GcloudPath, Type: "binary"}
	res, err := p.runner.Run(ctx, []string{p.def.GcloudPath, "version"})
	if err != nil {
		result.Status = statusError
		result.Message = err.Error()
		if errors.Is(err, osexec.ErrNotFound) {
			var cmdErr crerrors.CommandError
			if errors.As(crerrors.WrapCommandNotFound(filepath.Base(p.def.GcloudPath), err), &cmdErr) {
				result.Message = cmdErr.Message
				result.Suggestions = append(result.Suggestions, cmdErr.Suggestion)
			}
		} else if suggestion := crerrors.GcloudSuggestion(err.Error()); suggestion != "" {
			result.Suggestions = append(result.Suggestions, suggestion)
		}
		return result
	}
	result.Status = statusHealthy
	result.Message = firstLine(res.Stdout)
	return result
}

// checkAccounts parses each account on its own so that every failure is
// reported, not only logged.
func (p *pipeline) checkAccounts(ctx context.Context) ([]CheckResult, error) {
	defs, err := p.source.CurrentAccounts(ctx)
	if err != nil {
		return nil, crerrors.UserError{
			Message: "Failed to read accounts",
			Details: err.Error(),
			Err:     err,
		}
	}

	results := make([]CheckResult, 0, len(defs))
	for _, def := range defs {
		result := CheckResult{Name: def.Name, Type: "account"}
		cred, err := p.parser.Parse(ctx, def)
		if err != nil {
			result.Status = statusError
			result.Message = err.Error()
			result.Suggestions = accountSuggestions(def, err)
		} else {
			result.Status = statusHealthy
			result.Message = fmt.Sprintf("project %s (%s)", orNone(cred.Project), cred.Credentials.Kind)
		}
		results = append(results, result)
	}
	return results, nil
}

func accountSuggestions(def config.AccountDefinition, err error) []string {
	var suggestions []string
	var failure *credentials.AccountParseFailure
	if errors.As(err, &failure) {
		switch failure.Stage {
		case credentials.StageValidate:
			suggestions = append(suggestions, "Give every account a name")
		case credentials.StageResolve:
			suggestions = append(suggestions, fmt.Sprintf("Check that %s exists and is readable", def.JSONPath))
		case credentials.StageReadKey:
			suggestions = append(suggestions, "jsonPath must name a service account or authorized user key file")
		}
	}
	if suggestion := crerrors.GcloudSuggestion(err.Error()); suggestion != "" {
		suggestions = append(suggestions, suggestion)
	}
	return suggestions
}

func displayCheckResults(w io.Writer, results []CheckResult, verbose bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "CHECK\tTYPE\tSTATUS\tMESSAGE\n")
	for _, result := range results {
		status := "✓ " + result.Status
		if result.Status != statusHealthy {
			status = "✗ " + result.Status
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", result.Name, result.Type, status, result.Message)
	}
	_ = tw.Flush()

	if !verbose {
		return
	}
	for _, result := range results {
		if result.Status == statusHealthy || len(result.Suggestions) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(w, "\n%s (%s) suggestions:\n", result.Name, result.Type)
		for _, suggestion := range result.Suggestions {
			_, _ = fmt.Fprintf(w, "  • %s\n", suggestion)
		}
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func orNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}
