package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/cloudrunops/internal/config"
	crerrors "github.com/systmms/cloudrunops/internal/errors"
	"github.com/systmms/cloudrunops/internal/logging"
	"github.com/systmms/cloudrunops/internal/metrics"
	"github.com/systmms/cloudrunops/internal/testutil"
	"github.com/systmms/cloudrunops/pkg/exec"
)

// useRunner routes every gcloud invocation of the test to a fake runner
// that succeeds with "Applied." after 1.5s.
func useRunner(t *testing.T) *testutil.FakeRunner {
	t.Helper()
	runner := testutil.NewFakeRunner()
	runner.AddResponse("", testutil.Response{Stdout: "Applied.\n", Duration: 1500 * time.Millisecond})
	previous := newRunner
	newRunner = func(*config.Definition, *logging.Logger, *metrics.Recorder) exec.Runner { return runner }
	t.Cleanup(func() { newRunner = previous })
	return runner
}

// threeAccounts configures prod (a service-account key, write restricted to
// deployers), broken (a key that does not exist) and dev (application
// default credentials behind the engineers group).
func threeAccounts(t *testing.T) *testutil.TestConfigBuilder {
	t.Helper()
	b := testutil.NewTestConfig(t).WithDefaultRegion("europe-west1")
	return b.
		WithAccount(config.AccountDefinition{
			Name:        "prod",
			JSONPath:    filepath.Join(b.Dir(), "prod.json"),
			Region:      "us-east4",
			Permissions: config.Permissions{config.AuthorizationWrite: {"deployers"}},
		}).
		WithAccount(config.AccountDefinition{Name: "broken", JSONPath: filepath.Join(b.Dir(), "missing.json")}).
		WithAccount(config.AccountDefinition{Name: "dev", Project: "acme-dev", RequiredGroupMembership: []string{"engineers"}})
}

// withProdKey writes the key prod points at.
func withProdKey(t *testing.T, b *testutil.TestConfigBuilder) *testutil.TestConfigBuilder {
	t.Helper()
	testutil.WriteServiceAccountKey(t, filepath.Join(b.Dir(), "prod.json"), "acme-prod", "deployer@acme-prod.iam.gserviceaccount.com")
	return b
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	cfg := threeAccounts(t).Config()

	out, err := execute(t, NewValidateCommand(cfg))
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
	assert.Contains(t, out, "default region: europe-west1")
	assert.Contains(t, out, "accounts:       3")
}

func TestValidateCommand_MissingFile(t *testing.T) {
	cfg := &config.Config{Path: filepath.Join(t.TempDir(), "nope.yaml"), Logger: logging.NewWithWriter(io.Discard, false, true)}

	_, err := execute(t, NewValidateCommand(cfg))
	var cfgErr crerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "configuration file not found", cfgErr.Message)
}

func TestAccountsCommand(t *testing.T) {
	runner := useRunner(t)
	cfg := withProdKey(t, threeAccounts(t)).Config()

	out, err := execute(t, NewAccountsCommand(cfg))
	require.NoError(t, err)

	assert.Contains(t, out, "NAME")
	assert.Regexp(t, `prod\s+acme-prod\s+us-east4\s+prod\s+json-key\s+WRITE=deployers`, out)
	assert.Regexp(t, `dev\s+acme-dev\s+europe-west1\s+dev\s+application-default\s+engineers`, out)
	assert.NotContains(t, out, "broken")

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"gcloud", "auth", "login", "--cred-file", filepath.Join(filepath.Dir(cfg.Path), "prod.json")}, calls[0])
}

func TestAccountsCommand_JSON(t *testing.T) {
	useRunner(t)
	cfg := withProdKey(t, threeAccounts(t)).Config()

	out, err := execute(t, NewAccountsCommand(cfg), "--output", "json")
	require.NoError(t, err)

	var views []accountView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "dev", views[0].Name)
	assert.Equal(t, []string{"engineers"}, views[0].RequiredGroupMembership)
	assert.Equal(t, "prod", views[1].Name)
	assert.Equal(t, "deployer@acme-prod.iam.gserviceaccount.com", views[1].ServiceAccountEmail)
	assert.Empty(t, views[1].RequiredGroupMembership)
	assert.Equal(t, []string{"deployers"}, views[1].Permissions[config.AuthorizationWrite])
}

func TestAccountsCommand_BadOutput(t *testing.T) {
	cfg := threeAccounts(t).Config()

	_, err := execute(t, NewAccountsCommand(cfg), "--output", "xml")
	var userErr crerrors.UserError
	require.ErrorAs(t, err, &userErr)
}

func TestDeployCommand(t *testing.T) {
	runner := useRunner(t)
	b := threeAccounts(t)
	b.WithWorkingDirectory(filepath.Join(b.Dir(), "work"))
	cfg := b.Config()
	service := filepath.Join(filepath.Dir(cfg.Path), "service.yaml")
	require.NoError(t, os.WriteFile(service, []byte("apiVersion: serving.knative.dev/v1\nkind: Service\n"), 0o600))

	cmd := NewDeployCommand(cfg)
	cmd.SetIn(strings.NewReader("kind: Service\n"))
	out, err := execute(t, cmd, "--account", "dev", "--file", service, "--file", "-")
	require.NoError(t, err)

	assert.Contains(t, out, "[DEPLOY] RUNNING Starting deploy to account dev...")
	assert.Contains(t, out, "[DEPLOY] COMPLETED Done deploying to account dev.")
	assert.Contains(t, out, "Applied.")
	assert.Contains(t, out, "deploy finished in 1.5s")

	var replace []string
	for _, call := range runner.CallsWithPrefix("gcloud run services replace") {
		replace = call
	}
	require.NotNil(t, replace)
	assert.Len(t, replace, 8)
	assert.Equal(t, []string{"--region=europe-west1", "--project=acme-dev"}, replace[6:])

	testutil.AssertNoStagedFiles(t, filepath.Join(filepath.Dir(cfg.Path), "work"))
}

func TestDeployCommand_UnknownAccount(t *testing.T) {
	useRunner(t)
	cfg := threeAccounts(t).Config()

	_, err := execute(t, NewDeployCommand(cfg), "--account", "broken")
	var userErr crerrors.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Message, `Account "broken" is not loaded`)
}

func TestDeployCommand_MissingFile(t *testing.T) {
	cfg := threeAccounts(t).Config()

	_, err := execute(t, NewDeployCommand(cfg), "--account", "dev", "--file", filepath.Join(t.TempDir(), "nope.yaml"))
	var userErr crerrors.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Message, "Failed to read service definition")
}

func TestDestroyCommand_GcloudFailure(t *testing.T) {
	runner := useRunner(t)
	runner.AddFailure("gcloud run services delete", "ERROR: (gcloud.run.services.delete) PERMISSION_DENIED: caller lacks run.services.delete", 1)
	cfg := threeAccounts(t).Config()

	out, err := execute(t, NewDestroyCommand(cfg), "--account", "dev", "--service", "api")
	require.Error(t, err)
	assert.Contains(t, out, "[DESTROY_SERVER_GROUP] FAILED")

	var cmdErr crerrors.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.ExitCode)
	assert.Contains(t, cmdErr.Command, "gcloud run services delete api")
	assert.Contains(t, cmdErr.Suggestion, "roles/run.admin")
}

func TestDestroyCommand(t *testing.T) {
	runner := useRunner(t)
	cfg := threeAccounts(t).Config()

	out, err := execute(t, NewDestroyCommand(cfg), "--account", "dev", "--service", "api", "--region", "asia-east1")
	require.NoError(t, err)
	assert.Contains(t, out, "Done destroying service api.")

	calls := runner.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, []string{"gcloud", "run", "services", "delete", "api", "--region=asia-east1", "--project=acme-dev", "--quiet"}, calls[len(calls)-1])
}

func TestServeCommand_StopsWithContext(t *testing.T) {
	useRunner(t)
	cfg := testutil.NewTestConfig(t).
		WithPollInterval(time.Hour).
		WithAccount(config.AccountDefinition{Name: "dev"}).
		Config()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	cmd := NewServeCommand(cfg)
	cmd.SetArgs(nil)
	cmd.SetOut(io.Discard)
	require.NoError(t, cmd.ExecuteContext(ctx))
}

func TestCompletionCommand(t *testing.T) {
	root := &cobra.Command{Use: "cloudrunops"}
	root.AddCommand(NewCompletionCommand(&config.Config{}))

	out, err := execute(t, root, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "cloudrunops")

	_, err = execute(t, root, "completion", "tcsh")
	assert.Error(t, err)

	out, err = execute(t, root, "completion", "zsh", "--no-descriptions")
	require.NoError(t, err)
	assert.Contains(t, out, "#compdef cloudrunops")
}

func TestCompleteAccounts(t *testing.T) {
	cfg := threeAccounts(t).Config()

	names, directive := completeAccounts(cfg)(nil, nil, "")
	assert.Equal(t, []string{"broken", "dev", "prod"}, names)
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)

	missing := &config.Config{Path: filepath.Join(t.TempDir(), "nope.yaml")}
	names, _ = completeAccounts(missing)(nil, nil, "")
	assert.Empty(t, names)
}

func TestDeployCommand_AccountFlagCompletes(t *testing.T) {
	cfg := threeAccounts(t).Config()
	root := &cobra.Command{Use: "cloudrunops"}
	root.AddCommand(NewDeployCommand(cfg))

	out, err := execute(t, root, cobra.ShellCompRequestCmd, "deploy", "--account", "")
	require.NoError(t, err)
	assert.Contains(t, out, "prod\n")
	assert.Contains(t, out, "dev\n")
}

func TestDeployCommand_GroupAuthorization(t *testing.T) {
	runner := useRunner(t)
	cfg := withProdKey(t, threeAccounts(t)).Config()

	_, err := execute(t, NewDeployCommand(cfg), "--account", "prod", "--group", "engineers")
	var userErr crerrors.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Message, "Not authorized for WRITE on account prod")
	assert.Contains(t, userErr.Details, "deployers")
	assert.Empty(t, runner.CallsWithPrefix("gcloud run services replace"))

	_, err = execute(t, NewDeployCommand(cfg), "--account", "prod", "--group", "Deployers")
	require.NoError(t, err)
	assert.Len(t, runner.CallsWithPrefix("gcloud run services replace"), 1)
}

func TestAccountsCommand_GroupFilter(t *testing.T) {
	useRunner(t)
	cfg := withProdKey(t, threeAccounts(t)).Config()

	out, err := execute(t, NewAccountsCommand(cfg), "--group", "engineers")
	require.NoError(t, err)
	assert.Contains(t, out, "dev")
	assert.NotContains(t, out, "acme-prod")
}
