package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/systmms/cloudrunops/internal/contents"
	"github.com/systmms/cloudrunops/internal/logging"
	"github.com/systmms/cloudrunops/internal/secure"
	"github.com/systmms/cloudrunops/pkg/exec"
)

// Authenticator logs the local gcloud installation into an account.
type Authenticator interface {
	Authenticate(ctx context.Context, gcloudPath string, creds Credentials) error
}

// GcloudAuthenticator runs "gcloud auth login" for key-file credentials.
type GcloudAuthenticator struct {
	runner  exec.Runner
	tempDir string
	logger  *logging.Logger
}

// NewGcloudAuthenticator creates an authenticator. Remote keys are staged
// under tempDir, or the system temp directory when empty.
func NewGcloudAuthenticator(runner exec.Runner, tempDir string, logger *logging.Logger) *GcloudAuthenticator {
	return &GcloudAuthenticator{runner: runner, tempDir: tempDir, logger: logger.Named("gcloud")}
}

// Authenticate dispatches on the credential kind. Only key files need a
// login; the other kinds are already usable.
func (a *GcloudAuthenticator) Authenticate(ctx context.Context, gcloudPath string, creds Credentials) error {
	switch creds.Kind {
	case SourceJSONKey:
		return a.loginWithKey(ctx, gcloudPath, creds)
	case SourceApplicationDefault, SourceExplicit:
		return nil
	}
	return fmt.Errorf("unsupported credential kind %s", creds.Kind)
}

func (a *GcloudAuthenticator) loginWithKey(ctx context.Context, gcloudPath string, creds Credentials) error {
	path := contents.LocalPath(creds.KeyRef)
	if !contents.IsLocal(creds.KeyRef) {
		staged, cleanup, err := a.stageKey(creds.Key)
		if err != nil {
			return err
		}
		defer cleanup()
		path = staged
	}

	args := []string{gcloudPath, "auth", "login", "--cred-file", path}
	a.logger.Debug("activating %s for project %s", creds.KeyRef, creds.Project)
	if _, err := a.runner.Run(ctx, args); err != nil {
		return err
	}
	return nil
}

// stageKey writes the key to a private temporary file for gcloud to read.
func (a *GcloudAuthenticator) stageKey(key *secure.Key) (string, func(), error) {
	if key.Empty() {
		return "", nil, errors.New("credential key is empty")
	}
	if a.tempDir != "" {
		if err := os.MkdirAll(a.tempDir, 0o700); err != nil {
			return "", nil, fmt.Errorf("staging credential key: %w", err)
		}
	}
	f, err := os.CreateTemp(a.tempDir, "cloudrun-key-*.json")
	if err != nil {
		return "", nil, fmt.Errorf("staging credential key: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.logger.Warn("failed to remove staged key %s: %v", f.Name(), err)
		}
	}
	err = key.WithBytes(func(b []byte) error {
		if err := f.Chmod(0o600); err != nil {
			return err
		}
		_, err := f.Write(b)
		return err
	})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("staging credential key: %w", err)
	}
	return f.Name(), cleanup, nil
}
