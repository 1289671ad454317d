// Package testutil provides test utilities and helpers for cloudrunops tests.
//
// This package contains shared test infrastructure including configuration
// builders, a scripted process runner, logger helpers and key fixtures.
package testutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/systmms/cloudrunops/internal/config"
	"github.com/systmms/cloudrunops/internal/logging"
)

// TestConfigBuilder provides a fluent API for building test configurations.
//
// Example usage:
//
//	builder := NewTestConfig(t).
//	    WithAccount(config.AccountDefinition{Name: "dev", Project: "acme-dev"}).
//	    WithDefaultRegion("europe-west1")
//
//	cfg := builder.Config()
type TestConfigBuilder struct {
	config  *config.Definition
	tempDir string
	t       *testing.T
}

// NewTestConfig creates a new TestConfigBuilder with a minimal valid
// configuration (version: 0, no accounts).
func NewTestConfig(t *testing.T) *TestConfigBuilder {
	t.Helper()

	return &TestConfigBuilder{
		config:  &config.Definition{Version: 0},
		tempDir: t.TempDir(),
		t:       t,
	}
}

// Dir returns the directory the configuration is written to. Fixtures
// placed here are removed with the test.
func (b *TestConfigBuilder) Dir() string {
	return b.tempDir
}

// WithAccount appends an account definition.
func (b *TestConfigBuilder) WithAccount(account config.AccountDefinition) *TestConfigBuilder {
	b.config.Accounts = append(b.config.Accounts, account)
	return b
}

// WithDefaultRegion sets defaultRegion.
func (b *TestConfigBuilder) WithDefaultRegion(region string) *TestConfigBuilder {
	b.config.DefaultRegion = region
	return b
}

// WithWorkingDirectory sets workingDirectory.
func (b *TestConfigBuilder) WithWorkingDirectory(dir string) *TestConfigBuilder {
	b.config.WorkingDirectory = dir
	return b
}

// WithPollInterval sets pollInterval.
func (b *TestConfigBuilder) WithPollInterval(d time.Duration) *TestConfigBuilder {
	b.config.PollInterval = d
	return b
}

// Build returns the in-memory configuration. Use Write() for a file on disk.
func (b *TestConfigBuilder) Build() *config.Definition {
	return b.config
}

// Write writes the configuration to cloudrunops.yaml in the builder's
// directory and returns the path.
func (b *TestConfigBuilder) Write() string {
	b.t.Helper()

	path := filepath.Join(b.tempDir, config.DefaultPath)
	if err := b.WriteYAML(path); err != nil {
		b.t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

// WriteYAML writes the configuration to a specific path.
func (b *TestConfigBuilder) WriteYAML(path string) error {
	b.t.Helper()

	data, err := yaml.Marshal(b.config)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Config writes the configuration and returns a runtime Config pointing
// at it with a discarding logger.
func (b *TestConfigBuilder) Config() *config.Config {
	b.t.Helper()

	return &config.Config{
		Path:   b.Write(),
		Logger: logging.NewWithWriter(io.Discard, false, true),
	}
}
