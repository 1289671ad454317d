// Package accounts supplies raw account definitions to the credential loader.
package accounts

import (
	"context"
	"fmt"
	"sync"

	"github.com/systmms/cloudrunops/internal/config"
	"github.com/systmms/cloudrunops/internal/logging"
)

// Source returns the account definitions as currently configured. It is
// called once per load cycle.
type Source interface {
	CurrentAccounts(ctx context.Context) ([]config.AccountDefinition, error)
}

// FileSource re-reads the configuration file on every call, so edits are
// picked up by the next poll.
type FileSource struct {
	path   string
	logger *logging.Logger
}

// NewFileSource creates a source over a cloudrunops.yaml file.
func NewFileSource(path string, logger *logging.Logger) *FileSource {
	if logger == nil {
		logger = logging.New(false, false)
	}
	return &FileSource{path: path, logger: logger.Named("accounts")}
}

// CurrentAccounts implements Source.
func (s *FileSource) CurrentAccounts(ctx context.Context) ([]config.AccountDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := &config.Config{Path: s.path, Logger: s.logger}
	if err := cfg.Load(); err != nil {
		return nil, fmt.Errorf("reading accounts from %s: %w", s.path, err)
	}
	return append([]config.AccountDefinition(nil), cfg.Definition.Accounts...), nil
}

// StaticSource serves a fixed, replaceable list.
type StaticSource struct {
	mu       sync.Mutex
	accounts []config.AccountDefinition
	err      error
}

// NewStaticSource creates a source returning accounts.
func NewStaticSource(accounts ...config.AccountDefinition) *StaticSource {
	return &StaticSource{accounts: accounts}
}

// Set replaces the accounts and clears any error.
func (s *StaticSource) Set(accounts ...config.AccountDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = accounts
	s.err = nil
}

// SetError makes subsequent calls fail with err.
func (s *StaticSource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// CurrentAccounts implements Source.
func (s *StaticSource) CurrentAccounts(ctx context.Context) ([]config.AccountDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]config.AccountDefinition(nil), s.accounts...), nil
}
