// Package contents resolves credential-file references to their contents.
//
// A reference is either a local path or a URI whose scheme selects a
// backend:
//
//	/etc/keys/prod.json, file:///etc/keys/prod.json   local file
//	gs://bucket/path/key.json                           Cloud Storage object
//	gcpsm://projects/P/secrets/S[/versions/V]           GCP Secret Manager
//	awssm://us-east-1/secret-id                         AWS Secrets Manager
//	ssm://us-east-1/path/to/parameter                   AWS SSM Parameter Store
//	azkv://vault-name/secret-name[/version]             Azure Key Vault
//	keyring://service/user                              OS keyring
//
// Remote backends are created on first use.
package contents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	crerrors "github.com/systmms/cloudrunops/internal/errors"
	"github.com/systmms/cloudrunops/internal/logging"
)

// SchemeFile is the scheme of local references, with or without a prefix.
const SchemeFile = "file"

// ErrContentUnavailable is matched by every resolution failure.
var ErrContentUnavailable = errors.New("content unavailable")

// Resolver fetches the contents behind a reference.
type Resolver interface {
	GetContents(ctx context.Context, ref string) (string, error)
}

// Backend reads the location part of a reference for one scheme.
type Backend interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// BackendFactory creates a backend on first use of its scheme.
type BackendFactory func(ctx context.Context) (Backend, error)

// UnavailableError describes a reference that could not be resolved.
type UnavailableError struct {
	Ref    string
	Scheme string
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("content unavailable for %q: %v", e.Ref, e.Err)
}

func (e *UnavailableError) Unwrap() []error {
	return []error{ErrContentUnavailable, e.Err}
}

// Registry dispatches references to backends by scheme.
//
// Backends are built outside mu, so a slow client setup for one scheme does
// not hold up lookups for others. Concurrent first uses of a scheme share
// one build.
type Registry struct {
	mu        sync.Mutex
	factories map[string]BackendFactory
	backends  map[string]Backend
	building  singleflight.Group
	logger    *logging.Logger
}

// NewRegistry creates a registry that only knows local files.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.New(false, false)
	}
	r := &Registry{
		factories: make(map[string]BackendFactory),
		backends:  make(map[string]Backend),
		logger:    logger.Named("contents"),
	}
	r.RegisterBackend(SchemeFile, LocalBackend{})
	return r
}

// DefaultRegistry creates a registry with every built-in backend.
func DefaultRegistry(logger *logging.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(SchemeGCS, func(ctx context.Context) (Backend, error) { return NewGCSBackend(ctx) })
	r.Register(SchemeGCPSecretManager, func(ctx context.Context) (Backend, error) { return NewGCPSecretManagerBackend(ctx) })
	r.Register(SchemeAWSSecretsManager, func(ctx context.Context) (Backend, error) { return NewAWSSecretsManagerBackend(), nil })
	r.Register(SchemeSSM, func(ctx context.Context) (Backend, error) { return NewSSMBackend(), nil })
	r.Register(SchemeAzureKeyVault, func(ctx context.Context) (Backend, error) { return NewAzureKeyVaultBackend(), nil })
	r.Register(SchemeKeyring, func(ctx context.Context) (Backend, error) { return NewKeyringBackend(), nil })
	return r
}

// Register adds a lazily created backend for scheme, replacing any existing one.
func (r *Registry) Register(scheme string, factory BackendFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[scheme] = factory
	delete(r.backends, scheme)
}

// RegisterBackend adds a ready backend for scheme.
func (r *Registry) RegisterBackend(scheme string, backend Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[scheme] = backend
	delete(r.factories, scheme)
}

// Schemes lists the registered schemes.
func (r *Registry) Schemes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	for scheme := range r.factories {
		seen[scheme] = true
	}
	for scheme := range r.backends {
		seen[scheme] = true
	}
	schemes := make([]string, 0, len(seen))
	for scheme := range seen {
		schemes = append(schemes, scheme)
	}
	sort.Strings(schemes)
	return schemes
}

// GetContents implements Resolver.
func (r *Registry) GetContents(ctx context.Context, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", &UnavailableError{Ref: ref, Err: errors.New("empty reference")}
	}
	scheme, location := SplitReference(ref)

	backend, err := r.backend(ctx, scheme)
	if err != nil {
		return "", &UnavailableError{Ref: ref, Scheme: scheme, Err: err}
	}

	r.logger.Debug("fetching %s reference", scheme)
	data, err := backend.Fetch(ctx, location)
	if err != nil {
		if scheme != SchemeFile {
			err = crerrors.BackendError(scheme, "read", err)
		}
		return "", &UnavailableError{Ref: ref, Scheme: scheme, Err: err}
	}
	return string(data), nil
}

// Close releases backends holding connections.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for scheme, backend := range r.backends {
		if closer, ok := backend.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s backend: %w", scheme, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) backend(ctx context.Context, scheme string) (Backend, error) {
	if backend, _, ok := r.lookup(scheme); ok {
		return backend, nil
	}

	v, err, _ := r.building.Do(scheme, func() (interface{}, error) {
		backend, factory, ok := r.lookup(scheme)
		if ok {
			return backend, nil
		}
		if factory == nil {
			return nil, fmt.Errorf("unsupported reference scheme %q", scheme)
		}
		// Callers share this build, so one caller giving up must not fail the rest.
		backend, err := factory(context.WithoutCancel(ctx))
		if err != nil {
			return nil, crerrors.BackendError(scheme, "initialization", err)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if existing, ok := r.backends[scheme]; ok {
			// RegisterBackend won while we were building.
			closeBackend(backend)
			return existing, nil
		}
		r.backends[scheme] = backend
		r.logger.Debug("initialized %s backend", scheme)
		return backend, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Backend), nil
}

// lookup returns the built backend for scheme, or its factory when it has
// not been built yet.
func (r *Registry) lookup(scheme string) (Backend, BackendFactory, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if backend, ok := r.backends[scheme]; ok {
		return backend, nil, true
	}
	return nil, r.factories[scheme], false
}

func closeBackend(backend Backend) {
	if closer, ok := backend.(io.Closer); ok {
		_ = closer.Close()
	}
}

// SplitReference returns the scheme and location of ref. References
// without a scheme are local paths.
func SplitReference(ref string) (scheme, location string) {
	idx := strings.Index(ref, "://")
	if idx <= 0 {
		return SchemeFile, ref
	}
	return ref[:idx], ref[idx+3:]
}

// IsLocal reports whether ref names a file on this machine.
func IsLocal(ref string) bool {
	scheme, _ := SplitReference(ref)
	return scheme == SchemeFile
}

// LocalPath returns the filesystem path of a local reference.
func LocalPath(ref string) string {
	_, location := SplitReference(ref)
	return location
}

// splitLocation splits "first/rest" and rejects empty parts.
func splitLocation(location, format string) (string, string, error) {
	first, rest, ok := strings.Cut(location, "/")
	if !ok || first == "" || rest == "" {
		return "", "", fmt.Errorf("invalid location %q, expected %s", location, format)
	}
	return first, rest, nil
}
