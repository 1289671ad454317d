package contents

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crerrors "github.com/systmms/cloudrunops/internal/errors"
	"github.com/systmms/cloudrunops/internal/logging"
)

type fakeBackend struct {
	data      map[string]string
	err       error
	locations []string
	closed    bool
}

func (f *fakeBackend) Fetch(_ context.Context, location string) ([]byte, error) {
	f.locations = append(f.locations, location)
	if f.err != nil {
		return nil, f.err
	}
	value, ok := f.data[location]
	if !ok {
		return nil, errors.New("missing " + location)
	}
	return []byte(value), nil
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func quietLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, false, true)
}

func TestSplitReference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ref          string
		wantScheme   string
		wantLocation string
	}{
		{"/etc/keys/prod.json", "file", "/etc/keys/prod.json"},
		{"relative/key.json", "file", "relative/key.json"},
		{"file:///etc/keys/prod.json", "file", "/etc/keys/prod.json"},
		{"gs://bucket/dir/key.json", "gs", "bucket/dir/key.json"},
		{"gcpsm://projects/p/secrets/s", "gcpsm", "projects/p/secrets/s"},
		{"awssm://us-east-1/cloudrun/key", "awssm", "us-east-1/cloudrun/key"},
		{"://odd", "file", "://odd"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.ref, func(t *testing.T) {
			t.Parallel()

			scheme, location := SplitReference(tt.ref)
			assert.Equal(t, tt.wantScheme, scheme)
			assert.Equal(t, tt.wantLocation, location)
			assert.Equal(t, tt.wantScheme == SchemeFile, IsLocal(tt.ref))
		})
	}
}

func TestRegistry_LocalFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"service_account"}`), 0o600))

	r := NewRegistry(quietLogger())

	got, err := r.GetContents(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"service_account"}`, got)

	got, err = r.GetContents(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"service_account"}`, got)
	assert.Equal(t, path, LocalPath("file://"+path))
}

func TestRegistry_Failures(t *testing.T) {
	t.Parallel()

	r := NewRegistry(quietLogger())

	tests := []struct {
		name string
		ref  string
	}{
		{"empty reference", ""},
		{"blank reference", "   "},
		{"missing file", filepath.Join(t.TempDir(), "absent.json")},
		{"unsupported scheme", "vault://secret/data/key"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := r.GetContents(context.Background(), tt.ref)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrContentUnavailable)

			var unavailable *UnavailableError
			require.ErrorAs(t, err, &unavailable)
			assert.Equal(t, tt.ref, unavailable.Ref)
		})
	}
}

func TestRegistry_LazyBackend(t *testing.T) {
	t.Parallel()

	var created atomic.Int32
	backend := &fakeBackend{data: map[string]string{"bucket/key.json": "remote-key"}}

	r := NewRegistry(quietLogger())
	r.Register("gs", func(context.Context) (Backend, error) {
		created.Add(1)
		return backend, nil
	})
	assert.Equal(t, int32(0), created.Load())

	for i := 0; i < 3; i++ {
		got, err := r.GetContents(context.Background(), "gs://bucket/key.json")
		require.NoError(t, err)
		assert.Equal(t, "remote-key", got)
	}
	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, []string{"file", "gs"}, r.Schemes())

	require.NoError(t, r.Close())
	assert.True(t, backend.closed)
}

// staticBackend is safe for concurrent Fetch calls.
type staticBackend map[string]string

func (b staticBackend) Fetch(_ context.Context, location string) ([]byte, error) {
	value, ok := b[location]
	if !ok {
		return nil, errors.New("missing " + location)
	}
	return []byte(value), nil
}

func TestRegistry_SlowBackendDoesNotBlockOtherSchemes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, []byte("local-key"), 0o600))

	var created atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	r := NewRegistry(quietLogger())
	r.Register("gs", func(context.Context) (Backend, error) {
		if created.Add(1) == 1 {
			close(entered)
		}
		<-release
		return staticBackend{"bucket/key.json": "remote-key"}, nil
	})

	remote := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			got, err := r.GetContents(context.Background(), "gs://bucket/key.json")
			if err != nil {
				got = err.Error()
			}
			remote <- got
		}()
	}
	<-entered

	local := make(chan string, 1)
	go func() {
		got, _ := r.GetContents(context.Background(), path)
		local <- got
	}()
	select {
	case got := <-local:
		assert.Equal(t, "local-key", got)
	case <-time.After(2 * time.Second):
		t.Fatal("local read waited for the gs backend to be built")
	}

	close(release)
	assert.Equal(t, "remote-key", <-remote)
	assert.Equal(t, "remote-key", <-remote)
	assert.Equal(t, int32(1), created.Load())
}

func TestRegistry_CanceledCallerDoesNotPoisonBuild(t *testing.T) {
	t.Parallel()

	r := NewRegistry(quietLogger())
	r.Register("gs", func(ctx context.Context) (Backend, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return staticBackend{"bucket/key.json": "remote-key"}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, err := r.GetContents(ctx, "gs://bucket/key.json")
	require.NoError(t, err)
	assert.Equal(t, "remote-key", got)
}

func TestRegistry_FactoryFailure(t *testing.T) {
	t.Parallel()

	r := NewRegistry(quietLogger())
	r.Register("gcpsm", func(context.Context) (Backend, error) {
		return nil, errors.New("google: could not find default credentials")
	})

	_, err := r.GetContents(context.Background(), "gcpsm://projects/p/secrets/s")
	require.ErrorIs(t, err, ErrContentUnavailable)
	assert.Contains(t, err.Error(), "gcpsm backend error during initialization")

	var userErr crerrors.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Suggestion, "application-default login")
}

func TestRegistry_BackendFailureCarriesSuggestion(t *testing.T) {
	t.Parallel()

	r := NewRegistry(quietLogger())
	r.RegisterBackend("awssm", &fakeBackend{err: errors.New("AccessDeniedException: denied")})

	_, err := r.GetContents(context.Background(), "awssm://us-east-1/key")
	require.ErrorIs(t, err, ErrContentUnavailable)

	var userErr crerrors.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Suggestion, "secretsmanager:GetSecretValue")
}

func TestDefaultRegistry_Schemes(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry(quietLogger())
	assert.Equal(t, []string{"awssm", "azkv", "file", "gcpsm", "gs", "keyring", "ssm"}, r.Schemes())
}

func TestResolverInterface(t *testing.T) {
	t.Parallel()

	var _ Resolver = (*Registry)(nil)
	var _ Backend = LocalBackend{}
	var _ Backend = (*GCSBackend)(nil)
	var _ Backend = (*GCPSecretManagerBackend)(nil)
	var _ Backend = (*AWSSecretsManagerBackend)(nil)
	var _ Backend = (*SSMBackend)(nil)
	var _ Backend = (*AzureKeyVaultBackend)(nil)
	var _ Backend = (*KeyringBackend)(nil)
}
