package accounts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/cloudrunops/internal/config"
)

func TestFileSource_RereadsOnEveryCall(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cloudrunops.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 0\naccounts:\n  - name: prod\n"), 0o600))

	source := NewFileSource(path, nil)

	accounts, err := source.CurrentAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "prod", accounts[0].Name)

	require.NoError(t, os.WriteFile(path, []byte("version: 0\naccounts:\n  - name: prod\n  - name: staging\n"), 0o600))

	accounts, err = source.CurrentAccounts(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}

func TestFileSource_Errors(t *testing.T) {
	t.Parallel()

	source := NewFileSource(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	_, err := source.CurrentAccounts(context.Background())
	assert.ErrorContains(t, err, "configuration file not found")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = source.CurrentAccounts(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStaticSource(t *testing.T) {
	t.Parallel()

	source := NewStaticSource(config.AccountDefinition{Name: "a"})

	accounts, err := source.CurrentAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []config.AccountDefinition{{Name: "a"}}, accounts)

	accounts[0].Name = "mutated"
	accounts, err = source.CurrentAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", accounts[0].Name)

	source.SetError(errors.New("source down"))
	_, err = source.CurrentAccounts(context.Background())
	assert.EqualError(t, err, "source down")

	source.Set(config.AccountDefinition{Name: "b"}, config.AccountDefinition{Name: "c"})
	accounts, err = source.CurrentAccounts(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}

func TestSourceInterface(t *testing.T) {
	t.Parallel()

	var _ Source = (*FileSource)(nil)
	var _ Source = (*StaticSource)(nil)
	var _ Source = (*SQLSource)(nil)
}
