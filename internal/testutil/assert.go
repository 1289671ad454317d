package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// AssertSecretRedacted verifies that a secret value does not appear in a
// string and that the [REDACTED] marker does.
func AssertSecretRedacted(t *testing.T, output, secretValue string) {
	t.Helper()

	assert.NotContains(t, output, secretValue,
		"Secret value %q should be redacted, but appears in output", secretValue)
	assert.Contains(t, output, "[REDACTED]",
		"Expected [REDACTED] marker when secret is used")
}

// AssertNoStagedFiles verifies that no files and no deploy-* directories
// remain under root.
func AssertNoStagedFiles(t *testing.T, root string) {
	t.Helper()

	var leftovers []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() || strings.HasPrefix(d.Name(), "deploy-") {
			leftovers = append(leftovers, path)
		}
		return nil
	})
	assert.Empty(t, leftovers, "Staged files left behind under %s", root)
}

// AssertFileMode verifies the permission bits of a file. It is skipped on
// Windows, which does not keep unix modes.
func AssertFileMode(t *testing.T, path string, want os.FileMode) {
	t.Helper()

	if filepathIsWindows() {
		return
	}
	info, err := os.Stat(path)
	if !assert.NoError(t, err, "Failed to stat %s", path) {
		return
	}
	assert.Equal(t, want, info.Mode().Perm(), "Unexpected mode for %s", path)
}

func filepathIsWindows() bool {
	return filepath.Separator == '\\'
}
