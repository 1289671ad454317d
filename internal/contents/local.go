package contents

import (
	"context"
	"os"
)

// LocalBackend reads files from the local filesystem.
type LocalBackend struct{}

// Fetch implements Backend.
func (LocalBackend) Fetch(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(location)
}
