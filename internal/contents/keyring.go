package contents

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// SchemeKeyring selects entries of the OS keyring.
const SchemeKeyring = "keyring"

// KeyringBackend reads keyring://service/user from the platform keyring
// (Secret Service, macOS Keychain or Windows Credential Manager).
type KeyringBackend struct {
	get func(service, user string) (string, error)
}

// NewKeyringBackend creates a backend over the platform keyring.
func NewKeyringBackend() *KeyringBackend {
	return &KeyringBackend{get: keyring.Get}
}

// Fetch implements Backend.
func (b *KeyringBackend) Fetch(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	service, user, err := splitLocation(location, "service/user")
	if err != nil {
		return nil, err
	}

	secret, err := b.get(service, user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, fmt.Errorf("secret not found in keyring for %s/%s", service, user)
		}
		return nil, fmt.Errorf("failed to read keyring entry %s/%s: %w", service, user, err)
	}
	return []byte(secret), nil
}
