package contents

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// SchemeAzureKeyVault selects Azure Key Vault secrets.
const SchemeAzureKeyVault = "azkv"

// KeyVaultClientAPI is the subset of the azsecrets client in use.
type KeyVaultClientAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// AzureKeyVaultBackend reads azkv://vault-name/secret-name[/version].
type AzureKeyVaultBackend struct {
	mu        sync.Mutex
	clients   map[string]KeyVaultClientAPI
	newClient func(vaultURL string) (KeyVaultClientAPI, error)
}

// NewAzureKeyVaultBackend creates a backend using DefaultAzureCredential.
func NewAzureKeyVaultBackend() *AzureKeyVaultBackend {
	return &AzureKeyVaultBackend{
		clients: make(map[string]KeyVaultClientAPI),
		newClient: func(vaultURL string) (KeyVaultClientAPI, error) {
			cred, err := azidentity.NewDefaultAzureCredential(nil)
			if err != nil {
				return nil, fmt.Errorf("failed to create Azure credential: %w", err)
			}
			client, err := azsecrets.NewClient(vaultURL, cred, nil)
			if err != nil {
				return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
			}
			return client, nil
		},
	}
}

// NewAzureKeyVaultBackendWithClient uses client for every vault.
func NewAzureKeyVaultBackendWithClient(client KeyVaultClientAPI) *AzureKeyVaultBackend {
	return &AzureKeyVaultBackend{
		clients:   make(map[string]KeyVaultClientAPI),
		newClient: func(string) (KeyVaultClientAPI, error) { return client, nil },
	}
}

// VaultURL returns the data-plane URL of a vault name.
func VaultURL(vault string) string {
	return fmt.Sprintf("https://%s.vault.azure.net/", vault)
}

// Fetch implements Backend.
func (b *AzureKeyVaultBackend) Fetch(ctx context.Context, location string) ([]byte, error) {
	vault, rest, err := splitLocation(location, "vault-name/secret-name[/version]")
	if err != nil {
		return nil, err
	}
	name, version, _ := strings.Cut(rest, "/")
	if name == "" || strings.Contains(version, "/") {
		return nil, fmt.Errorf("invalid location %q, expected vault-name/secret-name[/version]", location)
	}

	client, err := b.client(vault)
	if err != nil {
		return nil, err
	}

	resp, err := client.GetSecret(ctx, name, version, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) {
			switch respErr.StatusCode {
			case http.StatusNotFound:
				return nil, fmt.Errorf("secret %s not found in vault %s", name, vault)
			case http.StatusForbidden:
				return nil, fmt.Errorf("access to secret %s in vault %s Forbidden: %w", name, vault, err)
			}
		}
		return nil, fmt.Errorf("failed to get secret %s: %w", name, err)
	}
	if resp.Value == nil {
		return nil, fmt.Errorf("secret %s has no value", name)
	}
	return []byte(*resp.Value), nil
}

func (b *AzureKeyVaultBackend) client(vault string) (KeyVaultClientAPI, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if client, ok := b.clients[vault]; ok {
		return client, nil
	}
	client, err := b.newClient(VaultURL(vault))
	if err != nil {
		return nil, err
	}
	b.clients[vault] = client
	return client, nil
}
