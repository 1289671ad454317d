package contents

import (
	"context"
	"fmt"
	"hash/crc32"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SchemeGCPSecretManager selects GCP Secret Manager versions.
const SchemeGCPSecretManager = "gcpsm"

// SecretVersionAccessor accesses secret versions. Tests substitute it.
type SecretVersionAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

type secretManagerAccessor struct {
	client *secretmanager.Client
}

func (s secretManagerAccessor) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	return s.client.AccessSecretVersion(ctx, req)
}

// GCPSecretManagerBackend reads gcpsm://projects/P/secrets/S[/versions/V].
type GCPSecretManagerBackend struct {
	accessor SecretVersionAccessor
	client   *secretmanager.Client
}

// NewGCPSecretManagerBackend creates a backend with application default credentials.
func NewGCPSecretManagerBackend(ctx context.Context, opts ...option.ClientOption) (*GCPSecretManagerBackend, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	return &GCPSecretManagerBackend{accessor: secretManagerAccessor{client: client}, client: client}, nil
}

// NewGCPSecretManagerBackendWithAccessor creates a backend over an existing accessor.
func NewGCPSecretManagerBackendWithAccessor(accessor SecretVersionAccessor) *GCPSecretManagerBackend {
	return &GCPSecretManagerBackend{accessor: accessor}
}

// Fetch implements Backend.
func (b *GCPSecretManagerBackend) Fetch(ctx context.Context, location string) ([]byte, error) {
	name, err := secretVersionName(location)
	if err != nil {
		return nil, err
	}

	result, err := b.accessor.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("secret version %s NotFound: %w", name, err)
		}
		return nil, fmt.Errorf("failed to access %s: %w", name, err)
	}
	if result.GetPayload() == nil {
		return nil, fmt.Errorf("secret version %s has no payload", name)
	}

	data := result.GetPayload().GetData()
	crc32c := crc32.MakeTable(crc32.Castagnoli)
	checksum := int64(crc32.Checksum(data, crc32c))
	if result.GetPayload().DataCrc32C != nil && result.GetPayload().GetDataCrc32C() != checksum {
		return nil, fmt.Errorf("secret version %s failed checksum verification", name)
	}
	return data, nil
}

// Close releases the secret manager client.
func (b *GCPSecretManagerBackend) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

func secretVersionName(location string) (string, error) {
	parts := strings.Split(location, "/")
	switch {
	case len(parts) == 4 && parts[0] == "projects" && parts[2] == "secrets" && parts[1] != "" && parts[3] != "":
		return location + "/versions/latest", nil
	case len(parts) == 6 && parts[0] == "projects" && parts[2] == "secrets" && parts[4] == "versions" &&
		parts[1] != "" && parts[3] != "" && parts[5] != "":
		return location, nil
	}
	return "", fmt.Errorf("invalid location %q, expected projects/P/secrets/S[/versions/V]", location)
}
