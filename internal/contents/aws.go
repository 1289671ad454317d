package contents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

const (
	// SchemeAWSSecretsManager selects AWS Secrets Manager secrets.
	SchemeAWSSecretsManager = "awssm"

	// SchemeSSM selects AWS Systems Manager parameters.
	SchemeSSM = "ssm"
)

// AWSOptions configures the AWS backends. Endpoint and static keys are
// meant for LocalStack.
type AWSOptions struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func loadAWSConfig(ctx context.Context, region string, opts AWSOptions) (aws.Config, error) {
	configOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// regionalClients caches one client per region.
type regionalClients[C any] struct {
	mu      sync.Mutex
	clients map[string]C
	create  func(ctx context.Context, region string) (C, error)
}

func (r *regionalClients[C]) get(ctx context.Context, region string) (C, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[region]; ok {
		return client, nil
	}
	client, err := r.create(ctx, region)
	if err != nil {
		return client, err
	}
	if r.clients == nil {
		r.clients = make(map[string]C)
	}
	r.clients[region] = client
	return client, nil
}

// SecretsManagerClientAPI is the subset of the Secrets Manager client in use.
type SecretsManagerClientAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManagerBackend reads awssm://region/secret-id.
type AWSSecretsManagerBackend struct {
	clients regionalClients[SecretsManagerClientAPI]
}

// AWSOption configures an AWS backend.
type AWSOption func(*AWSOptions)

// WithAWSEndpoint points the clients at a custom endpoint.
func WithAWSEndpoint(endpoint string) AWSOption {
	return func(o *AWSOptions) { o.Endpoint = endpoint }
}

// WithAWSStaticCredentials uses fixed keys instead of the default chain.
func WithAWSStaticCredentials(accessKeyID, secretAccessKey string) AWSOption {
	return func(o *AWSOptions) {
		o.AccessKeyID = accessKeyID
		o.SecretAccessKey = secretAccessKey
	}
}

// NewAWSSecretsManagerBackend creates a backend using the default credential chain.
func NewAWSSecretsManagerBackend(opts ...AWSOption) *AWSSecretsManagerBackend {
	var o AWSOptions
	for _, opt := range opts {
		opt(&o)
	}
	b := &AWSSecretsManagerBackend{}
	b.clients.create = func(ctx context.Context, region string) (SecretsManagerClientAPI, error) {
		cfg, err := loadAWSConfig(ctx, region, o)
		if err != nil {
			return nil, err
		}
		var clientOpts []func(*secretsmanager.Options)
		if o.Endpoint != "" {
			endpoint := o.Endpoint
			clientOpts = append(clientOpts, func(so *secretsmanager.Options) {
				so.BaseEndpoint = &endpoint
			})
		}
		return secretsmanager.NewFromConfig(cfg, clientOpts...), nil
	}
	return b
}

// NewAWSSecretsManagerBackendWithClient uses client for every region.
func NewAWSSecretsManagerBackendWithClient(client SecretsManagerClientAPI) *AWSSecretsManagerBackend {
	b := &AWSSecretsManagerBackend{}
	b.clients.create = func(context.Context, string) (SecretsManagerClientAPI, error) { return client, nil }
	return b
}

// Fetch implements Backend.
func (b *AWSSecretsManagerBackend) Fetch(ctx context.Context, location string) ([]byte, error) {
	region, secretID, err := splitLocation(location, "region/secret-id")
	if err != nil {
		return nil, err
	}
	client, err := b.clients.get(ctx, region)
	if err != nil {
		return nil, err
	}

	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("secret %s not found in %s: ResourceNotFoundException", secretID, region)
		}
		return nil, fmt.Errorf("failed to get secret %s: %w", secretID, err)
	}

	switch {
	case result.SecretString != nil:
		return []byte(*result.SecretString), nil
	case result.SecretBinary != nil:
		return result.SecretBinary, nil
	}
	return nil, fmt.Errorf("secret %s has no value", secretID)
}

// SSMClientAPI is the subset of the SSM client in use.
type SSMClientAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMBackend reads ssm://region/parameter-name. Names containing a slash
// are hierarchical and get a leading slash.
type SSMBackend struct {
	clients regionalClients[SSMClientAPI]
}

// NewSSMBackend creates a backend using the default credential chain.
func NewSSMBackend(opts ...AWSOption) *SSMBackend {
	var o AWSOptions
	for _, opt := range opts {
		opt(&o)
	}
	b := &SSMBackend{}
	b.clients.create = func(ctx context.Context, region string) (SSMClientAPI, error) {
		cfg, err := loadAWSConfig(ctx, region, o)
		if err != nil {
			return nil, err
		}
		var clientOpts []func(*ssm.Options)
		if o.Endpoint != "" {
			endpoint := o.Endpoint
			clientOpts = append(clientOpts, func(so *ssm.Options) {
				so.BaseEndpoint = &endpoint
			})
		}
		return ssm.NewFromConfig(cfg, clientOpts...), nil
	}
	return b
}

// NewSSMBackendWithClient uses client for every region.
func NewSSMBackendWithClient(client SSMClientAPI) *SSMBackend {
	b := &SSMBackend{}
	b.clients.create = func(context.Context, string) (SSMClientAPI, error) { return client, nil }
	return b
}

// Fetch implements Backend.
func (b *SSMBackend) Fetch(ctx context.Context, location string) ([]byte, error) {
	region, name, err := splitLocation(location, "region/parameter-name")
	if err != nil {
		return nil, err
	}
	if strings.Contains(name, "/") && !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	client, err := b.clients.get(ctx, region)
	if err != nil {
		return nil, err
	}

	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("parameter %s not found in %s: ParameterNotFound", name, region)
		}
		return nil, fmt.Errorf("failed to get parameter %s: %w", name, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return nil, fmt.Errorf("parameter %s has no value", name)
	}
	return []byte(*result.Parameter.Value), nil
}
