package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2/google"

	"github.com/systmms/cloudrunops/internal/config"
	"github.com/systmms/cloudrunops/internal/contents"
	"github.com/systmms/cloudrunops/internal/logging"
	"github.com/systmms/cloudrunops/internal/secure"
)

// AccountParser builds the credential of a single account.
type AccountParser interface {
	Parse(ctx context.Context, def config.AccountDefinition) (*NamedCredential, error)
}

// ParserConfig carries the process-wide settings applied to every account.
type ParserConfig struct {
	GcloudPath      string
	ApplicationName string
}

// Parser validates an account definition, reads its key and logs gcloud in.
type Parser struct {
	resolver contents.Resolver
	auth     Authenticator
	cfg      ParserConfig
	logger   *logging.Logger
}

// NewParser creates a parser.
func NewParser(resolver contents.Resolver, auth Authenticator, cfg ParserConfig, logger *logging.Logger) *Parser {
	if cfg.GcloudPath == "" {
		cfg.GcloudPath = config.DefaultGcloudPath
	}
	return &Parser{
		resolver: resolver,
		auth:     auth,
		cfg:      cfg,
		logger:   logger.Named("credentials"),
	}
}

// keyInfo is what a JSON key tells us about its account.
type keyInfo struct {
	project     string
	clientEmail string
}

// Parse builds a NamedCredential or returns an *AccountParseFailure.
func (p *Parser) Parse(ctx context.Context, def config.AccountDefinition) (*NamedCredential, error) {
	if strings.TrimSpace(def.Name) == "" {
		return nil, &AccountParseFailure{Account: def.Name, Stage: StageValidate, Err: errors.New("name is required")}
	}

	cred := &NamedCredential{
		Name:                     def.Name,
		Environment:              orDefault(def.Environment, def.Name),
		AccountType:              orDefault(def.AccountType, def.Name),
		Project:                  def.Project,
		Region:                   def.Region,
		JSONPath:                 def.JSONPath,
		LocalRepositoryDirectory: def.LocalRepositoryDirectory,
		GcloudPath:               p.cfg.GcloudPath,
		ServiceAccountEmail:      def.ServiceAccountEmail,
		ApplicationName:          p.cfg.ApplicationName,
		GitHTTPSUsername:         def.GitHTTPSUsername,
		GitHTTPSPassword:         def.GitHTTPSPassword,
		GitHubOAuthAccessToken:   def.GitHubOAuthAccessToken,
		SSHPrivateKeyFilePath:    def.SSHPrivateKeyFilePath,
		SSHPrivateKeyPassphrase:  def.SSHPrivateKeyPassphrase,
		SSHKnownHostsFilePath:    def.SSHKnownHostsFilePath,
		SSHTrustUnknownHosts:     def.SSHTrustUnknownHosts,
		GcloudReleaseTrack:       def.GcloudReleaseTrack,
		Services:                 cloneStrings(def.Services),
		Versions:                 cloneStrings(def.Versions),
		OmitServices:             cloneStrings(def.OmitServices),
		OmitVersions:             cloneStrings(def.OmitVersions),
		CachingIntervalSeconds:   def.CachingIntervalSeconds,
	}
	cred.Permissions, cred.RequiredGroupMembership = normalizePermissions(def.Permissions, def.RequiredGroupMembership)

	if def.JSONPath == "" {
		cred.Credentials = ApplicationDefaultCredentials(cred.Project)
	} else {
		data, err := p.resolver.GetContents(ctx, def.JSONPath)
		if err != nil {
			return nil, &AccountParseFailure{Account: def.Name, Stage: StageResolve, Err: err}
		}
		info, err := readKey([]byte(data))
		if err != nil {
			return nil, &AccountParseFailure{Account: def.Name, Stage: StageReadKey, Err: err}
		}
		if cred.Project == "" {
			cred.Project = info.project
		}
		if cred.ServiceAccountEmail == "" {
			cred.ServiceAccountEmail = info.clientEmail
		}
		cred.Credentials = JSONKeyCredentials(cred.Project, def.JSONPath, secure.SealString(data), info.clientEmail)
	}

	if err := p.auth.Authenticate(ctx, cred.GcloudPath, cred.Credentials); err != nil {
		cred.Credentials.Key.Destroy()
		return nil, &AccountParseFailure{Account: def.Name, Stage: StageAuthenticate, Err: err}
	}
	p.logger.Debug("loaded account %s (project %s, %s)", cred.Name, cred.Project, cred.Credentials.Kind)
	return cred, nil
}

// readKey extracts the project and, for service accounts, the client email.
func readKey(data []byte) (keyInfo, error) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return keyInfo{}, fmt.Errorf("credential file is not JSON: %w", err)
	}
	if header.Type == "" {
		return keyInfo{}, errors.New("credential file has no type")
	}
	creds, err := google.CredentialsFromJSON(context.Background(), data, CloudPlatformScope)
	if err != nil {
		return keyInfo{}, err
	}
	info := keyInfo{project: creds.ProjectID}
	if header.Type == "service_account" {
		jwt, err := google.JWTConfigFromJSON(data, CloudPlatformScope)
		if err != nil {
			return keyInfo{}, err
		}
		info.clientEmail = jwt.Email
	}
	return info, nil
}

// normalizePermissions applies the group rule: a restricted account is
// governed by its permissions only, otherwise by its group list only.
func normalizePermissions(perms config.Permissions, groups []string) (config.Permissions, []string) {
	if perms.IsRestricted() {
		return perms.Clone(), []string{}
	}
	return config.Permissions{}, cloneStrings(groups)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
