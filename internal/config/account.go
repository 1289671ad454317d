package config

import (
	"bytes"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/systmms/cloudrunops/internal/logging"
)

// Authorization is an action a group can be granted on an account.
type Authorization string

const (
	AuthorizationRead    Authorization = "READ"
	AuthorizationWrite   Authorization = "WRITE"
	AuthorizationExecute Authorization = "EXECUTE"
	AuthorizationCreate  Authorization = "CREATE"
)

// Permissions maps each authorization to the groups that hold it.
type Permissions map[Authorization][]string

// IsRestricted reports whether any authorization names at least one group.
func (p Permissions) IsRestricted() bool {
	for _, groups := range p {
		if len(groups) > 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (p Permissions) Clone() Permissions {
	if p == nil {
		return nil
	}
	out := make(Permissions, len(p))
	for auth, groups := range p {
		out[auth] = append([]string(nil), groups...)
	}
	return out
}

// Authorizations returns the keys in a stable order.
func (p Permissions) Authorizations() []Authorization {
	keys := make([]Authorization, 0, len(p))
	for auth := range p {
		keys = append(keys, auth)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// AccountDefinition is one Cloud Run account as configured. It is read as a
// value and never mutated by the credential pipeline.
type AccountDefinition struct {
	Name                     string      `yaml:"name" json:"name"`
	Environment              string      `yaml:"environment,omitempty" json:"environment,omitempty"`
	AccountType              string      `yaml:"accountType,omitempty" json:"accountType,omitempty"`
	Project                  string      `yaml:"project,omitempty" json:"project,omitempty"`
	JSONPath                 string      `yaml:"jsonPath,omitempty" json:"jsonPath,omitempty"`
	Region                   string      `yaml:"region,omitempty" json:"region,omitempty"`
	ServiceAccountEmail      string      `yaml:"serviceAccountEmail,omitempty" json:"serviceAccountEmail,omitempty"`
	LocalRepositoryDirectory string      `yaml:"localRepositoryDirectory,omitempty" json:"localRepositoryDirectory,omitempty"`
	RequiredGroupMembership  []string    `yaml:"requiredGroupMembership,omitempty" json:"requiredGroupMembership,omitempty"`
	Permissions              Permissions `yaml:"permissions,omitempty" json:"permissions,omitempty"`

	GitHTTPSUsername        string         `yaml:"gitHttpsUsername,omitempty" json:"gitHttpsUsername,omitempty"`
	GitHTTPSPassword        logging.Secret `yaml:"gitHttpsPassword,omitempty" json:"-"`
	GitHubOAuthAccessToken  logging.Secret `yaml:"githubOAuthAccessToken,omitempty" json:"-"`
	SSHPrivateKeyFilePath   string         `yaml:"sshPrivateKeyFilePath,omitempty" json:"sshPrivateKeyFilePath,omitempty"`
	SSHPrivateKeyPassphrase logging.Secret `yaml:"sshPrivateKeyPassphrase,omitempty" json:"-"`
	SSHKnownHostsFilePath   string         `yaml:"sshKnownHostsFilePath,omitempty" json:"sshKnownHostsFilePath,omitempty"`
	SSHTrustUnknownHosts    bool           `yaml:"sshTrustUnknownHosts,omitempty" json:"sshTrustUnknownHosts,omitempty"`

	GcloudReleaseTrack     string   `yaml:"gcloudReleaseTrack,omitempty" json:"gcloudReleaseTrack,omitempty"`
	Services               []string `yaml:"services,omitempty" json:"services,omitempty"`
	Versions               []string `yaml:"versions,omitempty" json:"versions,omitempty"`
	OmitServices           []string `yaml:"omitServices,omitempty" json:"omitServices,omitempty"`
	OmitVersions           []string `yaml:"omitVersions,omitempty" json:"omitVersions,omitempty"`
	CachingIntervalSeconds int      `yaml:"cachingIntervalSeconds,omitempty" json:"cachingIntervalSeconds,omitempty"`
}

// ParseAccount decodes a single account document, as stored by the SQL
// account source. Unknown fields are rejected.
func ParseAccount(data []byte) (AccountDefinition, error) {
	var account AccountDefinition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&account); err != nil {
		return AccountDefinition{}, fmt.Errorf("invalid account definition: %w", err)
	}
	return account, nil
}
