package credentials

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/systmms/cloudrunops/internal/config"
	"github.com/systmms/cloudrunops/internal/logging"
	"github.com/systmms/cloudrunops/internal/secure"
)

// CloudPlatformScope is requested by TokenSource when no scope is given.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// ErrAccountNotFound is returned for names absent from the snapshot.
var ErrAccountNotFound = errors.New("account not found")

// SourceKind says where an account's Google credentials come from.
type SourceKind int

const (
	// SourceApplicationDefault uses the ambient gcloud / ADC login.
	SourceApplicationDefault SourceKind = iota
	// SourceJSONKey uses a service-account or user JSON key file.
	SourceJSONKey
	// SourceExplicit uses a token source supplied programmatically.
	SourceExplicit
)

func (k SourceKind) String() string {
	switch k {
	case SourceApplicationDefault:
		return "application-default"
	case SourceJSONKey:
		return "json-key"
	case SourceExplicit:
		return "explicit"
	}
	return fmt.Sprintf("SourceKind(%d)", int(k))
}

// Credentials is the authenticated handle of an account. Only the fields
// of its Kind are set.
type Credentials struct {
	Kind    SourceKind
	Project string

	// SourceJSONKey
	KeyRef      string
	Key         *secure.Key
	ClientEmail string

	// SourceExplicit
	Tokens oauth2.TokenSource
}

// JSONKeyCredentials creates a key-file handle.
func JSONKeyCredentials(project, ref string, key *secure.Key, clientEmail string) Credentials {
	return Credentials{Kind: SourceJSONKey, Project: project, KeyRef: ref, Key: key, ClientEmail: clientEmail}
}

// ApplicationDefaultCredentials creates an ambient-login handle.
func ApplicationDefaultCredentials(project string) Credentials {
	return Credentials{Kind: SourceApplicationDefault, Project: project}
}

// ExplicitCredentials creates a handle around an existing token source.
func ExplicitCredentials(project string, tokens oauth2.TokenSource) Credentials {
	return Credentials{Kind: SourceExplicit, Project: project, Tokens: tokens}
}

// TokenSource returns OAuth2 tokens for calling Google APIs directly with
// this account.
func (c Credentials) TokenSource(ctx context.Context, scopes ...string) (oauth2.TokenSource, error) {
	if len(scopes) == 0 {
		scopes = []string{CloudPlatformScope}
	}
	switch c.Kind {
	case SourceExplicit:
		if c.Tokens == nil {
			return nil, errors.New("explicit credentials without a token source")
		}
		return c.Tokens, nil
	case SourceJSONKey:
		if c.Key.Empty() {
			return nil, fmt.Errorf("no key material for %s", c.KeyRef)
		}
		var ts oauth2.TokenSource
		err := c.Key.WithBytes(func(b []byte) error {
			creds, err := google.CredentialsFromJSON(ctx, b, scopes...)
			if err != nil {
				return err
			}
			ts = creds.TokenSource
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("loading key %s: %w", c.KeyRef, err)
		}
		return ts, nil
	default:
		creds, err := google.FindDefaultCredentials(ctx, scopes...)
		if err != nil {
			return nil, err
		}
		return creds.TokenSource, nil
	}
}

// NamedCredential is a validated, authenticated account. It is never built
// for an account that failed validation or authentication.
type NamedCredential struct {
	Name                     string
	Environment              string
	AccountType              string
	Project                  string
	Region                   string
	Permissions              config.Permissions
	RequiredGroupMembership  []string
	Credentials              Credentials
	JSONPath                 string
	LocalRepositoryDirectory string
	GcloudPath               string
	ServiceAccountEmail      string
	ApplicationName          string

	GitHTTPSUsername        string
	GitHTTPSPassword        logging.Secret
	GitHubOAuthAccessToken  logging.Secret
	SSHPrivateKeyFilePath   string
	SSHPrivateKeyPassphrase logging.Secret
	SSHKnownHostsFilePath   string
	SSHTrustUnknownHosts    bool

	GcloudReleaseTrack     string
	Services               []string
	Versions               []string
	OmitServices           []string
	OmitVersions           []string
	CachingIntervalSeconds int
}

// Snapshot is one immutable generation of the credential set.
type Snapshot struct {
	accounts   map[string]*NamedCredential
	generation uint64
	loadedAt   time.Time
}

// NewSnapshot builds a snapshot from creds in order; a later duplicate
// name replaces an earlier one.
func NewSnapshot(generation uint64, loadedAt time.Time, creds []*NamedCredential) *Snapshot {
	accounts := make(map[string]*NamedCredential, len(creds))
	for _, cred := range creds {
		if cred != nil {
			accounts[cred.Name] = cred
		}
	}
	return &Snapshot{accounts: accounts, generation: generation, loadedAt: loadedAt}
}

// EmptySnapshot is generation 0 with no accounts.
func EmptySnapshot() *Snapshot {
	return &Snapshot{accounts: map[string]*NamedCredential{}}
}

// Get looks up one account.
func (s *Snapshot) Get(name string) (*NamedCredential, bool) {
	cred, ok := s.accounts[name]
	return cred, ok
}

// Len returns the number of accounts.
func (s *Snapshot) Len() int {
	return len(s.accounts)
}

// Names returns the account names in sorted order.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.accounts))
	for name := range s.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the accounts sorted by name.
func (s *Snapshot) All() []*NamedCredential {
	out := make([]*NamedCredential, 0, len(s.accounts))
	for _, name := range s.Names() {
		out = append(out, s.accounts[name])
	}
	return out
}

// Generation is the loader cycle that produced the snapshot.
func (s *Snapshot) Generation() uint64 {
	return s.generation
}

// LoadedAt is when the snapshot was produced.
func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// Stage names the parse step an account failed at.
type Stage string

const (
	StageValidate     Stage = "validate"
	StageResolve      Stage = "resolve"
	StageReadKey      Stage = "read-key"
	StageAuthenticate Stage = "authenticate"
	StageInternal     Stage = "internal"
)

// AccountParseFailure is the reason one account produced no credential.
type AccountParseFailure struct {
	Account string
	Stage   Stage
	Err     error
}

func (f *AccountParseFailure) Error() string {
	return fmt.Sprintf("account %q failed to %s: %v", f.Account, f.Stage, f.Err)
}

func (f *AccountParseFailure) Unwrap() error {
	return f.Err
}

// LoadCycleFailure means the account source could not be read, so no
// snapshot was produced.
type LoadCycleFailure struct {
	Err error
}

func (f *LoadCycleFailure) Error() string {
	return fmt.Sprintf("loading accounts: %v", f.Err)
}

func (f *LoadCycleFailure) Unwrap() error {
	return f.Err
}
