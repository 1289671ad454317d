package permissions

import (
	"testing"

	"github.com/systmms/cloudrunops/internal/config"
	"github.com/systmms/cloudrunops/internal/credentials"
	"github.com/systmms/cloudrunops/internal/logging"
)

func TestCheckerUnrestricted(t *testing.T) {
	checker := NewChecker(logging.New(false, true))
	cred := &credentials.NamedCredential{Name: "dev", Permissions: config.Permissions{}}

	result := checker.Check(cred, Request{Principal: "alice", Authorization: config.AuthorizationWrite})
	if !result.Allowed {
		t.Error("Expected unrestricted account to be allowed")
	}
	if result.Reason != "account is unrestricted" {
		t.Errorf("Expected 'account is unrestricted', got: %s", result.Reason)
	}
}

func TestCheckerRestrictedPermissions(t *testing.T) {
	checker := NewChecker(logging.New(false, true))
	cred := &credentials.NamedCredential{
		Name: "prod",
		Permissions: config.Permissions{
			config.AuthorizationRead:  {"engineers", "deployers"},
			config.AuthorizationWrite: {"Deployers"},
		},
		RequiredGroupMembership: []string{},
	}

	tests := []struct {
		name    string
		groups  []string
		auth    config.Authorization
		allowed bool
	}{
		{"reader can read", []string{"engineers"}, config.AuthorizationRead, true},
		{"reader cannot write", []string{"engineers"}, config.AuthorizationWrite, false},
		{"deployer can write, case-insensitive", []string{"deployers"}, config.AuthorizationWrite, true},
		{"no groups", nil, config.AuthorizationRead, false},
		{"authorization without groups", []string{"deployers"}, config.AuthorizationExecute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := checker.Check(cred, Request{Principal: "alice", Groups: tt.groups, Authorization: tt.auth})
			if result.Allowed != tt.allowed {
				t.Errorf("Allowed = %v, want %v (reason: %s)", result.Allowed, tt.allowed, result.Reason)
			}
			if result.Account != "prod" {
				t.Errorf("Account = %s, want prod", result.Account)
			}
		})
	}
}

func TestCheckerRequiredGroupMembership(t *testing.T) {
	checker := NewChecker(logging.New(false, true))
	cred := &credentials.NamedCredential{Name: "staging", RequiredGroupMembership: []string{"qa", "ops"}}

	if !checker.Check(cred, Request{Groups: []string{"ops"}, Authorization: config.AuthorizationWrite}).Allowed {
		t.Error("Expected member of ops to be allowed")
	}
	result := checker.Check(cred, Request{Groups: []string{"marketing"}, Authorization: config.AuthorizationRead})
	if result.Allowed {
		t.Error("Expected non-member to be denied")
	}
	if result.Reason != "requires membership in one of: qa, ops" {
		t.Errorf("Unexpected reason: %s", result.Reason)
	}
}

func TestCheckerFilter(t *testing.T) {
	checker := NewChecker(logging.New(false, true))
	creds := []*credentials.NamedCredential{
		{Name: "dev"},
		{Name: "prod", Permissions: config.Permissions{config.AuthorizationRead: {"ops"}}},
		{Name: "staging", RequiredGroupMembership: []string{"qa"}},
	}

	allowed := checker.Filter(creds, Request{Groups: []string{"qa"}, Authorization: config.AuthorizationRead})
	if len(allowed) != 2 || allowed[0].Name != "dev" || allowed[1].Name != "staging" {
		t.Errorf("Expected [dev staging], got %d accounts", len(allowed))
	}
}
