package permissions

import (
	"fmt"
	"strings"

	"github.com/systmms/cloudrunops/internal/config"
	"github.com/systmms/cloudrunops/internal/credentials"
	"github.com/systmms/cloudrunops/internal/logging"
)

// Checker handles group-based authorization of accounts.
type Checker struct {
	logger *logging.Logger
}

// NewChecker creates a new permission checker
func NewChecker(logger *logging.Logger) *Checker {
	return &Checker{logger: logger.Named("permissions")}
}

// Request represents one authorization check
type Request struct {
	Principal     string               // Who is asking, for logging
	Groups        []string             // Groups the principal belongs to
	Authorization config.Authorization // READ to see the account, WRITE to deploy
}

// Result represents the result of a permission check
type Result struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Account string `json:"account"`
}

// Check decides whether req may use the account. A restricted account is
// governed by its permissions; otherwise a non-empty group membership list
// applies to every authorization. Group names match case-insensitively.
func (c *Checker) Check(cred *credentials.NamedCredential, req Request) *Result {
	if cred.Permissions.IsRestricted() {
		groups := cred.Permissions[req.Authorization]
		if match, ok := firstMatch(groups, req.Groups); ok {
			c.logger.Debug("%s granted %s on %s through group %s", req.Principal, req.Authorization, cred.Name, match)
			return &Result{Allowed: true, Reason: fmt.Sprintf("member of %s", match), Account: cred.Name}
		}
		c.logger.Warn("%s denied %s on account %s", req.Principal, req.Authorization, cred.Name)
		if len(groups) == 0 {
			return &Result{Reason: fmt.Sprintf("no group holds %s on this account", req.Authorization), Account: cred.Name}
		}
		return &Result{Reason: fmt.Sprintf("%s requires one of: %s", req.Authorization, strings.Join(groups, ", ")), Account: cred.Name}
	}

	if len(cred.RequiredGroupMembership) > 0 {
		if match, ok := firstMatch(cred.RequiredGroupMembership, req.Groups); ok {
			return &Result{Allowed: true, Reason: fmt.Sprintf("member of %s", match), Account: cred.Name}
		}
		c.logger.Warn("%s is not in the required groups of account %s", req.Principal, cred.Name)
		return &Result{Reason: "requires membership in one of: " + strings.Join(cred.RequiredGroupMembership, ", "), Account: cred.Name}
	}

	return &Result{Allowed: true, Reason: "account is unrestricted", Account: cred.Name}
}

// Filter returns the accounts req is allowed to use, in order.
func (c *Checker) Filter(creds []*credentials.NamedCredential, req Request) []*credentials.NamedCredential {
	var allowed []*credentials.NamedCredential
	for _, cred := range creds {
		if c.Check(cred, req).Allowed {
			allowed = append(allowed, cred)
		}
	}
	return allowed
}

func firstMatch(required, held []string) (string, bool) {
	for _, want := range required {
		for _, have := range held {
			if strings.EqualFold(want, have) {
				return want, true
			}
		}
	}
	return "", false
}
