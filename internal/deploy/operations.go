package deploy

import (
	"context"

	"github.com/systmms/cloudrunops/internal/credentials"
	"github.com/systmms/cloudrunops/internal/task"
)

// CredentialLookup finds an account by name. *credentials.Repository
// implements it.
type CredentialLookup interface {
	Get(name string) (*credentials.NamedCredential, error)
}

// Operations runs operations against accounts named by the caller.
type Operations struct {
	accounts CredentialLookup
	executor *Executor
}

// NewOperations creates the facade.
func NewOperations(accounts CredentialLookup, executor *Executor) *Operations {
	return &Operations{accounts: accounts, executor: executor}
}

// Deploy resolves account and deploys to it.
func (o *Operations) Deploy(ctx context.Context, t task.Task, account string, desc DeployDescription) (*Outcome, error) {
	cred, err := o.accounts.Get(account)
	if err != nil {
		return nil, o.unknownAccount(t, OperationDeploy, task.PhaseDeploy, account, err)
	}
	return o.executor.Deploy(ctx, t, cred, desc)
}

// Destroy resolves account and deletes a service from it.
func (o *Operations) Destroy(ctx context.Context, t task.Task, account string, desc DestroyDescription) (*Outcome, error) {
	cred, err := o.accounts.Get(account)
	if err != nil {
		return nil, o.unknownAccount(t, OperationDestroy, task.PhaseDestroy, account, err)
	}
	return o.executor.Destroy(ctx, t, cred, desc)
}

func (o *Operations) unknownAccount(t task.Task, operation, phase, account string, err error) error {
	t.Fail(phase, "Could not find account "+account)
	return &OperationFailure{Operation: operation, Account: account, Kind: KindInvalid, Err: err}
}
