package deploy

import (
	"fmt"
	"strings"

	"github.com/systmms/cloudrunops/pkg/exec"
)

// Operation names used in failures, outcomes and metrics.
const (
	OperationDeploy  = "deploy"
	OperationDestroy = "destroy"
)

// Status is the final state of an operation.
type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Outcome is the result of one deploy or destroy. It is returned whenever
// the operation got as far as building its command.
type Outcome struct {
	Operation string
	Account   string
	Command   []string
	Artifacts []string
	Result    *exec.Result
	Status    Status
}

// Succeeded reports whether gcloud exited zero.
func (o *Outcome) Succeeded() bool {
	return o != nil && o.Status == StatusSucceeded
}

// FailureKind classifies an OperationFailure.
type FailureKind string

const (
	// KindInvalid means the request could not be executed as given.
	KindInvalid FailureKind = "invalid"
	// KindStaging means a config file could not be written.
	KindStaging FailureKind = "staging"
	// KindProcess means gcloud failed, timed out or could not be started.
	KindProcess FailureKind = "process"
	// KindCanceled means the caller gave up before a step started.
	KindCanceled FailureKind = "canceled"
)

// OperationFailure is returned by every failed operation.
type OperationFailure struct {
	Operation string
	Account   string
	Command   []string
	Kind      FailureKind
	Err       error
}

func (f *OperationFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s on account %q failed (%s)", f.Operation, f.Account, f.Kind)
	if len(f.Command) > 0 {
		fmt.Fprintf(&b, " running %q", strings.Join(f.Command, " "))
	}
	fmt.Fprintf(&b, ": %v", f.Err)
	return b.String()
}

func (f *OperationFailure) Unwrap() error {
	return f.Err
}
