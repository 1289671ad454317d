package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// CommandError represents a command execution error
type CommandError struct {
	Command    string
	ExitCode   int
	Message    string
	Suggestion string
}

func (e CommandError) Error() string {
	msg := fmt.Sprintf("Command '%s' failed", e.Command)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit code: %d)", e.ExitCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// BackendError enhances content-backend errors with context
func BackendError(backend string, operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("%s backend error during %s", backend, operation),
		Suggestion: getBackendSuggestion(backend, err),
		Err:        err,
	}
}

// getBackendSuggestion returns helpful suggestions based on backend and error
func getBackendSuggestion(backend string, err error) string {
	errStr := err.Error()

	switch backend {
	case "gs", "gcpsm":
		if strings.Contains(errStr, "could not find default credentials") {
			return "Run 'gcloud auth application-default login' or set GOOGLE_APPLICATION_CREDENTIALS"
		}
		if strings.Contains(errStr, "PermissionDenied") || strings.Contains(errStr, "403") {
			if backend == "gs" {
				return "Check IAM permissions for storage.objects.get on the bucket"
			}
			return "Check IAM permissions for secretmanager.versions.access"
		}
		if strings.Contains(errStr, "NotFound") || strings.Contains(errStr, "not exist") {
			return "Verify the reference exists and is spelled correctly"
		}

	case "awssm", "ssm":
		if strings.Contains(errStr, "credentials") || strings.Contains(errStr, "authorization") {
			return "Configure AWS credentials: 'aws configure' or set AWS_PROFILE"
		}
		if strings.Contains(errStr, "AccessDenied") {
			if backend == "ssm" {
				return "Check IAM permissions for ssm:GetParameter"
			}
			return "Check IAM permissions for secretsmanager:GetSecretValue"
		}
		if strings.Contains(errStr, "ResourceNotFoundException") || strings.Contains(errStr, "ParameterNotFound") {
			return "Verify the name and region in the reference"
		}
		if strings.Contains(errStr, "ThrottlingException") {
			return "AWS rate limit exceeded. Wait a moment and try again"
		}

	case "azkv":
		if strings.Contains(errStr, "DefaultAzureCredential") {
			return "Run 'az login' or configure a managed identity"
		}
		if strings.Contains(errStr, "Forbidden") {
			return "Check the Key Vault access policy grants 'get' on secrets"
		}

	case "keyring":
		if strings.Contains(errStr, "not found") {
			return "Store the key first, e.g. with 'secret-tool store' or Keychain Access"
		}
	}

	// Generic suggestions
	if strings.Contains(errStr, "timeout") {
		return "The operation timed out. Check your network connection and try again"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and backend configuration"
	}

	return ""
}

// GcloudSuggestion maps gcloud error output to a hint for the user.
func GcloudSuggestion(output string) string {
	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "executable file not found") || strings.Contains(lower, "command not found"):
		return "Install the Google Cloud SDK: https://cloud.google.com/sdk/docs/install"
	case strings.Contains(lower, "reauthentication") || strings.Contains(lower, "invalid_grant") ||
		strings.Contains(lower, "credentials have expired"):
		return "Credentials expired. Run 'cloudrunops accounts' to re-authenticate the account"
	case strings.Contains(lower, "permission_denied") || strings.Contains(lower, "permission denied"):
		return "Grant the service account roles/run.admin and roles/iam.serviceAccountUser on the project"
	case strings.Contains(lower, "could not find service") || strings.Contains(lower, "not_found"):
		return "Verify the service name, region and project. List services with 'gcloud run services list'"
	case strings.Contains(lower, "api has not been used") || strings.Contains(lower, "service_disabled"):
		return "Enable the Cloud Run API: 'gcloud services enable run.googleapis.com'"
	case strings.Contains(lower, "timed out"):
		return "The command exceeded commandTimeout. Raise it in the config or check the service"
	}
	return ""
}

// WrapCommandNotFound wraps command not found errors with helpful suggestions
func WrapCommandNotFound(command string, err error) error {
	suggestions := map[string]string{
		"gcloud": "Install the Google Cloud SDK: https://cloud.google.com/sdk/docs/install",
		"git":    "Install Git from https://git-scm.com/",
	}

	suggestion := suggestions[command]
	if suggestion == "" {
		suggestion = fmt.Sprintf("Make sure '%s' is installed and in your PATH", command)
	}

	return CommandError{
		Command:    command,
		Message:    "command not found",
		Suggestion: suggestion,
	}
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	// Already a user-friendly error
	if _, ok := err.(UserError); ok {
		return err
	}
	if _, ok := err.(ConfigError); ok {
		return err
	}
	if _, ok := err.(CommandError); ok {
		return err
	}

	// Simplify common technical errors
	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "executable file not found") {
		return UserError{
			Message:    "Command not found",
			Suggestion: "Set gcloudPath in the config or install the Google Cloud SDK",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	// Return original error if we can't simplify it
	return err
}
