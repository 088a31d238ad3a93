// internal/providers/errors.go
package providers

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every backend. Backends wrap them with %w so
// callers can classify failures with errors.Is.
var (
	// ErrConfiguration marks missing credentials, model paths or URLs.
	ErrConfiguration = errors.New("configuration error")
	// ErrAuthentication marks credentials the remote service rejected.
	ErrAuthentication = errors.New("authentication error")
	// ErrNetwork marks a failed connectivity probe.
	ErrNetwork = errors.New("network error")
	// ErrUnrecognizedModel is returned when no backend kind can be resolved
	// for a model name.
	ErrUnrecognizedModel = errors.New("unrecognized model")
	// ErrValidation marks a model unknown to its backend or a request payload
	// the backend refused.
	ErrValidation = errors.New("validation error")
)

// ConfigurationError wraps ErrConfiguration with a message.
func ConfigurationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// AuthenticationError wraps ErrAuthentication and the underlying cause.
func AuthenticationError(backend string, cause error) error {
	return fmt.Errorf("%w: %s rejected the credentials: %w", ErrAuthentication, backend, cause)
}

// NetworkError wraps ErrNetwork and the underlying cause.
func NetworkError(cause error) error {
	return fmt.Errorf("%w: no connectivity: %w", ErrNetwork, cause)
}

// ValidationError wraps ErrValidation with a message.
func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Hint returns a one-line remediation message for fatal errors, or "" when
// there is nothing more useful to say than the error itself.
func Hint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthentication):
		return "check the API key in ~/.lime/secrets.env (OPENAI_API_KEY or ANTHROPIC_API_KEY)"
	case errors.Is(err, ErrNetwork):
		return "check your network connection and try again"
	case errors.Is(err, ErrUnrecognizedModel):
		return "add an explicit `type` for this model under `models:` in .lime/config.yaml"
	case errors.Is(err, ErrValidation):
		return "run `lime check` to list the models the backend exposes"
	case errors.Is(err, ErrConfiguration):
		return "run `lime check` to inspect the resolved configuration"
	}
	return ""
}
