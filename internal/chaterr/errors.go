// ABOUTME: Error taxonomy shared by the store, ingestion, provider and HTTP layers
// ABOUTME: Typed errors carry enough detail to pick an HTTP status without string matching

package chaterr

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrWebhookUnauthorized is returned when a webhook request fails the shared-secret check.
var ErrWebhookUnauthorized = errors.New("webhook signature mismatch")

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// Validation builds a ValidationError for field with a formatted reason.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports that a referenced entity does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// Integration states distinguish a missing setup from an intentional pause.
const (
	IntegrationNotConfigured = "not_configured"
	IntegrationDisabled      = "disabled"
)

// IntegrationError reports that the provider integration cannot be used.
type IntegrationError struct {
	State string
}

func (e *IntegrationError) Error() string {
	if e.State == IntegrationDisabled {
		return "provider integration is disabled"
	}
	return "provider integration is not configured"
}

// NotConfigured is returned when no provider configuration exists.
func NotConfigured() error { return &IntegrationError{State: IntegrationNotConfigured} }

// Disabled is returned when the provider configuration is explicitly deactivated.
func Disabled() error { return &IntegrationError{State: IntegrationDisabled} }

// IsNotConfigured reports whether err is a missing-configuration integration error.
func IsNotConfigured(err error) bool {
	var ie *IntegrationError
	return errors.As(err, &ie) && ie.State == IntegrationNotConfigured
}

// IsDisabled reports whether err is a deactivated-configuration integration error.
func IsDisabled(err error) bool {
	var ie *IntegrationError
	return errors.As(err, &ie) && ie.State == IntegrationDisabled
}

// ProviderError wraps a failed call to the external messaging provider.
// Status is zero when the failure happened below HTTP (DNS, connection reset, timeout).
type ProviderError struct {
	Op      string
	Status  int
	Timeout bool
	Err     error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("provider %s: timed out", e.Op)
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("provider %s: status %d: %v", e.Op, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("provider %s: status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("provider %s: unavailable", e.Op)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Code returns a short machine-readable code for err, used in JSON error bodies.
func Code(err error) string {
	var (
		ve *ValidationError
		ne *NotFoundError
		ie *IntegrationError
		pe *ProviderError
	)
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &ne):
		return "not_found"
	case errors.As(err, &ie):
		return "integration_" + ie.State
	case errors.Is(err, ErrWebhookUnauthorized):
		return "unauthorized"
	case errors.As(err, &pe):
		if pe.Timeout {
			return "provider_timeout"
		}
		return "provider_error"
	default:
		return "internal"
	}
}

// HTTPStatus maps err onto the status code the HTTP layer should return.
func HTTPStatus(err error) int {
	var (
		ve *ValidationError
		ne *NotFoundError
		ie *IntegrationError
		pe *ProviderError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ne):
		return http.StatusNotFound
	case errors.As(err, &ie):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrWebhookUnauthorized):
		return http.StatusUnauthorized
	case errors.As(err, &pe):
		switch {
		case pe.Timeout:
			return http.StatusGatewayTimeout
		case pe.Status == http.StatusTooManyRequests:
			return http.StatusServiceUnavailable
		default:
			return http.StatusBadGateway
		}
	default:
		return http.StatusInternalServerError
	}
}
