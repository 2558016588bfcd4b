// Package errs defines the error taxonomy shared across the quality-gate
// pipeline. Callers match with errors.As or the Is* helpers; handlers map
// these onto HTTP status codes.
package errs

import (
	"errors"
	"fmt"
)

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError covers malformed request payloads and HTTP 422 responses
// from the support-desk API. Fields carries per-field detail when available.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Fields)
}

func Validation(message string) error {
	return &ValidationError{Message: message}
}

type InvalidStateError struct {
	Resource string
	Current  string
	Expected string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s is %s, expected %s", e.Resource, e.Current, e.Expected)
}

// ExternalServiceError carries the raw status code and body of a non-2xx
// support-desk response that is neither a 404 nor a 422.
type ExternalServiceError struct {
	StatusCode int
	Body       string
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service returned %d: %s", e.StatusCode, e.Body)
}

// SignatureError marks a webhook whose HMAC signature did not match.
// Treated as unauthorized; the body is never parsed past this point.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("signature verification failed: %s", e.Reason)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsInvalidState(err error) bool {
	var is *InvalidStateError
	return errors.As(err, &is)
}

func IsSignature(err error) bool {
	var se *SignatureError
	return errors.As(err, &se)
}
