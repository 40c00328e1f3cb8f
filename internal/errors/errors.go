// Package errors defines the typed errors shared by the adapters, the sync engine
// and the API layer. Every error carries an HTTP-style status code.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound matches any NotFoundError.
	ErrNotFound = errors.New("not found")

	// ErrNotConfigured matches any ConfigurationError.
	ErrNotConfigured = errors.New("integration not configured")
)

// RemoteError is returned when an external system answers with a non-2xx status.
type RemoteError struct {
	Source string
	Status int
	Body   string
	Err    error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Source, e.Status, e.Body)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// StatusCode returns the status reported by the remote system.
func (e *RemoteError) StatusCode() int {
	if e.Status == 0 {
		return http.StatusBadGateway
	}
	return e.Status
}

// NotFoundError is returned when a repository is unknown to the source host.
type NotFoundError struct {
	Resource string
	Name     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func (e *NotFoundError) StatusCode() int {
	return http.StatusNotFound
}

// StoreError wraps a failed persistence operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) StatusCode() int {
	return http.StatusInternalServerError
}

// ConfigurationError reports an optional integration whose settings are missing.
type ConfigurationError struct {
	Integration string
	Setting     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s integration is not configured: %s is empty", e.Integration, e.Setting)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrNotConfigured
}

func (e *ConfigurationError) StatusCode() int {
	return http.StatusServiceUnavailable
}

// ValidationError is returned for invalid caller input such as an out of range batch size.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) StatusCode() int {
	return http.StatusBadRequest
}

// StatusCode extracts the status carried by err, defaulting to 500.
func StatusCode(err error) int {
	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) {
		return coded.StatusCode()
	}
	return http.StatusInternalServerError
}
