package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"remote error keeps remote status", &RemoteError{Source: "github", Status: http.StatusForbidden}, http.StatusForbidden},
		{"remote error without status", &RemoteError{Source: "catalog"}, http.StatusBadGateway},
		{"wrapped not found", fmt.Errorf("sync one: %w", &NotFoundError{Resource: "repository", Name: "x"}), http.StatusNotFound},
		{"store error", &StoreError{Op: "insert", Err: errors.New("boom")}, http.StatusInternalServerError},
		{"validation error", &ValidationError{Field: "batch_size", Message: "too big"}, http.StatusBadRequest},
		{"plain error", errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestSentinelMatching(t *testing.T) {
	notFound := fmt.Errorf("wrapped: %w", &NotFoundError{Resource: "repository", Name: "x"})
	assert.True(t, errors.Is(notFound, ErrNotFound))

	notConfigured := &ConfigurationError{Integration: "catalog", Setting: "CATALOG_URL"}
	assert.True(t, errors.Is(notConfigured, ErrNotConfigured))
	assert.False(t, errors.Is(notConfigured, ErrNotFound))

	cause := errors.New("connection reset")
	storeErr := &StoreError{Op: "delete", Err: cause}
	assert.ErrorIs(t, storeErr, cause)
}
