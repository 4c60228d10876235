package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewValidation("text", "required"), http.StatusBadRequest},
		{"wrapped not found", fmt.Errorf("loading: %w", ErrDocumentNotFound), http.StatusNotFound},
		{"storage", Storage("redis incr", errors.New("connection refused")), http.StatusServiceUnavailable},
		{"index update", fmt.Errorf("doc 1: %w", ErrIndexUpdate), http.StatusServiceUnavailable},
		{"conflict", fmt.Errorf("idempotency key: %w", ErrConflict), http.StatusConflict},
		{"scan timeout", fmt.Errorf("%w: %w", ErrScanTimeout, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"app error wins", New(ErrInternal, http.StatusTeapot, "odd"), http.StatusTeapot},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestValidationErrorMessageIsStable(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"text": "required", "limit": "too large"}}
	assert.Equal(t, "limit:too large; text:required", err.Error())
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStorageKeepsDriverError(t *testing.T) {
	driver := errors.New("i/o timeout")
	err := Storage("postgres insert", driver)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, driver)
	assert.NoError(t, Storage("noop", nil))
}
