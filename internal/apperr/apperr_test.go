package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeAndStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{"no input", ErrNoInputProvided, "no_input_provided", http.StatusBadRequest},
		{"wrapped unavailable", fmt.Errorf("%w: status 500", ErrUpstreamUnavailable), "upstream_unavailable", http.StatusBadGateway},
		{"timeout", fmt.Errorf("embed: %w", ErrUpstreamTimeout), "upstream_timeout", http.StatusGatewayTimeout},
		{"invalid upstream", ErrInvalidUpstreamResponse, "invalid_upstream_response", http.StatusBadGateway},
		{"dimension", fmt.Errorf("%w: got 3, want 2", ErrDimensionMismatch), "dimension_mismatch", http.StatusInternalServerError},
		{"store", ErrStoreUnavailable, "store_unavailable", http.StatusServiceUnavailable},
		{"not found", ErrNotFound, "not_found", http.StatusNotFound},
		{"unclassified", errors.New("boom"), "internal", http.StatusInternalServerError},
		{"canceled", context.Canceled, "canceled", StatusClientClosedRequest},
		{"wrapped canceled", fmt.Errorf("embedding request: %w", context.Canceled), "canceled", StatusClientClosedRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, Code(tt.err))
			assert.Equal(t, tt.wantStatus, HTTPStatus(tt.err))
		})
	}
}

func TestCode_Nil(t *testing.T) {
	assert.Equal(t, "", Code(nil))
}

func TestHTTPStatus_DeadlineExceeded(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(context.DeadlineExceeded))
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(ErrNoInputProvided))
	assert.True(t, IsClientError(fmt.Errorf("%w: limit", ErrInvalidRequest)))
	assert.False(t, IsClientError(ErrUpstreamUnavailable))
	assert.False(t, IsClientError(ErrStoreUnavailable))
	assert.True(t, IsClientError(context.Canceled))
}
