// Package apperr defines the error taxonomy shared by the search pipeline and
// its mapping to machine-readable codes and HTTP status codes.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrNoInputProvided means the request carried no image payload.
	ErrNoInputProvided = errors.New("no input provided")
	// ErrUpstreamUnavailable means the embedding service could not be reached or returned a non-2xx status.
	ErrUpstreamUnavailable = errors.New("embedding service unavailable")
	// ErrUpstreamTimeout means the embedding service did not answer in time.
	ErrUpstreamTimeout = errors.New("embedding service timeout")
	// ErrInvalidUpstreamResponse means the embedding service answered with a malformed or missing vector.
	ErrInvalidUpstreamResponse = errors.New("invalid embedding service response")
	// ErrDimensionMismatch means a stored vector and the query vector disagree in length.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrStoreUnavailable means the backing vector store could not be read.
	ErrStoreUnavailable = errors.New("vector store unavailable")
	// ErrInvalidItem means a record failed validation at the store boundary.
	ErrInvalidItem = errors.New("invalid stored item")
	// ErrInvalidRequest means the request was well-formed HTTP but had unusable content.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// StatusClientClosedRequest is the nginx convention for a request the client abandoned.
const StatusClientClosedRequest = 499

type entry struct {
	err    error
	code   string
	status int
}

// Order matters: the first match wins, so the more specific entries come first.
var table = []entry{
	{ErrNoInputProvided, "no_input_provided", http.StatusBadRequest},
	{ErrInvalidRequest, "invalid_request", http.StatusBadRequest},
	{ErrNotFound, "not_found", http.StatusNotFound},
	{ErrUpstreamTimeout, "upstream_timeout", http.StatusGatewayTimeout},
	{ErrUpstreamUnavailable, "upstream_unavailable", http.StatusBadGateway},
	{ErrInvalidUpstreamResponse, "invalid_upstream_response", http.StatusBadGateway},
	{ErrDimensionMismatch, "dimension_mismatch", http.StatusInternalServerError},
	{ErrInvalidItem, "invalid_item", http.StatusInternalServerError},
	{ErrStoreUnavailable, "store_unavailable", http.StatusServiceUnavailable},
}

// Code returns the stable machine-readable code for err. Unclassified errors map to "internal".
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, e := range table {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "internal"
}

// HTTPStatus returns the HTTP status that represents err at the request boundary.
func HTTPStatus(err error) int {
	for _, e := range table {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return StatusClientClosedRequest
	}
	return http.StatusInternalServerError
}

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool {
	status := HTTPStatus(err)
	return status >= 400 && status < 500
}
