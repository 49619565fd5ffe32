package rpcfetch

import (
	"errors"
	"fmt"
	"net/http"
)

// Package errors.
var (
	// ErrNoEndpoints is returned when no RPC endpoints are available.
	ErrNoEndpoints = errors.New("no RPC endpoints available")

	// ErrSlotSkipped is returned when a slot has no block (was skipped).
	ErrSlotSkipped = errors.New("slot was skipped")

	// ErrLeaderScheduleNotFound is returned when the cluster has no leader
	// schedule for the requested epoch.
	ErrLeaderScheduleNotFound = errors.New("leader schedule not found")

	// ErrMalformedResponse is returned when a response does not have the
	// expected shape.
	ErrMalformedResponse = errors.New("malformed response")
)

// RPCError represents a JSON-RPC error response.
type RPCError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// HTTPError is returned for a non-200 response.
type HTTPError struct {
	Method     string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: http status %d: %s", e.Method, e.StatusCode, e.Body)
}

// ConnectivityError is returned when the connection probe gives up.
// It is the only error that aborts a report run.
type ConnectivityError struct {
	Endpoint string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("could not reach %s after %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
}

// Unwrap returns the last probe error.
func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// IsSlotSkipped returns true if the error indicates a skipped slot.
func IsSlotSkipped(err error) bool {
	if errors.Is(err, ErrSlotSkipped) {
		return true
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		// Common RPC error codes for missing/skipped slots:
		// -32009: Slot was skipped, or missing in long-term storage
		// -32007: Slot was skipped
		// -32004: Block not available for slot
		switch rpcErr.Code {
		case -32009, -32007, -32004:
			return true
		}
	}

	return false
}

// IsConnectivity reports whether err is a *ConnectivityError.
func IsConnectivity(err error) bool {
	var connErr *ConnectivityError
	return errors.As(err, &connErr)
}

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Don't retry slot skipped errors
	if IsSlotSkipped(err) {
		return false
	}

	if errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrLeaderScheduleNotFound) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return true
		case httpErr.StatusCode >= 400 && httpErr.StatusCode < 500:
			return false
		}
	}

	// Most other errors are potentially retryable
	return true
}
