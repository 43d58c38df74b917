package api

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ConnectivityError indicates a transient failure: the network was
// unreachable, the request timed out, or the backend answered with a
// 5xx/429. The operation is safe to retry later.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity error (%s): %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ValidationError indicates a request that retrying cannot fix: the
// backend rejected the body, or the mutation itself is malformed.
// Status is zero for client-side rejections that never reached the wire.
type ValidationError struct {
	Status  int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Status == 0 {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error (%d): %s", e.Status, e.Message)
}

// ConflictError indicates the request conflicts with the backend's
// current state (HTTP 409). Retrying the same request cannot succeed.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Message)
}

// AuthError indicates authentication has failed or expired (401/403).
// It is terminal for the current session.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%d): %s", e.Status, e.Message)
}

// IsConnectivity reports whether err is retryable: a ConnectivityError,
// a timeout, or a low-level network failure.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	if errors.As(err, &ce) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// IsAuth reports whether err (or any error in its chain) is an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsPermanent reports whether err is a definitive rejection that retrying
// cannot fix: a validation or conflict error.
func IsPermanent(err error) bool {
	var ve *ValidationError
	var ce *ConflictError
	return errors.As(err, &ve) || errors.As(err, &ce)
}
