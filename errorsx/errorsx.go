// Package errorsx contains the error taxonomy shared by the whole
// module. Raw connect errors are not wrapped: they reach the caller
// verbatim as returned by the raw connector.
package errorsx

import "fmt"

// PolicyError indicates that the force-HTTPS policy rejected the
// destination before any network I/O was attempted.
type PolicyError struct {
	// Scheme is the rejected destination scheme.
	Scheme string
}

// Error implements error.
func (e *PolicyError) Error() string {
	return fmt.Sprintf("httpsx: policy forbids connecting with %q scheme", e.Scheme)
}

// HandshakeError is a terminal TLS negotiation failure. It wraps the
// backend-specific error.
type HandshakeError struct {
	// Err is the underlying backend error.
	Err error
}

// Error implements error.
func (e *HandshakeError) Error() string {
	return fmt.Sprintf("httpsx: tls handshake failed: %s", e.Err.Error())
}

// Unwrap returns the underlying backend error.
func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// ContractViolation indicates caller misuse, e.g. polling an already
// resolved operation. It is used as a panic value, never returned as
// an ordinary error, because it indicates a bug rather than a runtime
// condition.
type ContractViolation struct {
	// Op names the violated contract.
	Op string
}

// Error implements error, so that recovering code can inspect the
// panic value with the errors package.
func (e *ContractViolation) Error() string {
	return fmt.Sprintf("httpsx: contract violation: %s", e.Op)
}
