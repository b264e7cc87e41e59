// Package resilience classifies pipeline errors by how far they reach:
// entity-scoped failures are isolated and skipped, run-scoped failures abort.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// AccessDeniedError reports that the source refused the request. It signals
// a systemic header/token problem and always aborts the whole run.
type AccessDeniedError struct {
	Target string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied by source for %s: check referer, user-agent and OTP request", e.Target)
}

// TimeoutError wraps a request that ran past its deadline. Treated like
// AccessDeniedError because the endpoint is denial-sensitive.
type TimeoutError struct {
	Target string
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out: %v", e.Target, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// SourceError wraps any other failed exchange with the source, such as a
// non-200 status without the denial marker.
type SourceError struct {
	Target string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Target, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// SchemaMismatchError reports a payload that lacks a required column.
type SchemaMismatchError struct {
	Schema string
	Column string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema %s: required source column %q missing", e.Schema, e.Column)
}

// DecodeError reports a payload that could not be decoded into rows.
type DecodeError struct {
	Target string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Target, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// NumericRangeError reports a write rejected because a value exceeded the
// destination column's numeric bounds.
type NumericRangeError struct {
	Table string
	Err   error
}

func (e *NumericRangeError) Error() string {
	return fmt.Sprintf("numeric value out of range for %s: %v", e.Table, e.Err)
}

func (e *NumericRangeError) Unwrap() error {
	return e.Err
}

// Failure categories, used as ledger names and log fields.
const (
	CategoryAccessDenied   = "access_denied"
	CategoryTimeout        = "timeout"
	CategorySource         = "source"
	CategorySchemaMismatch = "schema_mismatch"
	CategoryDecode         = "decode"
	CategoryNumericRange   = "numeric_range"
	CategoryStore          = "store"
)

// IsRunScoped returns true if err (or any error in its chain) must abort the
// whole run instead of failing a single entity.
func IsRunScoped(err error) bool {
	if err == nil {
		return false
	}

	var denied *AccessDeniedError
	if errors.As(err, &denied) {
		return true
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Category names the failure class of err. Anything unrecognised that reached
// the write path is a store failure.
func Category(err error) string {
	var (
		denied   *AccessDeniedError
		timeout  *TimeoutError
		source   *SourceError
		schema   *SchemaMismatchError
		decode   *DecodeError
		outRange *NumericRangeError
	)
	switch {
	case errors.As(err, &denied):
		return CategoryAccessDenied
	case errors.As(err, &timeout):
		return CategoryTimeout
	case errors.As(err, &source):
		return CategorySource
	case errors.As(err, &schema):
		return CategorySchemaMismatch
	case errors.As(err, &decode):
		return CategoryDecode
	case errors.As(err, &outRange):
		return CategoryNumericRange
	default:
		return CategoryStore
	}
}

// IsTimeout returns true if err is a network or context deadline expiry.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// net/http reports client timeouts as wrapped strings in some paths.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{"i/o timeout", "tls handshake timeout", "client.timeout exceeded"} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
