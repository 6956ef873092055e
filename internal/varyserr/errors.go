// Package varyserr defines the error taxonomy shared by every Varys
// component: coordinator, agent, and client library all classify failures
// into one of six categories so that callers can apply the fatal/non-fatal
// policy a component is supposed to apply without string-matching error
// messages.
//
// Categories and their propagation policy:
//
//   - Configuration: malformed input at process start. Always fatal.
//   - Connectivity: peer unreachable or connection dropped. Fatal for the
//     coordinator and agent; marks the client disconnected.
//   - Protocol: unknown tag or malformed payload. Connection is closed;
//     per-side fatal policy otherwise matches Connectivity.
//   - NotFound: GetFlow for an unknown (coflowId, flowId).
//   - Type: get* received bytes whose DataType doesn't match the request.
//   - Timeout: a synchronous ask exceeded its deadline.
//
// Each category is a cockroachdb/errors marker: construct with the New*
// helpers, test membership with errors.Is against the exported sentinels.
package varyserr

import (
	"github.com/cockroachdb/errors"
)

// Sentinels usable with errors.Is to classify a wrapped error.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrConnectivity  = errors.New("connectivity error")
	ErrProtocol      = errors.New("protocol error")
	ErrNotFound      = errors.New("not found")
	ErrType          = errors.New("type mismatch")
	ErrTimeout       = errors.New("timeout")
)

// NewConfiguration reports a malformed-input error fatal at process start.
func NewConfiguration(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}

// NewConnectivity reports a peer-unreachable or connection-dropped error.
func NewConnectivity(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrConnectivity)
}

// WrapConnectivity marks an underlying I/O error as a connectivity failure.
func WrapConnectivity(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrConnectivity)
}

// NewProtocol reports an unknown-tag or malformed-payload error.
func NewProtocol(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrProtocol)
}

// WrapProtocol marks an underlying decode error as a protocol failure.
func WrapProtocol(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrProtocol)
}

// NewNotFound reports a GetFlow miss for an unknown data identifier.
func NewNotFound(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

// NewType reports a get* call whose received DataType doesn't match the
// requested variant.
func NewType(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrType)
}

// NewTimeout reports a synchronous ask exceeding its deadline.
func NewTimeout(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrTimeout)
}

// IsNotFound reports whether err (or any error it wraps) is a NotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsTimeout reports whether err (or any error it wraps) is a Timeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// IsConnectivity reports whether err (or any error it wraps) is a
// Connectivity failure.
func IsConnectivity(err error) bool { return errors.Is(err, ErrConnectivity) }
