package entertain

import "fmt"

// ErrorKind classifies session-level failures for the control surface.
type ErrorKind string

const (
	// KindTransportTransient covers recoverable per-emitter send errors.
	KindTransportTransient ErrorKind = "transport_transient"
	// KindTransportFatal covers loss of the frame source.
	KindTransportFatal ErrorKind = "transport_fatal"
	// KindProtocolFormat covers malformed HueStream data.
	KindProtocolFormat ErrorKind = "protocol_format"
	// KindUpstreamRejected covers upstream bridge activation failures.
	KindUpstreamRejected ErrorKind = "upstream_rejected"
	// KindAuthRejected covers DTLS PSK rejection.
	KindAuthRejected ErrorKind = "auth_rejected"
	// KindResourceExhausted covers unrecoverable bind failures.
	KindResourceExhausted ErrorKind = "resource_exhausted"
	// KindCancelled is a normal, user-initiated teardown.
	KindCancelled ErrorKind = "cancelled"
)

// SessionError carries the error kind reported as the session result.
type SessionError struct {
	Kind ErrorKind
	Err  error
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

func sessionErr(kind ErrorKind, err error) *SessionError {
	return &SessionError{Kind: kind, Err: err}
}
