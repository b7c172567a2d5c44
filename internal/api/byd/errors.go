package byd

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every error the BYD cloud can produce. The set is
// closed: callers above the client boundary switch on Kind instead of
// matching vendor error strings.
type ErrorKind int

const (
	// KindAuth means credentials are invalid; not retryable.
	KindAuth ErrorKind = iota
	// KindSessionExpired means the login session was invalidated elsewhere.
	KindSessionExpired
	// KindTransport covers network failures and client-side timeouts.
	KindTransport
	// KindRateLimit means the cloud throttled the request.
	KindRateLimit
	// KindUnsupported means the endpoint is not available for this
	// vehicle or region.
	KindUnsupported
	// KindControlPassword means the control PIN was rejected or cloud
	// control is temporarily locked.
	KindControlPassword
	// KindControlRejected means the cloud reported a remote command as
	// failed even though the vehicle may have executed it.
	KindControlRejected
	// KindAPI is a generic cloud-side error with a vendor code.
	KindAPI
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindSessionExpired:
		return "session_expired"
	case KindTransport:
		return "transport"
	case KindRateLimit:
		return "rate_limit"
	case KindUnsupported:
		return "unsupported"
	case KindControlPassword:
		return "control_password"
	case KindControlRejected:
		return "control_rejected"
	case KindAPI:
		return "api"
	}
	return "unknown"
}

// RemoteError is the single error type produced at the client boundary.
type RemoteError struct {
	Kind     ErrorKind
	Code     int
	Endpoint string
	Message  string
	cause    error
}

func (e *RemoteError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("byd %s error (code %d, endpoint %s): %s", e.Kind, e.Code, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("byd %s error: %s", e.Kind, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.cause
}

// NewRemoteError builds a RemoteError with an optional underlying cause.
func NewRemoteError(kind ErrorKind, message string, cause error) *RemoteError {
	return &RemoteError{Kind: kind, Message: message, cause: cause}
}

// ErrorIsKind reports whether err is a RemoteError of the given kind.
func ErrorIsKind(err error, kind ErrorKind) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Kind == kind
}

// IsAuth reports an invalid-credentials error.
func IsAuth(err error) bool { return ErrorIsKind(err, KindAuth) }

// IsSessionExpired reports an expired-session error.
func IsSessionExpired(err error) bool { return ErrorIsKind(err, KindSessionExpired) }

// IsTransport reports a network or timeout error.
func IsTransport(err error) bool { return ErrorIsKind(err, KindTransport) }

// IsRateLimit reports a cloud throttling error.
func IsRateLimit(err error) bool { return ErrorIsKind(err, KindRateLimit) }

// IsUnsupported reports an endpoint-unsupported error.
func IsUnsupported(err error) bool { return ErrorIsKind(err, KindUnsupported) }

// IsControlPassword reports a rejected control PIN.
func IsControlPassword(err error) bool { return ErrorIsKind(err, KindControlPassword) }

// IsControlRejected reports a cloud-rejected remote command.
func IsControlRejected(err error) bool { return ErrorIsKind(err, KindControlRejected) }

// IsRecoverable reports whether a telemetry fetch may swallow the error
// and fall back to cached data. Auth and session errors always propagate.
func IsRecoverable(err error) bool {
	var re *RemoteError
	if !errors.As(err, &re) {
		return false
	}
	switch re.Kind {
	case KindTransport, KindRateLimit, KindUnsupported, KindAPI:
		return true
	}
	return false
}
