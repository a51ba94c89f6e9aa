package notify

import (
	"errors"
	"fmt"
)

// Delivery failure classes. A *DeliveryError matches exactly one of them
// with errors.Is.
var (
	ErrUnauthorized = errors.New("ntfy rejected credentials")
	ErrRejected     = errors.New("ntfy rejected message")
	ErrTransient    = errors.New("ntfy unavailable")
)

// DeliveryKind classifies a failed delivery.
type DeliveryKind int

// Delivery kinds.
const (
	// KindTransient covers network errors and 5xx responses. Retried.
	KindTransient DeliveryKind = iota + 1
	// KindUnauthorized covers 401 and 403 responses. Not retried.
	KindUnauthorized
	// KindRejected covers every other 4xx response. Not retried.
	KindRejected
)

func (k DeliveryKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindUnauthorized:
		return "unauthorized"
	case KindRejected:
		return "rejected"
	}
	return fmt.Sprintf("DeliveryKind(%d)", int(k))
}

// DeliveryError reports why a Message was not delivered.
//
// Fields:
//   - Kind: failure class
//   - StatusCode: HTTP status of the last response, 0 for transport errors
//   - Attempts: number of HTTP requests made
//   - Err: underlying transport error or response summary
type DeliveryError struct {
	Kind       DeliveryKind
	StatusCode int
	Attempts   int
	Err        error
}

func (e *DeliveryError) Error() string {
	msg := fmt.Sprintf("ntfy delivery %s after %d attempt(s)", e.Kind, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": HTTP %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's Kind.
func (e *DeliveryError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrRejected:
		return e.Kind == KindRejected
	}
	return false
}

// classifyStatus maps an HTTP status to a failure kind. ok is true for 2xx.
func classifyStatus(code int) (kind DeliveryKind, ok bool) {
	switch {
	case code >= 200 && code < 300:
		return 0, true
	case code == 401 || code == 403:
		return KindUnauthorized, false
	case code >= 500 && code < 600:
		return KindTransient, false
	default:
		// Other 4xx, redirects the client did not follow, 1xx and
		// out-of-range codes.
		return KindRejected, false
	}
}
