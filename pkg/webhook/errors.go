package webhook

import "fmt"

type TransportErrorKind int

const (
	ErrTimeout TransportErrorKind = iota
	ErrConnectionFailed
	ErrNonSuccessStatus
)

func (k TransportErrorKind) String() string {
	switch k {
	case ErrTimeout:
		return "timeout"
	case ErrConnectionFailed:
		return "connection failed"
	case ErrNonSuccessStatus:
		return "non-success status"
	default:
		return "unknown"
	}
}

// TransportError reports a failure of the outbound webhook call itself, as
// opposed to a malformed line inside an otherwise healthy stream. It aborts
// the request it belongs to but never the process.
type TransportError struct {
	Kind   TransportErrorKind
	Status int   // HTTP status, set for ErrNonSuccessStatus
	Err    error // underlying cause, may be nil
}

func (e *TransportError) Error() string {
	switch e.Kind {
	case ErrNonSuccessStatus:
		return fmt.Sprintf("webhook request failed with status %d", e.Status)
	case ErrTimeout:
		return "webhook request timed out"
	default:
		if e.Err != nil {
			return fmt.Sprintf("webhook connection failed: %v", e.Err)
		}
		return "webhook connection failed"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }
