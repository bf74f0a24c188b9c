// Package status defines the error taxonomy shared by every layer of the
// bus client: the I/O buffer, the wire codec, the secure envelope, the
// name-service codec and the NVRAM store all report outcomes through the
// same small set of Status values so that callers can make the fatal/
// recoverable/informational distinctions the wire protocol requires
// without inspecting each package's own error types.
package status

import "fmt"

// Status is a result code. The zero value is OK.
type Status int

const (
	// OK means the operation completed normally.
	OK Status = iota
	// Timeout means a blocking operation reached its deadline before any
	// header byte was consumed. Informational: the caller may do idle work.
	Timeout
	// Resources means a buffer or NVRAM region does not have enough space
	// for the requested operation.
	Resources
	// Read means the transport stream is desynchronized (e.g. a timeout
	// arrived after header bytes were already consumed). Fatal: the caller
	// must disconnect, back off, and reconnect.
	Read
	// Write means a marshal operation overshot its declared body length.
	Write
	// Marshal means a type-signature mismatch was found while marshalling.
	Marshal
	// Unmarshal means a type-signature mismatch was found while unmarshalling,
	// or a caller-requested type did not match the actual wire type.
	Unmarshal
	// Signature means a container was malformed or closed incorrectly.
	Signature
	// EndOfData means the parse input was truncated.
	EndOfData
	// NoMore means an array (or similar bounded sequence) is exhausted.
	// This is a normal iteration terminator, not a failure, and must never
	// be logged as one.
	NoMore
	// NoMatch means a name-service discovery found nothing before its
	// deadline.
	NoMatch
	// Security means a MAC verification failed, or an encrypted message's
	// endianness did not match the host (a known CCM-authenticator
	// limitation preserved for wire interoperability, not a property of
	// CCM itself).
	Security
	// Invalid means an argument failed a constraint check.
	Invalid
	// Failure is the generic NVRAM failure code.
	Failure
	// Null means a required pointer/reference was absent.
	Null
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case Timeout:
		return "ERR_TIMEOUT"
	case Resources:
		return "ERR_RESOURCES"
	case Read:
		return "ERR_READ"
	case Write:
		return "ERR_WRITE"
	case Marshal:
		return "ERR_MARSHAL"
	case Unmarshal:
		return "ERR_UNMARSHAL"
	case Signature:
		return "ERR_SIGNATURE"
	case EndOfData:
		return "ERR_END_OF_DATA"
	case NoMore:
		return "ERR_NO_MORE"
	case NoMatch:
		return "ERR_NO_MATCH"
	case Security:
		return "ERR_SECURITY"
	case Invalid:
		return "ERR_INVALID"
	case Failure:
		return "ERR_FAILURE"
	case Null:
		return "ERR_NULL"
	default:
		return "ERR_UNKNOWN"
	}
}

// Error implements error so a bare Status can be returned and compared
// with errors.Is against the sentinels below.
func (s Status) Error() string { return s.String() }

// Fatal reports whether a Status on a message is fatal for the current
// bus attachment: the caller must disconnect, back off and reconnect.
func (s Status) Fatal() bool { return s == Read || s == Security }

// Informational reports whether a Status is a normal, non-failure signal
// that must not be logged as an error (ERR_NO_MORE, ERR_TIMEOUT from a
// top-level unmarshal).
func (s Status) Informational() bool { return s == NoMore || s == Timeout }

// WireError wraps a wire codec or message-layer Status with context: a
// signature/container mismatch, a truncated parse, or an alignment
// violation. The codec and message packages themselves return bare
// Status values. Operation names the call that failed; Offset is the byte
// offset into the enclosing buffer where the problem was found, or -1
// if not applicable.
type WireError struct {
	Status    Status
	Operation string
	Offset    int
	Message   string
	Err       error
}

func (e *WireError) Error() string {
	if e.Offset >= 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s at offset %d: %s (%v)", e.Status, e.Operation, e.Offset, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s at offset %d: %s", e.Status, e.Operation, e.Offset, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s (%v)", e.Status, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Status, e.Operation, e.Message)
}

func (e *WireError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, status.Unmarshal) match a *WireError carrying
// that status.
func (e *WireError) Is(target error) bool {
	if s, ok := target.(Status); ok {
		return e.Status == s
	}
	return false
}

// SecurityError wraps a secure-envelope failure with context: MAC
// mismatch or mixed-endianness encryption. The envelope and message
// packages themselves return the bare Security value.
type SecurityError struct {
	Operation string
	Message   string
	Err       error
}

func (e *SecurityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s during %s: %v", Security, e.Message, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s: %s during %s", Security, e.Message, e.Operation)
}

func (e *SecurityError) Unwrap() error { return e.Err }

func (e *SecurityError) Is(target error) bool {
	s, ok := target.(Status)
	return ok && s == Security
}

// ResourceError describes a request that cannot fit in the available
// space. The I/O buffer and NVRAM store themselves return the bare
// Resources value.
type ResourceError struct {
	Operation string
	Needed    int
	Available int
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s: %s needs %d bytes, %d available", Resources, e.Operation, e.Needed, e.Available)
}

func (e *ResourceError) Is(target error) bool {
	s, ok := target.(Status)
	return ok && s == Resources
}
