package message

import "github.com/alljoyn-go/thinclient/internal/status"

// Standard-named error replies a method call receives when it fails,
// grounded on AJ_MarshalStatusMsg's internal-status-to-error-name
// mapping.
const (
	ErrServiceUnknown    = "org.alljoyn.Bus.ServiceUnknown"
	ErrSecurityViolation = "org.alljoyn.Bus.SecurityViolation"
	ErrRejected          = "org.alljoyn.Bus.Rejected"
	ErrTimeout           = "org.alljoyn.Bus.Timeout"
)

// StatusErrorName maps an internal Status to the standard-named error
// reply a failed method call should receive: NO_MATCH becomes
// ServiceUnknown, SECURITY becomes SecurityViolation, and every other
// kind becomes the generic Rejected.
func StatusErrorName(st status.Status) string {
	switch st {
	case status.NoMatch:
		return ErrServiceUnknown
	case status.Security:
		return ErrSecurityViolation
	default:
		return ErrRejected
	}
}
