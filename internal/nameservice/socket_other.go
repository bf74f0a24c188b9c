//go:build !linux && !darwin

package nameservice

import "syscall"

// platformControl is a no-op on platforms without a SO_REUSEPORT
// equivalent wired up; OpenSocket still works, it just can't share the
// discovery port with another listener.
func platformControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
