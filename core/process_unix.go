//go:build !windows

package core

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isProcessAlive reports whether the lock holder pid still exists.
// EPERM means the process exists but belongs to another user.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
