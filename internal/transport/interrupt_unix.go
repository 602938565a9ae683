//go:build unix

package transport

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func interrupt(pid int) error {
	if err := unix.Kill(pid, unix.SIGINT); err != nil {
		return fmt.Errorf("signal %d: %w", pid, err)
	}
	return nil
}
