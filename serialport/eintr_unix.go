//go:build unix

package serialport

import (
	"errors"

	"golang.org/x/sys/unix"
)

func isRetryable(err error) bool {
	return errors.Is(err, unix.EINTR)
}
