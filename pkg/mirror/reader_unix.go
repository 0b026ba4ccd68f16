//go:build !windows

package mirror

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isTransientLockErr reports whether err indicates the file is temporarily
// held by another process. Unix has no mandatory sharing violations; the
// closest equivalents are busy/unavailable errnos.
func isTransientLockErr(err error) bool {
	return errors.Is(err, unix.EBUSY) ||
		errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.ETXTBSY)
}
