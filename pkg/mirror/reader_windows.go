//go:build windows

package mirror

import (
	"errors"

	"golang.org/x/sys/windows"
)

// isTransientLockErr reports whether err is a sharing or lock violation,
// raised when another process holds the file open exclusively. Editors and
// indexers release these within milliseconds, so a short retry usually wins.
func isTransientLockErr(err error) bool {
	return errors.Is(err, windows.ERROR_SHARING_VIOLATION) ||
		errors.Is(err, windows.ERROR_LOCK_VIOLATION)
}
