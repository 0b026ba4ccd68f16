//go:build !windows

package mirror

import "path/filepath"

// CanonicalPath normalizes a raw OS path to a platform-stable form so that
// repeated observations of the same file compare equal. On Unix a lexical
// clean is sufficient; notification paths are already rooted in the
// canonicalized watch root.
func CanonicalPath(path string) string {
	return filepath.Clean(path)
}
