//go:build windows

package mirror

import (
	"path/filepath"
	"strings"
)

// CanonicalPath normalizes a raw OS path to the extended-length ("verbatim")
// form so that long paths, case, and drive-letter representations compare
// equal across notifications taken at different times.
func CanonicalPath(path string) string {
	p := filepath.Clean(path)
	if strings.HasPrefix(p, `\\?\`) {
		return p
	}
	// UNC share: \\server\share -> \\?\UNC\server\share
	if strings.HasPrefix(p, `\\`) {
		return `\\?\UNC` + p[1:]
	}
	// Drive-letter absolute path: C:\... -> \\?\C:\...
	if len(p) >= 2 && p[1] == ':' {
		return `\\?\` + strings.ToUpper(p[:1]) + p[1:]
	}
	return p
}
