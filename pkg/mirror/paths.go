package mirror

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot reports a notification path that cannot be stripped of the
// watched source root. Every notification originates under the watched root,
// so this is an invariant violation (a misconfigured watch), not a
// recoverable per-path error. The dispatcher treats it as fatal.
var ErrOutsideRoot = errors.New("notification path is outside the watched source directory")

// Resolver maps source-tree paths to their target-tree counterparts. It is
// pure and stateless; both roots are canonical absolute paths.
type Resolver struct {
	sourceDir string
	targetDir string
}

// NewResolver creates a Resolver over canonical source and target roots.
func NewResolver(sourceDir, targetDir string) *Resolver {
	return &Resolver{
		sourceDir: CanonicalPath(sourceDir),
		targetDir: CanonicalPath(targetDir),
	}
}

// SourceDir returns the canonical source root.
func (r *Resolver) SourceDir() string { return r.sourceDir }

// TargetDir returns the canonical target root.
func (r *Resolver) TargetDir() string { return r.targetDir }

// Rel strips the source root from an absolute notification path, producing
// the human-readable relative path used for logging and destination mapping.
func (r *Resolver) Rel(absSrcPath string) (string, error) {
	p := CanonicalPath(absSrcPath)
	rel, err := filepath.Rel(r.sourceDir, p)
	if err != nil {
		return "", fmt.Errorf("%w: '%s' relative to '%s': %v", ErrOutsideRoot, absSrcPath, r.sourceDir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: '%s' relative to '%s'", ErrOutsideRoot, absSrcPath, r.sourceDir)
	}
	return rel, nil
}

// DestPath maps an absolute source path to its destination path and the
// destination's parent directory (for pre-creation).
func (r *Resolver) DestPath(absSrcPath string) (destPath, destParent string, err error) {
	rel, err := r.Rel(absSrcPath)
	if err != nil {
		return "", "", err
	}
	destPath = filepath.Join(r.targetDir, rel)
	return destPath, filepath.Dir(destPath), nil
}
