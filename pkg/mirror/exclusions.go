package mirror

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/syncwatch/syncwatch/pkg/config"
	"github.com/syncwatch/syncwatch/pkg/sharded"
)

// ideDirNames are always excluded in IDE mode; editors churn these
// directories constantly and none of it belongs in the mirror.
var ideDirNames = []string{".git", ".idea"}

// Exclusions answers whether a notified path should be ignored. Plain
// entries are resolved to canonical absolute paths once at construction;
// glob entries are expanded against the live filesystem on demand, with
// every hit memoized into the resolved set so repeated lookups stay O(depth).
// A path is excluded when it or any of its ancestors up to the watch root is
// in the set.
type Exclusions struct {
	logger    *slog.Logger
	sourceDir string
	resolved  *sharded.Set

	mu    sync.Mutex
	globs []string
}

// NewExclusions builds the exclusion set from the validated configuration.
// Relative entries are anchored at the source directory.
func NewExclusions(cfg *config.Config, logger *slog.Logger) *Exclusions {
	e := &Exclusions{
		logger:    logger,
		sourceDir: CanonicalPath(cfg.SourceDir),
		resolved:  sharded.NewSet(),
	}

	for _, raw := range cfg.Excludes {
		p := raw
		if !filepath.IsAbs(p) {
			p = filepath.Join(cfg.SourceDir, p)
		}
		if strings.ContainsAny(p, "*?[") {
			e.globs = append(e.globs, p)
			continue
		}
		e.resolved.Store(CanonicalPath(p))
	}

	if cfg.IDEMode {
		for _, name := range ideDirNames {
			e.resolved.Store(CanonicalPath(filepath.Join(cfg.SourceDir, name)))
		}
	}

	return e
}

// IsExcluded reports whether path or one of its ancestors matches an
// exclusion entry. Glob entries are only re-expanded when the fast ancestor
// walk over the resolved set comes up empty.
func (e *Exclusions) IsExcluded(path string) bool {
	p := CanonicalPath(path)
	if e.hasExcludedAncestor(p) {
		return true
	}
	if !e.expandGlobs() {
		return false
	}
	return e.hasExcludedAncestor(p)
}

// IsTempEditorFile reports whether path looks like an editor backup file.
// Editors write these next to the real file and delete them moments later.
func IsTempEditorFile(path string) bool {
	return strings.HasSuffix(filepath.Base(path), "~")
}

func (e *Exclusions) hasExcludedAncestor(p string) bool {
	for cur := p; ; {
		if e.resolved.Has(cur) {
			return true
		}
		if cur == e.sourceDir {
			return false
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return false
		}
		cur = parent
	}
}

// expandGlobs re-evaluates the glob entries against the filesystem and
// memoizes every match. Returns false when there were no globs to expand.
// Invalid patterns are reported once and dropped.
func (e *Exclusions) expandGlobs() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.globs) == 0 {
		return false
	}

	kept := e.globs[:0]
	for _, pattern := range e.globs {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			e.logger.Warn("invalid exclude pattern, dropping it", "pattern", pattern, "error", err)
			continue
		}
		kept = append(kept, pattern)
		for _, m := range matches {
			e.resolved.Store(CanonicalPath(m))
		}
	}
	e.globs = kept
	return true
}
