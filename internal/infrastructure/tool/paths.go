package tool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath resolves a tool-supplied path against the project root and
// verifies confinement: after cleaning `..` segments and resolving
// symlinks, the result must equal the root or be a proper descendant of
// it. A mere string-prefix check on the raw argument is not enough; the
// comparison happens on canonical paths.
func ResolvePath(root, p string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve project root: %w", err)
	}
	rootReal, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return "", fmt.Errorf("resolve project root: %w", err)
	}

	if p == "" {
		p = "."
	}
	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(rootAbs, target)
	}
	target = filepath.Clean(target)

	real, err := resolveExisting(target)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", p, err)
	}

	if real != rootReal && !strings.HasPrefix(real, rootReal+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the project root", p)
	}
	return real, nil
}

// resolveExisting canonicalizes path by symlink-resolving its longest
// existing ancestor and re-appending the non-existing remainder. This
// keeps confinement sound for paths that are about to be created.
func resolveExisting(path string) (string, error) {
	remainder := ""
	cur := path
	for {
		real, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Clean(filepath.Join(real, remainder)), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			// Hit the filesystem root without finding anything.
			return path, nil
		}
		remainder = filepath.Join(filepath.Base(cur), remainder)
		cur = parent
	}
}
