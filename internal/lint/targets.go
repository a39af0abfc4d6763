package lint

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultIgnore lists the top-level entries skipped unless the caller
// supplies its own ignore list. Entries may be exact names or glob
// patterns understood by filepath.Match.
var DefaultIgnore = []string{
	".git",
	".github",
	".venv",
	"venv",
	"build",
	"dist",
	"__pycache__",
	"*.egg-info",
}

// DefaultPattern is the file name glob used to find source files.
const DefaultPattern = "*.py"

// ResolveTargets returns the directories under opts.Root that should be
// linted, in processing order.
//
// When opts.Targets is empty, every top-level entry of the root is a
// candidate (sorted by name, as os.ReadDir returns them). Otherwise the
// candidates are the whitespace-separated names in opts.Targets, in the
// order given. In both cases a candidate is dropped when it matches the
// ignore list or when it is not a directory (plain files and names that
// do not exist are both skipped).
func ResolveTargets(opts Options) ([]string, error) {
	root := opts.root()

	var candidates []string
	if strings.TrimSpace(opts.Targets) == "" {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", root, err)
		}
		for _, entry := range entries {
			candidates = append(candidates, entry.Name())
		}
	} else {
		// strings.Fields splits on any run of whitespace, which matches how
		// a shell splits an unquoted "$1".
		candidates = strings.Fields(opts.Targets)
	}

	ignore := opts.ignoreList()
	targets := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if isIgnored(name, ignore) {
			continue
		}

		// os.Stat follows symlinks, so a symlink to a directory is a
		// target; FindSources resolves it before walking.
		info, err := os.Stat(filepath.Join(root, name))
		if err != nil || !info.IsDir() {
			continue
		}
		targets = append(targets, name)
	}

	return targets, nil
}

// isIgnored reports whether name matches any ignore entry, either exactly
// or as a glob. Malformed patterns never match.
func isIgnored(name string, ignore []string) bool {
	base := filepath.Base(filepath.Clean(name))
	for _, pattern := range ignore {
		if pattern == base {
			return true
		}
		if ok, err := filepath.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}

// FindSources walks dir recursively and returns every regular file whose
// base name matches pattern, sorted lexically. When dir is a symlink the
// walk covers its destination, but returned paths stay under dir.
func FindSources(dir, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid source pattern %q: %w", pattern, err)
	}

	// WalkDir does not follow a symlinked root.
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	var files []string
	err = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); !ok {
			return nil
		}
		rel, err := filepath.Rel(resolved, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.Join(dir, rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	sort.Strings(files)
	return files, nil
}
