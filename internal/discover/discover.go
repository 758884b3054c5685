// Package discover finds C++ header files in a source tree.
package discover

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/scg/internal/lang"
)

// FileEntry represents a discovered header file.
type FileEntry struct {
	Path     string // Absolute, cleaned
	Relative string // Relative to the scanned root
}

// ignoreFiles are read from the root, in order, and merged.
var ignoreFiles = []string{".gitignore", ".scgignore"}

var skipDirs = map[string]struct{}{
	"node_modules": {},
	".git":         {},
	".hg":          {},
	".svn":         {},
	".vs":          {},
	".vscode":      {},
	".idea":        {},
}

// Options narrows a scan.
type Options struct {
	// Extensions lists header extensions to accept, e.g. ".hpp". Empty means
	// lang.HeaderExtensions.
	Extensions []string
	// Exclude lists absolute directories that are never descended into,
	// typically the target's own cache directory.
	Exclude []string
}

// Headers discovers header files under root. Results are sorted by relative
// path so scans of an unchanged tree are stable.
func Headers(root string, opts Options) ([]FileEntry, error) {
	root = CleanPath(root)

	extSet := make(map[string]struct{}, len(opts.Extensions))
	for _, e := range opts.Extensions {
		extSet[strings.ToLower(e)] = struct{}{}
	}
	excluded := make(map[string]struct{}, len(opts.Exclude))
	for _, e := range opts.Exclude {
		excluded[CleanPath(e)] = struct{}{}
	}
	gi := loadIgnore(root)

	var results []FileEntry

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}

		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if _, skip := excluded[CleanPath(path)]; skip {
				return filepath.SkipDir
			}
			if gi != nil {
				if rel, relErr := filepath.Rel(root, path); relErr == nil && gi.MatchesPath(rel+"/") {
					return filepath.SkipDir
				}
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(name))
		if len(extSet) > 0 {
			if _, ok := extSet[ext]; !ok {
				return nil
			}
		} else if !lang.IsHeader(name) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		results = append(results, FileEntry{Path: CleanPath(path), Relative: rel})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Relative < results[j].Relative
	})

	return results, nil
}

// CleanPath returns an absolute, cleaned path with symlinks resolved where
// possible. Paths that do not exist are only made absolute.
func CleanPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

func loadIgnore(root string) *ignore.GitIgnore {
	var lines []string
	for _, name := range ignoreFiles {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		lines = append(lines, strings.Split(string(data), "\n")...)
	}
	if len(lines) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(lines...)
}
