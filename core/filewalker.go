package core

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ReportLocator discovers coverage report files beneath a directory.
// Traversal is depth-first and lexical within each directory, so two walks over
// the same tree yield the same order.
type ReportLocator struct{}

// NewReportLocator creates a report locator
func NewReportLocator() *ReportLocator {
	return &ReportLocator{}
}

// Locate returns every regular file under scope.Path that passes the include
// and exclude patterns.
func (rl *ReportLocator) Locate(ctx context.Context, scope ReportScope) ([]string, error) {
	if err := rl.validateScope(scope); err != nil {
		return nil, err
	}

	var files []string
	var visited map[string]struct{}
	if scope.FollowSymlinks {
		visited = make(map[string]struct{})
		if resolved, err := filepath.EvalSymlinks(scope.Path); err == nil {
			visited[resolved] = struct{}{}
		} else {
			visited[scope.Path] = struct{}{}
		}
	}

	if err := rl.scanDirectory(ctx, scope.Path, scope, 0, visited, &files); err != nil {
		return files, err
	}
	return files, nil
}

// scanDirectory recursively appends matching files to out
func (rl *ReportLocator) scanDirectory(
	ctx context.Context,
	dirPath string,
	scope ReportScope,
	depth int,
	visited map[string]struct{},
	out *[]string,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if scope.MaxDepth > 0 && depth > scope.MaxDepth {
		return nil
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if depth == 0 {
			return fmt.Errorf("cannot read report directory %s: %w", dirPath, err)
		}
		return nil // Skip nested directories we can't read
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		fullPath := filepath.Join(dirPath, entry.Name())

		if rl.isExcluded(fullPath, scope.Exclude) {
			continue
		}

		if entry.Type()&os.ModeSymlink != 0 {
			info, err := os.Stat(fullPath)
			if err != nil {
				continue // dangling link
			}
			if info.IsDir() {
				if !scope.FollowSymlinks {
					continue
				}
				resolvedPath, err := filepath.EvalSymlinks(fullPath)
				if err != nil {
					continue
				}
				if _, seen := visited[resolvedPath]; seen {
					continue
				}
				visited[resolvedPath] = struct{}{}
				if err := rl.scanDirectory(ctx, fullPath, scope, depth+1, visited, out); err != nil {
					return err
				}
				continue
			}
			if info.Mode().IsRegular() && rl.isIncluded(fullPath, scope.Include) {
				*out = append(*out, fullPath)
			}
			continue
		}

		if entry.IsDir() {
			if visited != nil {
				realPath := fullPath
				if resolved, err := filepath.EvalSymlinks(fullPath); err == nil && resolved != "" {
					realPath = resolved
				}
				if _, seen := visited[realPath]; seen {
					continue
				}
				visited[realPath] = struct{}{}
			}

			if err := rl.scanDirectory(ctx, fullPath, scope, depth+1, visited, out); err != nil {
				return err
			}
			continue
		}

		if entry.Type().IsRegular() && rl.isIncluded(fullPath, scope.Include) {
			*out = append(*out, fullPath)
		}
	}
	return nil
}

// isIncluded checks if file matches include patterns
func (rl *ReportLocator) isIncluded(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return true // Include all if no patterns specified
	}

	for _, pattern := range patterns {
		if rl.matchPattern(path, pattern) {
			return true
		}
	}
	return false
}

// isExcluded checks if file matches exclude patterns
func (rl *ReportLocator) isExcluded(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if rl.matchPattern(path, pattern) {
			return true
		}
	}
	return false
}

// matchPattern performs glob-style pattern matching with ** support
func (rl *ReportLocator) matchPattern(path, pattern string) bool {
	if matched, err := doublestar.PathMatch(pattern, path); err == nil && matched {
		return true
	}

	// Try basename for simple patterns without path separators
	if !strings.Contains(pattern, "/") {
		basename := filepath.Base(path)
		if matched, err := doublestar.PathMatch(pattern, basename); err == nil && matched {
			return true
		}
	}

	return false
}

// validateScope validates ReportScope parameters
func (rl *ReportLocator) validateScope(scope ReportScope) error {
	if scope.Path == "" {
		return fmt.Errorf("path is required")
	}

	info, err := os.Stat(scope.Path)
	if err != nil {
		return fmt.Errorf("cannot access path %s: %w", scope.Path, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path %s is not a directory: %w", scope.Path, fs.ErrInvalid)
	}

	return nil
}
