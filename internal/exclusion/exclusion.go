// Package exclusion filters generated, vendored, and lockfile paths out
// of merge-request change lists so size metrics reflect authored code.
package exclusion

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/eroomeoj94/gitlab-merge-request-support/internal/gitlabapi"
)

// patterns is the fixed, ordered exclusion list. Lockfiles match by
// exact name at the repository root only.
var patterns = []string{
	// Lockfiles
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	// Snapshots
	"**/*.snap",
	// Build outputs
	"dist/**",
	"build/**",
	".next/**",
	// Vendor
	"vendor/**",
	// Minified files
	"**/*.min.*",
	// Generated files
	"**/*generated*",
	"**/*.gen.*",
}

// IsExcluded reports whether a file path matches any exclusion pattern.
func IsExcluded(path string) bool {
	for _, pattern := range patterns {
		if matched, _ := doublestar.Match(pattern, path); matched {
			return true
		}
	}
	return false
}

// FilterChanges drops changes whose effective path is empty or excluded.
func FilterChanges(changes []gitlabapi.Change) []gitlabapi.Change {
	filtered := make([]gitlabapi.Change, 0, len(changes))
	for _, change := range changes {
		path := change.EffectivePath()
		if path == "" || IsExcluded(path) {
			continue
		}
		filtered = append(filtered, change)
	}
	return filtered
}
