package exclusion

import (
	"testing"

	"github.com/eroomeoj94/gitlab-merge-request-support/internal/gitlabapi"
)

func TestIsExcluded(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		path string
		want bool
	}{
		{name: "lockfile_exact", path: "package-lock.json", want: true},
		{name: "lockfile_nested_not_excluded", path: "sub/package-lock.json", want: false},
		{name: "yarn_lock", path: "yarn.lock", want: true},
		{name: "pnpm_lock", path: "pnpm-lock.yaml", want: true},
		{name: "snapshot_root", path: "a.snap", want: true},
		{name: "snapshot_nested", path: "src/__tests__/a.snap", want: true},
		{name: "dist_output", path: "dist/bundle.js", want: true},
		{name: "dist_deep", path: "dist/assets/app.js", want: true},
		{name: "build_output", path: "build/main.o", want: true},
		{name: "next_output", path: ".next/server/page.js", want: true},
		{name: "vendored", path: "vendor/lib/util.go", want: true},
		{name: "minified", path: "static/app.min.js", want: true},
		{name: "generated_name", path: "api_generated.go", want: true},
		{name: "gen_suffix", path: "proto/service.gen.go", want: true},
		{name: "plain_source", path: "internal/report/report.go", want: false},
		{name: "root_source", path: "main.go", want: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := IsExcluded(tc.path); got != tc.want {
				t.Fatalf("IsExcluded(%q) = %v, want %v", tc.path, got, tc.want)
			}
		})
	}
}

func TestFilterChanges(t *testing.T) {
	t.Parallel()

	changes := []gitlabapi.Change{
		{NewPath: "internal/app/http.go"},
		{NewPath: "package-lock.json"},
		{OldPath: "docs/readme.md"},
		{},
		{NewPath: "dist/bundle.js"},
	}

	filtered := FilterChanges(changes)
	if len(filtered) != 2 {
		t.Fatalf("len(filtered) = %d, want 2", len(filtered))
	}
	if filtered[0].EffectivePath() != "internal/app/http.go" {
		t.Fatalf("filtered[0] = %q", filtered[0].EffectivePath())
	}
	if filtered[1].EffectivePath() != "docs/readme.md" {
		t.Fatalf("filtered[1] = %q", filtered[1].EffectivePath())
	}
}

func TestFilterChangesUsesNewPathOverOldPath(t *testing.T) {
	t.Parallel()

	// A rename out of dist/ counts; a rename into dist/ is excluded.
	changes := []gitlabapi.Change{
		{OldPath: "dist/old.js", NewPath: "src/new.js", RenamedFile: true},
		{OldPath: "src/old.js", NewPath: "dist/new.js", RenamedFile: true},
	}

	filtered := FilterChanges(changes)
	if len(filtered) != 1 {
		t.Fatalf("len(filtered) = %d, want 1", len(filtered))
	}
	if filtered[0].NewPath != "src/new.js" {
		t.Fatalf("filtered[0].NewPath = %q", filtered[0].NewPath)
	}
}
