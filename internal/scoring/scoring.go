// Package scoring computes merge-request size metrics from diff data
// and derives the review-effort score and size band.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/eroomeoj94/gitlab-merge-request-support/internal/exclusion"
	"github.com/eroomeoj94/gitlab-merge-request-support/internal/gitlabapi"
)

// SizeBand is a coarse review-effort bucket.
type SizeBand string

const (
	// BandSmall is a small merge request.
	BandSmall SizeBand = "S"
	// BandMedium is a medium merge request.
	BandMedium SizeBand = "M"
	// BandLarge is a large merge request.
	BandLarge SizeBand = "L"
	// BandExtraLarge is an extra-large merge request.
	BandExtraLarge SizeBand = "XL"
)

// Band thresholds are fixed and not configurable.
const (
	mediumThreshold = 80
	largeThreshold  = 141
	xlThreshold     = 221
)

// Metrics are derived per-MR size counts.
type Metrics struct {
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
	LinesChanged int `json:"linesChanged"`
	FilesChanged int `json:"filesChanged"`
	DirsTouched  int `json:"dirsTouched"`
}

// ComputeMetrics derives size metrics from a change list. Excluded
// paths are filtered first, so fully-excluded entries never affect the
// result.
func ComputeMetrics(changes []gitlabapi.Change) Metrics {
	filtered := exclusion.FilterChanges(changes)

	files := make(map[string]struct{})
	dirs := make(map[string]struct{})
	additions := 0
	deletions := 0

	for _, change := range filtered {
		path := change.EffectivePath()
		if path == "" {
			continue
		}

		files[path] = struct{}{}
		dirs[parentDir(path)] = struct{}{}

		if change.Diff == "" {
			continue
		}
		for _, line := range strings.Split(change.Diff, "\n") {
			switch {
			case strings.HasPrefix(line, "+++"):
			case strings.HasPrefix(line, "---"):
			case strings.HasPrefix(line, "+"):
				additions++
			case strings.HasPrefix(line, "-"):
				deletions++
			}
		}
	}

	return Metrics{
		Additions:    additions,
		Deletions:    deletions,
		LinesChanged: additions + deletions,
		FilesChanged: len(files),
		DirsTouched:  len(dirs),
	}
}

// parentDir maps a path to its parent directory, with "/" as the
// sentinel root for files without a directory component.
func parentDir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 1 {
		return "/"
	}
	return path[:idx]
}

// SummaryMetrics builds degraded metrics from an MR's summary
// addition/deletion counts when the per-file change list is
// unavailable. File and directory counts are unknown and report zero.
func SummaryMetrics(additions, deletions int) Metrics {
	return Metrics{
		Additions:    additions,
		Deletions:    deletions,
		LinesChanged: additions + deletions,
	}
}

// ComputeScore derives the size score. The square root dampens pure
// line-count dominance; the log terms reward breadth sub-linearly, with
// directory spread weighted above file count.
func ComputeScore(m Metrics) int {
	raw := math.Sqrt(float64(m.LinesChanged)) +
		2*math.Log1p(float64(m.FilesChanged)) +
		3*math.Log1p(float64(m.DirsTouched))
	return int(math.Round(10 * raw))
}

// SizeBandFor buckets a score into S/M/L/XL.
func SizeBandFor(score int) SizeBand {
	switch {
	case score < mediumThreshold:
		return BandSmall
	case score < largeThreshold:
		return BandMedium
	case score < xlThreshold:
		return BandLarge
	default:
		return BandExtraLarge
	}
}

// DaysOpen is the fractional number of days between creation and merge,
// or 0 if either timestamp is missing.
func DaysOpen(createdAt time.Time, mergedAt *time.Time) float64 {
	if createdAt.IsZero() || mergedAt == nil || mergedAt.IsZero() {
		return 0
	}
	return mergedAt.Sub(createdAt).Hours() / 24
}
