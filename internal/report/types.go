// Package report implements the merge-request size report pipeline:
// scope resolution, fetch, dedupe, filtering, bounded-concurrency
// metric enrichment, and per-author aggregation.
package report

import (
	"time"

	"github.com/eroomeoj94/gitlab-merge-request-support/internal/scoring"
)

// Scope selects the project set for a report: a single project or a
// group expanded to all of its projects.
type Scope struct {
	Type string `json:"type"`
	ID   int    `json:"id"`
}

// Request is a parsed, validated report request. Either ProjectIDs or
// Scope selects the projects; explicit ProjectIDs win when both are
// present.
type Request struct {
	ProjectIDs    []int
	Scope         *Scope
	From          time.Time
	To            time.Time
	Authors       []string
	ExcludeDrafts bool
}

// DateRange echoes the requested window in the response.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// AuthorRef identifies an MR author in report output.
type AuthorRef struct {
	Username string `json:"username"`
	Name     string `json:"name"`
}

// ScoredMergeRequest is one merge request enriched with size metrics.
type ScoredMergeRequest struct {
	ProjectID int             `json:"projectId"`
	IID       int             `json:"iid"`
	Title     string          `json:"title"`
	WebURL    string          `json:"webUrl"`
	Author    AuthorRef       `json:"author"`
	MergedAt  time.Time       `json:"mergedAt"`
	DaysOpen  float64         `json:"daysOpen"`
	Metrics   scoring.Metrics `json:"metrics"`
	Score     int             `json:"score"`
	SizeBand  scoring.SizeBand `json:"sizeBand"`
}

// LargestMR points at an author's highest-scoring merge request.
type LargestMR struct {
	Title  string `json:"title"`
	WebURL string `json:"webUrl"`
	Score  int    `json:"score"`
}

// Totals aggregates the whole report.
type Totals struct {
	MergedMRCount     int     `json:"mergedMrCount"`
	TotalLinesChanged int     `json:"totalLinesChanged"`
	AvgScore          float64 `json:"avgScore"`
	MedianScore       float64 `json:"medianScore"`
	AvgDaysOpen       float64 `json:"avgDaysOpen"`
}

// AuthorSummary aggregates one author's merge requests.
type AuthorSummary struct {
	Username          string     `json:"username"`
	Name              string     `json:"name"`
	MergedMRCount     int        `json:"mergedMrCount"`
	TotalLinesChanged int        `json:"totalLinesChanged"`
	AvgScore          float64    `json:"avgScore"`
	MedianScore       float64    `json:"medianScore"`
	AvgDaysOpen       float64    `json:"avgDaysOpen"`
	LargestMR         *LargestMR `json:"largestMr"`
}

// Report is the aggregate result for one request. It is built once and
// never mutated or persisted.
type Report struct {
	GeneratedAt   time.Time            `json:"generatedAt"`
	ProjectIDs    []int                `json:"projectIds"`
	DateRange     DateRange            `json:"dateRange"`
	Authors       []string             `json:"authors"`
	Totals        Totals               `json:"totals"`
	ByAuthor      []AuthorSummary      `json:"byAuthor"`
	MergeRequests []ScoredMergeRequest `json:"mergeRequests"`
}

// ValidationError marks a malformed report request; it never reaches
// the upstream API and maps to HTTP 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}
