package report

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eroomeoj94/gitlab-merge-request-support/internal/gitlabapi"
	"github.com/eroomeoj94/gitlab-merge-request-support/internal/scoring"
	"github.com/eroomeoj94/gitlab-merge-request-support/internal/stats"
)

const (
	defaultMaxMRs      = 500
	defaultConcurrency = 5
)

// Drafts are only recognized by the English prefixes; GitLab itself
// recognizes no others.
var draftPattern = regexp.MustCompile(`(?i)^(draft:|wip:)`)

// UpstreamClient is the slice of the GitLab client the generator needs.
type UpstreamClient interface {
	GroupProjects(ctx context.Context, token string, groupID int) ([]gitlabapi.Project, error)
	ListMergedMergeRequests(ctx context.Context, token string, projectID int, authorUsername string, from, to time.Time) ([]gitlabapi.MergeRequest, error)
	GetMergeRequest(ctx context.Context, token string, projectID, iid int) (gitlabapi.MergeRequest, error)
	GetMergeRequestChanges(ctx context.Context, token string, projectID, iid int) ([]gitlabapi.Change, error)
}

// GeneratorConfig configures report generation limits.
type GeneratorConfig struct {
	// MaxMRs caps how many merge requests are enriched per report.
	MaxMRs int
	// Concurrency bounds in-flight enrichment calls.
	Concurrency int
	// Now is injected for testability.
	Now func() time.Time
}

// Generator produces size reports from upstream merge-request data.
type Generator struct {
	client      UpstreamClient
	logger      *zap.Logger
	maxMRs      int
	concurrency int
	now         func() time.Time
}

// NewGenerator creates a report generator.
func NewGenerator(client UpstreamClient, logger *zap.Logger, cfg GeneratorConfig) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxMRs := cfg.MaxMRs
	if maxMRs <= 0 {
		maxMRs = defaultMaxMRs
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Generator{
		client:      client,
		logger:      logger,
		maxMRs:      maxMRs,
		concurrency: concurrency,
		now:         now,
	}
}

// Generate runs the full report pipeline. List-fetch failures abort the
// whole report; only the per-MR enrichment stage degrades locally.
func (g *Generator) Generate(ctx context.Context, token string, req Request) (*Report, error) {
	if len(req.Authors) == 0 {
		return nil, &ValidationError{Msg: "authors.usernames must be non-empty"}
	}
	if req.From.IsZero() || req.To.IsZero() {
		return nil, &ValidationError{Msg: "dateRange.from and dateRange.to are required"}
	}

	projectIDs, err := g.resolveProjects(ctx, token, req)
	if err != nil {
		return nil, err
	}

	collected, err := g.fetchQualifyingMRs(ctx, token, projectIDs, req)
	if err != nil {
		return nil, err
	}

	unique := dedupeMergeRequests(collected)

	sort.SliceStable(unique, func(i, j int) bool {
		return mergedOrUpdated(unique[i]).After(mergedOrUpdated(unique[j]))
	})
	if len(unique) > g.maxMRs {
		g.logger.Info("truncating report input",
			zap.Int("qualifying", len(unique)),
			zap.Int("cap", g.maxMRs),
		)
		unique = unique[:g.maxMRs]
	}

	scored := g.enrichAll(ctx, token, unique)

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	return &Report{
		GeneratedAt:   g.now().UTC(),
		ProjectIDs:    projectIDs,
		DateRange:     DateRange{From: req.From, To: req.To},
		Authors:       req.Authors,
		Totals:        computeTotals(scored),
		ByAuthor:      summarizeAuthors(scored),
		MergeRequests: scored,
	}, nil
}

// resolveProjects turns the request scope into a concrete project ID
// list. Explicit project IDs pass through; a group scope fans out to
// the group's project listing.
func (g *Generator) resolveProjects(ctx context.Context, token string, req Request) ([]int, error) {
	if len(req.ProjectIDs) > 0 {
		return req.ProjectIDs, nil
	}
	if req.Scope == nil {
		return nil, &ValidationError{Msg: "projectIds or scope is required"}
	}

	if req.Scope.Type == "group" {
		projects, err := g.client.GroupProjects(ctx, token, req.Scope.ID)
		if err != nil {
			return nil, fmt.Errorf("list group %d projects: %w", req.Scope.ID, err)
		}
		ids := make([]int, 0, len(projects))
		for _, project := range projects {
			ids = append(ids, project.ID)
		}
		return ids, nil
	}
	return []int{req.Scope.ID}, nil
}

// fetchQualifyingMRs fetches merged MRs for every (project, author)
// pair sequentially, applying the strict merged_at window and the draft
// filter. The server-side updated_at window is looser and is never
// trusted as the final gate.
func (g *Generator) fetchQualifyingMRs(ctx context.Context, token string, projectIDs []int, req Request) ([]gitlabapi.MergeRequest, error) {
	var collected []gitlabapi.MergeRequest

	for _, projectID := range projectIDs {
		for _, username := range req.Authors {
			mrs, err := g.client.ListMergedMergeRequests(ctx, token, projectID, username, req.From, req.To)
			if err != nil {
				return nil, fmt.Errorf("list merged mrs for project %d author %q: %w", projectID, username, err)
			}

			for _, mr := range mrs {
				if mr.MergedAt == nil {
					continue
				}
				if mr.MergedAt.Before(req.From) || mr.MergedAt.After(req.To) {
					continue
				}
				if req.ExcludeDrafts && IsDraftTitle(mr.Title) {
					continue
				}
				collected = append(collected, mr)
			}
		}
	}
	return collected, nil
}

// IsDraftTitle reports whether a title carries a recognized draft
// prefix, ignoring surrounding whitespace and case.
func IsDraftTitle(title string) bool {
	return draftPattern.MatchString(strings.TrimSpace(title))
}

// dedupeMergeRequests removes duplicates by (projectID, iid), first
// occurrence wins. The same MR can be fetched once per queried author
// or project when scopes overlap.
func dedupeMergeRequests(mrs []gitlabapi.MergeRequest) []gitlabapi.MergeRequest {
	seen := make(map[string]struct{}, len(mrs))
	unique := make([]gitlabapi.MergeRequest, 0, len(mrs))

	for _, mr := range mrs {
		key := fmt.Sprintf("%d:%d", mr.ProjectID, mr.IID)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, mr)
	}
	return unique
}

func mergedOrUpdated(mr gitlabapi.MergeRequest) time.Time {
	if mr.MergedAt != nil {
		return *mr.MergedAt
	}
	return mr.UpdatedAt
}

// enrichAll scores every MR through a bounded worker pool. Completion
// order is unspecified; callers impose output order with a final sort.
func (g *Generator) enrichAll(ctx context.Context, token string, mrs []gitlabapi.MergeRequest) []ScoredMergeRequest {
	if len(mrs) == 0 {
		return nil
	}

	jobs := make(chan gitlabapi.MergeRequest, len(mrs))
	outcomes := make(chan ScoredMergeRequest, len(mrs))

	var wg sync.WaitGroup
	for i := 0; i < g.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for mr := range jobs {
				outcomes <- g.enrich(ctx, token, mr)
			}
		}()
	}

	for _, mr := range mrs {
		jobs <- mr
	}
	close(jobs)

	wg.Wait()
	close(outcomes)

	scored := make([]ScoredMergeRequest, 0, len(mrs))
	for outcome := range outcomes {
		scored = append(scored, outcome)
	}
	return scored
}

// enrich computes metrics for one MR with the fallback chain: per-file
// changes, then the detail summary counts, then all zeros. A single
// inaccessible MR never aborts the report.
func (g *Generator) enrich(ctx context.Context, token string, mr gitlabapi.MergeRequest) ScoredMergeRequest {
	var metrics scoring.Metrics

	changes, err := g.client.GetMergeRequestChanges(ctx, token, mr.ProjectID, mr.IID)
	if err == nil {
		metrics = scoring.ComputeMetrics(changes)
	} else {
		g.logger.Warn("mr changes fetch failed, falling back to summary",
			zap.Int("project_id", mr.ProjectID),
			zap.Int("iid", mr.IID),
			zap.Error(err),
		)
		detail, detailErr := g.client.GetMergeRequest(ctx, token, mr.ProjectID, mr.IID)
		switch {
		case detailErr == nil && detail.Additions != nil && detail.Deletions != nil:
			metrics = scoring.SummaryMetrics(*detail.Additions, *detail.Deletions)
		case detailErr != nil:
			g.logger.Warn("mr detail fetch failed, using zero metrics",
				zap.Int("project_id", mr.ProjectID),
				zap.Int("iid", mr.IID),
				zap.Error(detailErr),
			)
		}
	}

	score := scoring.ComputeScore(metrics)

	return ScoredMergeRequest{
		ProjectID: mr.ProjectID,
		IID:       mr.IID,
		Title:     mr.Title,
		WebURL:    mr.WebURL,
		Author: AuthorRef{
			Username: mr.Author.Username,
			Name:     mr.Author.Name,
		},
		MergedAt: mergedOrUpdated(mr),
		DaysOpen: scoring.DaysOpen(mr.CreatedAt, mr.MergedAt),
		Metrics:  metrics,
		Score:    score,
		SizeBand: scoring.SizeBandFor(score),
	}
}

func computeTotals(scored []ScoredMergeRequest) Totals {
	scores := make([]float64, 0, len(scored))
	daysOpen := make([]float64, 0, len(scored))
	totalLines := 0
	for _, mr := range scored {
		scores = append(scores, float64(mr.Score))
		daysOpen = append(daysOpen, mr.DaysOpen)
		totalLines += mr.Metrics.LinesChanged
	}

	return Totals{
		MergedMRCount:     len(scored),
		TotalLinesChanged: totalLines,
		AvgScore:          stats.Average(scores),
		MedianScore:       stats.Median(scores),
		AvgDaysOpen:       stats.Average(daysOpen),
	}
}

// summarizeAuthors rolls scored MRs into per-author summaries, sorted
// by MR count descending. Every MR lands in exactly one bucket, so the
// bucket counts sum to the report total.
func summarizeAuthors(scored []ScoredMergeRequest) []AuthorSummary {
	grouped, usernames := stats.GroupBy(scored, func(mr ScoredMergeRequest) string {
		return mr.Author.Username
	})

	summaries := make([]AuthorSummary, 0, len(usernames))
	for _, username := range usernames {
		bucket := grouped[username]

		scores := make([]float64, 0, len(bucket))
		daysOpen := make([]float64, 0, len(bucket))
		totalLines := 0
		var largest *LargestMR
		for _, mr := range bucket {
			scores = append(scores, float64(mr.Score))
			daysOpen = append(daysOpen, mr.DaysOpen)
			totalLines += mr.Metrics.LinesChanged
			// Strict comparison keeps the first MR on score ties.
			if largest == nil || mr.Score > largest.Score {
				largest = &LargestMR{Title: mr.Title, WebURL: mr.WebURL, Score: mr.Score}
			}
		}

		summaries = append(summaries, AuthorSummary{
			Username:          username,
			Name:              bucket[0].Author.Name,
			MergedMRCount:     len(bucket),
			TotalLinesChanged: totalLines,
			AvgScore:          stats.Average(scores),
			MedianScore:       stats.Median(scores),
			AvgDaysOpen:       stats.Average(daysOpen),
			LargestMR:         largest,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].MergedMRCount > summaries[j].MergedMRCount
	})
	return summaries
}
