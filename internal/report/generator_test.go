package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/eroomeoj94/gitlab-merge-request-support/internal/gitlabapi"
	"github.com/eroomeoj94/gitlab-merge-request-support/internal/scoring"
)

type fakeUpstream struct {
	groupProjects map[int][]gitlabapi.Project
	groupErr      error

	// merged is keyed by "projectID:author".
	merged  map[string][]gitlabapi.MergeRequest
	listErr error

	// changes and details are keyed by "projectID:iid".
	changes    map[string][]gitlabapi.Change
	changesErr map[string]error
	details    map[string]gitlabapi.MergeRequest
	detailErr  map[string]error

	changesDelay time.Duration
	inFlight     atomic.Int64
	maxInFlight  atomic.Int64
}

func (f *fakeUpstream) GroupProjects(_ context.Context, _ string, groupID int) ([]gitlabapi.Project, error) {
	if f.groupErr != nil {
		return nil, f.groupErr
	}
	return f.groupProjects[groupID], nil
}

func (f *fakeUpstream) ListMergedMergeRequests(_ context.Context, _ string, projectID int, author string, _, _ time.Time) ([]gitlabapi.MergeRequest, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.merged[fmt.Sprintf("%d:%s", projectID, author)], nil
}

func (f *fakeUpstream) GetMergeRequest(_ context.Context, _ string, projectID, iid int) (gitlabapi.MergeRequest, error) {
	key := fmt.Sprintf("%d:%d", projectID, iid)
	if err := f.detailErr[key]; err != nil {
		return gitlabapi.MergeRequest{}, err
	}
	return f.details[key], nil
}

func (f *fakeUpstream) GetMergeRequestChanges(_ context.Context, _ string, projectID, iid int) ([]gitlabapi.Change, error) {
	current := f.inFlight.Add(1)
	for {
		observed := f.maxInFlight.Load()
		if current <= observed || f.maxInFlight.CompareAndSwap(observed, current) {
			break
		}
	}
	if f.changesDelay > 0 {
		time.Sleep(f.changesDelay)
	}
	f.inFlight.Add(-1)

	key := fmt.Sprintf("%d:%d", projectID, iid)
	if err := f.changesErr[key]; err != nil {
		return nil, err
	}
	return f.changes[key], nil
}

func mkMergedMR(projectID, iid int, author, title string, mergedAt time.Time) gitlabapi.MergeRequest {
	created := mergedAt.Add(-48 * time.Hour)
	return gitlabapi.MergeRequest{
		ID:        projectID*1000 + iid,
		IID:       iid,
		ProjectID: projectID,
		Title:     title,
		WebURL:    fmt.Sprintf("https://gitlab.example.com/g/p%d/-/merge_requests/%d", projectID, iid),
		Author:    gitlabapi.Author{Username: author, Name: strings.ToUpper(author[:1]) + author[1:]},
		State:     "merged",
		CreatedAt: created,
		UpdatedAt: mergedAt,
		MergedAt:  &mergedAt,
	}
}

func testRequest(projectIDs []int, authors ...string) Request {
	return Request{
		ProjectIDs:    projectIDs,
		From:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		To:            time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC),
		Authors:       authors,
		ExcludeDrafts: true,
	}
}

func TestGenerateValidation(t *testing.T) {
	t.Parallel()

	gen := NewGenerator(&fakeUpstream{}, zap.NewNop(), GeneratorConfig{})

	testCases := []struct {
		name string
		req  Request
	}{
		{name: "missing_authors", req: Request{ProjectIDs: []int{1}, From: time.Now(), To: time.Now()}},
		{name: "missing_date_range", req: Request{ProjectIDs: []int{1}, Authors: []string{"alice"}}},
		{name: "missing_scope", req: Request{From: time.Now(), To: time.Now(), Authors: []string{"alice"}}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := gen.Generate(context.Background(), "token", tc.req)
			if err == nil {
				t.Fatalf("Generate() expected validation error, got nil")
			}
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("Generate() error = %T, want *ValidationError", err)
			}
		})
	}
}

func TestGenerateEndToEnd(t *testing.T) {
	t.Parallel()

	mergedAt := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	mr := mkMergedMR(7, 3, "alice", "Add thing", mergedAt)

	fake := &fakeUpstream{
		merged: map[string][]gitlabapi.MergeRequest{
			"7:alice": {mr},
		},
		changes: map[string][]gitlabapi.Change{
			"7:3": {
				{NewPath: "x", Diff: "+++ b/x\n+line1\n+line2\n"},
				{OldPath: "y", Diff: "--- a/y\n-old1\n"},
			},
		},
	}

	fixedNow := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	gen := NewGenerator(fake, zap.NewNop(), GeneratorConfig{Now: func() time.Time { return fixedNow }})

	got, err := gen.Generate(context.Background(), "token", testRequest([]int{7}, "alice"))
	if err != nil {
		t.Fatalf("Generate() unexpected error: %v", err)
	}

	if !got.GeneratedAt.Equal(fixedNow) {
		t.Fatalf("GeneratedAt = %v, want %v", got.GeneratedAt, fixedNow)
	}
	if len(got.MergeRequests) != 1 {
		t.Fatalf("len(MergeRequests) = %d, want 1", len(got.MergeRequests))
	}

	scored := got.MergeRequests[0]
	if scored.Metrics.Additions != 2 || scored.Metrics.Deletions != 1 {
		t.Fatalf("metrics = %+v, want 2 additions 1 deletion", scored.Metrics)
	}
	if scored.Metrics.LinesChanged != 3 || scored.Metrics.FilesChanged != 2 || scored.Metrics.DirsTouched != 1 {
		t.Fatalf("metrics = %+v, want lines 3 files 2 dirs 1", scored.Metrics)
	}

	wantScore := int(math.Round(10 * (math.Sqrt(3) + 2*math.Log(3) + 3*math.Log(2))))
	if scored.Score != wantScore {
		t.Fatalf("Score = %d, want %d", scored.Score, wantScore)
	}
	if scored.SizeBand != "S" {
		t.Fatalf("SizeBand = %q, want S", scored.SizeBand)
	}
	if scored.DaysOpen != 2 {
		t.Fatalf("DaysOpen = %v, want 2", scored.DaysOpen)
	}

	if got.Totals.MergedMRCount != 1 || got.Totals.TotalLinesChanged != 3 {
		t.Fatalf("Totals = %+v", got.Totals)
	}
	if len(got.ByAuthor) != 1 || got.ByAuthor[0].Username != "alice" {
		t.Fatalf("ByAuthor = %+v", got.ByAuthor)
	}
	if got.ByAuthor[0].LargestMR == nil || got.ByAuthor[0].LargestMR.Score != wantScore {
		t.Fatalf("LargestMR = %+v", got.ByAuthor[0].LargestMR)
	}
}

func TestGenerateDedupesOverlappingFetches(t *testing.T) {
	t.Parallel()

	mergedAt := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	shared := mkMergedMR(7, 3, "alice", "Shared", mergedAt)
	// The same (projectId, iid) comes back for both queried authors.
	fake := &fakeUpstream{
		merged: map[string][]gitlabapi.MergeRequest{
			"7:alice": {shared},
			"7:bob":   {shared},
		},
	}
	gen := NewGenerator(fake, zap.NewNop(), GeneratorConfig{})

	got, err := gen.Generate(context.Background(), "token", testRequest([]int{7}, "alice", "bob"))
	if err != nil {
		t.Fatalf("Generate() unexpected error: %v", err)
	}
	if got.Totals.MergedMRCount != 1 {
		t.Fatalf("MergedMRCount = %d, want 1", got.Totals.MergedMRCount)
	}
	if len(got.MergeRequests) != 1 {
		t.Fatalf("len(MergeRequests) = %d, want 1", len(got.MergeRequests))
	}
}

func TestGenerateDraftFiltering(t *testing.T) {
	t.Parallel()

	mergedAt := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	fake := &fakeUpstream{
		merged: map[string][]gitlabapi.MergeRequest{
			"7:alice": {
				mkMergedMR(7, 1, "alice", "Draft: fix bug", mergedAt),
				mkMergedMR(7, 2, "alice", "  wip: foo  ", mergedAt),
				mkMergedMR(7, 3, "alice", "Real change", mergedAt),
			},
		},
	}
	gen := NewGenerator(fake, zap.NewNop(), GeneratorConfig{})

	req := testRequest([]int{7}, "alice")
	got, err := gen.Generate(context.Background(), "token", req)
	if err != nil {
		t.Fatalf("Generate() unexpected error: %v", err)
	}
	if got.Totals.MergedMRCount != 1 {
		t.Fatalf("with excludeDrafts: MergedMRCount = %d, want 1", got.Totals.MergedMRCount)
	}
	if got.MergeRequests[0].Title != "Real change" {
		t.Fatalf("kept = %q, want Real change", got.MergeRequests[0].Title)
	}

	req.ExcludeDrafts = false
	got, err = gen.Generate(context.Background(), "token", req)
	if err != nil {
		t.Fatalf("Generate() unexpected error: %v", err)
	}
	if got.Totals.MergedMRCount != 3 {
		t.Fatalf("without excludeDrafts: MergedMRCount = %d, want 3", got.Totals.MergedMRCount)
	}
}

func TestIsDraftTitle(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		title string
		want  bool
	}{
		{title: "Draft: fix bug", want: true},
		{title: "draft: fix bug", want: true},
		{title: "WIP: thing", want: true},
		{title: "  wip: thing", want: true},
		{title: "Undrafted change", want: false},
		{title: "Fix draft: handling", want: false},
	}

	for _, tc := range testCases {
		tc := tc
		if got := IsDraftTitle(tc.title); got != tc.want {
			t.Fatalf("IsDraftTitle(%q) = %v, want %v", tc.title, got, tc.want)
		}
	}
}

func TestGenerateDateWindowGate(t *testing.T) {
	t.Parallel()

	req := testRequest([]int{7}, "alice")
	// One millisecond before the window opens: returned by the upstream
	// updated_at query but rejected by the strict merged_at gate.
	before := req.From.Add(-time.Millisecond)
	inside := req.From.Add(time.Hour)
	after := req.To.Add(time.Millisecond)

	fake := &fakeUpstream{
		merged: map[string][]gitlabapi.MergeRequest{
			"7:alice": {
				mkMergedMR(7, 1, "alice", "Too early", before),
				mkMergedMR(7, 2, "alice", "In window", inside),
				mkMergedMR(7, 3, "alice", "Too late", after),
				{IID: 4, ProjectID: 7, Title: "Never merged", Author: gitlabapi.Author{Username: "alice"}, UpdatedAt: inside},
			},
		},
	}
	gen := NewGenerator(fake, zap.NewNop(), GeneratorConfig{})

	got, err := gen.Generate(context.Background(), "token", req)
	if err != nil {
		t.Fatalf("Generate() unexpected error: %v", err)
	}
	if got.Totals.MergedMRCount != 1 {
		t.Fatalf("MergedMRCount = %d, want 1", got.Totals.MergedMRCount)
	}
	if got.MergeRequests[0].Title != "In window" {
		t.Fatalf("kept = %q, want In window", got.MergeRequests[0].Title)
	}
}

func TestGenerateTruncatesToMostRecentlyMerged(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mrs []gitlabapi.MergeRequest
	for i := 0; i < 12; i++ {
		mrs = append(mrs, mkMergedMR(7, i+1, "alice", fmt.Sprintf("MR %d", i+1), base.Add(time.Duration(i)*time.Hour)))
	}
	fake := &fakeUpstream{
		merged: map[string][]gitlabapi.MergeRequest{"7:alice": mrs},
	}
	gen := NewGenerator(fake, zap.NewNop(), GeneratorConfig{MaxMRs: 10})

	got, err := gen.Generate(context.Background(), "token", testRequest([]int{7}, "alice"))
	if err != nil {
		t.Fatalf("Generate() unexpected error: %v", err)
	}
	if got.Totals.MergedMRCount != 10 {
		t.Fatalf("MergedMRCount = %d, want 10", got.Totals.MergedMRCount)
	}

	// The two oldest MRs (iid 1 and 2) are the ones dropped.
	for _, mr := range got.MergeRequests {
		if mr.IID == 1 || mr.IID == 2 {
			t.Fatalf("oldest MR iid %d survived truncation", mr.IID)
		}
	}
}

func TestGenerateBoundedConcurrency(t *testing.T) {
	t.Parallel()

	mergedAt := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	var mrs []gitlabapi.MergeRequest
	for i := 0; i < 12; i++ {
		mrs = append(mrs, mkMergedMR(7, i+1, "alice", fmt.Sprintf("MR %d", i+1), mergedAt))
	}
	fake := &fakeUpstream{
		merged:       map[string][]gitlabapi.MergeRequest{"7:alice": mrs},
		changesDelay: 2 * time.Millisecond,
	}
	gen := NewGenerator(fake, zap.NewNop(), GeneratorConfig{Concurrency: 5})

	got, err := gen.Generate(context.Background(), "token", testRequest([]int{7}, "alice"))
	if err != nil {
		t.Fatalf("Generate() unexpected error: %v", err)
	}
	if got.Totals.MergedMRCount != 12 {
		t.Fatalf("MergedMRCount = %d, want 12", got.Totals.MergedMRCount)
	}
	if peak := fake.maxInFlight.Load(); peak > 5 {
		t.Fatalf("max in-flight enrichment calls = %d, want <= 5", peak)
	}
}

func TestGenerateEnrichmentFallbackChain(t *testing.T) {
	t.Parallel()

	mergedAt := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	additions, deletions := 10, 4
	detail := mkMergedMR(7, 1, "alice", "Summary fallback", mergedAt)
	detail.Additions = &additions
	detail.Deletions = &deletions

	fake := &fakeUpstream{
		merged: map[string][]gitlabapi.MergeRequest{
			"7:alice": {
				mkMergedMR(7, 1, "alice", "Summary fallback", mergedAt),
				mkMergedMR(7, 2, "alice", "Zero fallback", mergedAt),
			},
		},
		changesErr: map[string]error{
			"7:1": fmt.Errorf("changes unavailable"),
			"7:2": fmt.Errorf("changes unavailable"),
		},
		details: map[string]gitlabapi.MergeRequest{
			"7:1": detail,
		},
		detailErr: map[string]error{
			"7:2": fmt.Errorf("detail unavailable"),
		},
	}
	gen := NewGenerator(fake, zap.NewNop(), GeneratorConfig{})

	got, err := gen.Generate(context.Background(), "token", testRequest([]int{7}, "alice"))
	if err != nil {
		t.Fatalf("Generate() unexpected error: %v", err)
	}
	if len(got.MergeRequests) != 2 {
		t.Fatalf("len(MergeRequests) = %d, want 2", len(got.MergeRequests))
	}

	byIID := map[int]ScoredMergeRequest{}
	for _, mr := range got.MergeRequests {
		byIID[mr.IID] = mr
	}

	summary := byIID[1]
	if summary.Metrics.Additions != 10 || summary.Metrics.Deletions != 4 || summary.Metrics.LinesChanged != 14 {
		t.Fatalf("summary fallback metrics = %+v", summary.Metrics)
	}
	if summary.Metrics.FilesChanged != 0 || summary.Metrics.DirsTouched != 0 {
		t.Fatalf("summary fallback should report zero files/dirs: %+v", summary.Metrics)
	}

	zero := byIID[2]
	if zero.Metrics != (scoring.Metrics{}) {
		t.Fatalf("zero fallback metrics = %+v, want all zero", zero.Metrics)
	}
	if zero.Score != 0 || zero.SizeBand != "S" {
		t.Fatalf("zero fallback score/band = %d/%q", zero.Score, zero.SizeBand)
	}
}

func TestGenerateListFetchFailureAbortsReport(t *testing.T) {
	t.Parallel()

	fake := &fakeUpstream{listErr: fmt.Errorf("upstream down")}
	gen := NewGenerator(fake, zap.NewNop(), GeneratorConfig{})

	_, err := gen.Generate(context.Background(), "token", testRequest([]int{7}, "alice"))
	if err == nil {
		t.Fatalf("Generate() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "upstream down") {
		t.Fatalf("error = %q, missing cause", err.Error())
	}
}

func TestGenerateGroupScopeFanOut(t *testing.T) {
	t.Parallel()

	mergedAt := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	fake := &fakeUpstream{
		groupProjects: map[int][]gitlabapi.Project{
			42: {{ID: 7, Name: "a"}, {ID: 8, Name: "b"}},
		},
		merged: map[string][]gitlabapi.MergeRequest{
			"7:alice": {mkMergedMR(7, 1, "alice", "In project a", mergedAt)},
			"8:alice": {mkMergedMR(8, 1, "alice", "In project b", mergedAt)},
		},
	}
	gen := NewGenerator(fake, zap.NewNop(), GeneratorConfig{})

	req := testRequest(nil, "alice")
	req.Scope = &Scope{Type: "group", ID: 42}

	got, err := gen.Generate(context.Background(), "token", req)
	if err != nil {
		t.Fatalf("Generate() unexpected error: %v", err)
	}
	if got.Totals.MergedMRCount != 2 {
		t.Fatalf("MergedMRCount = %d, want 2", got.Totals.MergedMRCount)
	}
	if len(got.ProjectIDs) != 2 {
		t.Fatalf("ProjectIDs = %v, want two ids", got.ProjectIDs)
	}
}

func TestGenerateAuthorRollupOrdering(t *testing.T) {
	t.Parallel()

	mergedAt := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	fake := &fakeUpstream{
		merged: map[string][]gitlabapi.MergeRequest{
			"7:alice": {mkMergedMR(7, 1, "alice", "One", mergedAt)},
			"7:bob": {
				mkMergedMR(7, 2, "bob", "Two", mergedAt),
				mkMergedMR(7, 3, "bob", "Three", mergedAt),
			},
		},
	}
	gen := NewGenerator(fake, zap.NewNop(), GeneratorConfig{})

	got, err := gen.Generate(context.Background(), "token", testRequest([]int{7}, "alice", "bob"))
	if err != nil {
		t.Fatalf("Generate() unexpected error: %v", err)
	}
	if len(got.ByAuthor) != 2 {
		t.Fatalf("len(ByAuthor) = %d, want 2", len(got.ByAuthor))
	}
	if got.ByAuthor[0].Username != "bob" || got.ByAuthor[0].MergedMRCount != 2 {
		t.Fatalf("ByAuthor[0] = %+v, want bob with 2", got.ByAuthor[0])
	}

	// Author buckets partition the MR list exactly.
	total := 0
	for _, author := range got.ByAuthor {
		total += author.MergedMRCount
	}
	if total != got.Totals.MergedMRCount {
		t.Fatalf("author bucket counts sum to %d, want %d", total, got.Totals.MergedMRCount)
	}
}
