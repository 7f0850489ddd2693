// Package search shapes the live merge-request search view across
// opened, merged, and closed states.
package search

import (
	"net/url"
	"strings"
	"time"

	"github.com/eroomeoj94/gitlab-merge-request-support/internal/gitlabapi"
)

// States a search request may ask for.
const (
	StateOpened = "opened"
	StateMerged = "merged"
	StateClosed = "closed"
)

// DefaultPerPage bounds one search page when the request leaves it
// unset.
const DefaultPerPage = 50

// ValidState reports whether a requested MR state is searchable.
func ValidState(state string) bool {
	switch state {
	case StateOpened, StateMerged, StateClosed:
		return true
	default:
		return false
	}
}

// Author identifies an MR author in search output.
type Author struct {
	Username  string `json:"username"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// MergeRequest is one search result with engagement counters and the
// project path derived from the MR's web URL.
type MergeRequest struct {
	ID             int        `json:"id"`
	IID            int        `json:"iid"`
	ProjectID      int        `json:"projectId"`
	ProjectPath    string     `json:"projectPath"`
	Title          string     `json:"title"`
	WebURL         string     `json:"webUrl"`
	State          string     `json:"state"`
	Author         Author     `json:"author"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	MergedAt       *time.Time `json:"mergedAt"`
	UserNotesCount int        `json:"userNotesCount"`
	Upvotes        int        `json:"upvotes"`
	Downvotes      int        `json:"downvotes"`
}

// FromUpstream maps upstream merge requests into the search shape.
func FromUpstream(mrs []gitlabapi.MergeRequest) []MergeRequest {
	results := make([]MergeRequest, 0, len(mrs))
	for _, mr := range mrs {
		results = append(results, MergeRequest{
			ID:          mr.ID,
			IID:         mr.IID,
			ProjectID:   mr.ProjectID,
			ProjectPath: ProjectPathFromWebURL(mr.WebURL),
			Title:       mr.Title,
			WebURL:      mr.WebURL,
			State:       strings.ToLower(mr.State),
			Author: Author{
				Username:  mr.Author.Username,
				Name:      mr.Author.Name,
				AvatarURL: mr.Author.AvatarURL,
			},
			CreatedAt:      mr.CreatedAt,
			UpdatedAt:      mr.UpdatedAt,
			MergedAt:       mr.MergedAt,
			UserNotesCount: mr.UserNotesCount,
			Upvotes:        mr.Upvotes,
			Downvotes:      mr.Downvotes,
		})
	}
	return results
}

// ProjectPathFromWebURL derives "group/project" from an MR web URL like
// https://host/group/project/-/merge_requests/3. Empty on any parse
// failure.
func ProjectPathFromWebURL(webURL string) string {
	parsed, err := url.Parse(webURL)
	if err != nil || parsed.Path == "" {
		return ""
	}
	prefix, _, _ := strings.Cut(parsed.Path, "/-/")
	return strings.TrimPrefix(prefix, "/")
}
