package gitlabapi

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CurrentUser looks up the account the token belongs to. It doubles as
// token validation: an invalid token surfaces as a KindAuth error.
func (c *Client) CurrentUser(ctx context.Context, token string) (User, error) {
	var user User
	if _, err := c.getJSON(ctx, token, "user", nil, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// ListProjects lists projects the token holder is a member of, newest
// page only, optionally narrowed by a search term.
func (c *Client) ListProjects(ctx context.Context, token, search string) ([]Project, error) {
	query := url.Values{}
	query.Set("membership", "true")
	query.Set("simple", "true")
	query.Set("order_by", "name")
	query.Set("sort", "asc")
	query.Set("per_page", "20")
	query.Set("page", "1")
	if trimmed := strings.TrimSpace(search); trimmed != "" {
		query.Set("search", trimmed)
	}

	var projects []Project
	if _, err := c.getJSON(ctx, token, "projects", query, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// SearchUsers searches GitLab users by name or username.
func (c *Client) SearchUsers(ctx context.Context, token, search string) ([]User, error) {
	query := url.Values{}
	query.Set("search", search)
	query.Set("per_page", "20")
	query.Set("page", "1")

	var users []User
	if _, err := c.getJSON(ctx, token, "users", query, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GroupProjects lists every project under a group, including subgroups.
func (c *Client) GroupProjects(ctx context.Context, token string, groupID int) ([]Project, error) {
	query := url.Values{}
	query.Set("include_subgroups", "true")

	path := fmt.Sprintf("groups/%d/projects", groupID)
	return fetchPaginated[Project](ctx, c, token, path, query)
}

// ListMergedMergeRequests lists merged MRs for one project and author
// whose update time falls inside the window. The server-side window is
// on updated_at and is looser than the caller's merged_at gate; callers
// must re-filter on merged_at.
func (c *Client) ListMergedMergeRequests(ctx context.Context, token string, projectID int, authorUsername string, from, to time.Time) ([]MergeRequest, error) {
	query := url.Values{}
	query.Set("state", "merged")
	query.Set("author_username", authorUsername)
	query.Set("updated_after", from.UTC().Format(time.RFC3339))
	query.Set("updated_before", to.UTC().Format(time.RFC3339))

	path := fmt.Sprintf("projects/%d/merge_requests", projectID)
	return fetchPaginated[MergeRequest](ctx, c, token, path, query)
}

// GetMergeRequest reads one merge request's detail, including the
// summary addition/deletion counts when the API provides them.
func (c *Client) GetMergeRequest(ctx context.Context, token string, projectID, iid int) (MergeRequest, error) {
	path := fmt.Sprintf("projects/%d/merge_requests/%d", projectID, iid)

	var mr MergeRequest
	if _, err := c.getJSON(ctx, token, path, nil, &mr); err != nil {
		return MergeRequest{}, err
	}
	return mr, nil
}

// GetMergeRequestChanges reads the per-file change list for one merge
// request.
func (c *Client) GetMergeRequestChanges(ctx context.Context, token string, projectID, iid int) ([]Change, error) {
	path := fmt.Sprintf("projects/%d/merge_requests/%d/changes", projectID, iid)

	var payload changesPayload
	if _, err := c.getJSON(ctx, token, path, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Changes, nil
}

// SearchMergeRequests lists merge requests in one state across all
// projects visible to the token, for each of the given authors. Results
// are deduplicated by global MR id and ordered by update time, newest
// first.
func (c *Client) SearchMergeRequests(ctx context.Context, token string, authorUsernames []string, state string, perPage int) ([]MergeRequest, error) {
	if perPage <= 0 {
		perPage = 50
	}

	seen := make(map[int]struct{})
	var results []MergeRequest

	for _, username := range authorUsernames {
		query := url.Values{}
		query.Set("scope", "all")
		query.Set("state", state)
		query.Set("author_username", username)
		query.Set("order_by", "updated_at")
		query.Set("sort", "desc")
		query.Set("per_page", strconv.Itoa(perPage))
		query.Set("page", "1")

		var batch []MergeRequest
		if _, err := c.getJSON(ctx, token, "merge_requests", query, &batch); err != nil {
			return nil, err
		}
		for _, mr := range batch {
			if _, dup := seen[mr.ID]; dup {
				continue
			}
			seen[mr.ID] = struct{}{}
			results = append(results, mr)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].UpdatedAt.After(results[j].UpdatedAt)
	})
	return results, nil
}
