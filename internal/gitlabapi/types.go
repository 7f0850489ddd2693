package gitlabapi

import "time"

// User is a GitLab user account.
type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// Project is a GitLab project summary.
type Project struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
}

// Author identifies the author of a merge request.
type Author struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// MergeRequest is one merge request as returned by the GitLab REST API.
// The iid is project-scoped; only (ProjectID, IID) is globally unique.
type MergeRequest struct {
	ID             int        `json:"id"`
	IID            int        `json:"iid"`
	ProjectID      int        `json:"project_id"`
	Title          string     `json:"title"`
	WebURL         string     `json:"web_url"`
	Author         Author     `json:"author"`
	State          string     `json:"state"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	MergedAt       *time.Time `json:"merged_at"`
	UserNotesCount int        `json:"user_notes_count"`
	Upvotes        int        `json:"upvotes"`
	Downvotes      int        `json:"downvotes"`

	// Summary line counts are only populated on the single-MR detail
	// endpoint, and even there may be absent.
	Additions *int `json:"additions"`
	Deletions *int `json:"deletions"`
}

// Change is one file touched by a merge request. Exactly one of OldPath
// and NewPath may be empty (file create or delete).
type Change struct {
	OldPath     string `json:"old_path"`
	NewPath     string `json:"new_path"`
	NewFile     bool   `json:"new_file"`
	RenamedFile bool   `json:"renamed_file"`
	DeletedFile bool   `json:"deleted_file"`
	Diff        string `json:"diff"`
}

// EffectivePath is the path a change should be attributed to: the new
// path if present, otherwise the old path.
func (c Change) EffectivePath() string {
	if c.NewPath != "" {
		return c.NewPath
	}
	return c.OldPath
}

type changesPayload struct {
	Changes []Change `json:"changes"`
}
