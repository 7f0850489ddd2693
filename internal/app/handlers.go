package app

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eroomeoj94/gitlab-merge-request-support/internal/gitlabapi"
	"github.com/eroomeoj94/gitlab-merge-request-support/internal/report"
	"github.com/eroomeoj94/gitlab-merge-request-support/internal/search"
)

type userResponse struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

type projectResponse struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"pathWithNamespace"`
}

// sessionToken resolves the caller's stored token. On failure it writes
// the error response and reports ok=false.
func (s *Server) sessionToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID, ok := s.sessions.Get(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no access token configured")
		return "", false
	}

	token, found, err := s.tokens.Get(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("token lookup failed", zap.Error(err))
		writeError(w, statusForError(err), messageForError(err))
		return "", false
	}
	if !found {
		writeError(w, http.StatusUnauthorized, "no access token configured")
		return "", false
	}
	return token, true
}

type reportRequestBody struct {
	ProjectIDs []int         `json:"projectIds"`
	Scope      *report.Scope `json:"scope"`
	DateRange  struct {
		From time.Time `json:"from"`
		To   time.Time `json:"to"`
	} `json:"dateRange"`
	Authors struct {
		Usernames []string `json:"usernames"`
	} `json:"authors"`
	Filters *struct {
		ExcludeDrafts *bool `json:"excludeDrafts"`
	} `json:"filters"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	token, ok := s.sessionToken(w, r)
	if !ok {
		return
	}

	var body reportRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Drafts are excluded unless the request says otherwise.
	excludeDrafts := true
	if body.Filters != nil && body.Filters.ExcludeDrafts != nil {
		excludeDrafts = *body.Filters.ExcludeDrafts
	}

	generated, err := s.generator.Generate(r.Context(), token, report.Request{
		ProjectIDs:    body.ProjectIDs,
		Scope:         body.Scope,
		From:          body.DateRange.From,
		To:            body.DateRange.To,
		Authors:       body.Authors.Usernames,
		ExcludeDrafts: excludeDrafts,
	})
	if err != nil {
		s.logger.Warn("report generation failed", zap.Error(err))
		writeError(w, statusForError(err), messageForError(err))
		return
	}
	writeJSON(w, http.StatusOK, generated)
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	token, ok := s.sessionToken(w, r)
	if !ok {
		return
	}

	projects, err := s.gitlab.ListProjects(r.Context(), token, r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, statusForError(err), messageForError(err))
		return
	}

	results := make([]projectResponse, 0, len(projects))
	for _, project := range projects {
		results = append(results, projectResponse{
			ID:                project.ID,
			Name:              project.Name,
			PathWithNamespace: project.PathWithNamespace,
		})
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	token, ok := s.sessionToken(w, r)
	if !ok {
		return
	}

	// Short queries return an empty list rather than an error so typeahead
	// callers need no special casing.
	query := strings.TrimSpace(r.URL.Query().Get("search"))
	if len(query) < 2 {
		writeJSON(w, http.StatusOK, []userResponse{})
		return
	}

	users, err := s.gitlab.SearchUsers(r.Context(), token, query)
	if err != nil {
		writeError(w, statusForError(err), messageForError(err))
		return
	}

	results := make([]userResponse, 0, len(users))
	for _, user := range users {
		results = append(results, userResponse{
			ID:        user.ID,
			Username:  user.Username,
			Name:      user.Name,
			AvatarURL: user.AvatarURL,
		})
	}
	writeJSON(w, http.StatusOK, results)
}

type searchRequestBody struct {
	AuthorUsernames []string `json:"authorUsernames"`
	State           string   `json:"state"`
	PerPage         int      `json:"perPage"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	token, ok := s.sessionToken(w, r)
	if !ok {
		return
	}

	var body searchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.AuthorUsernames) == 0 {
		writeError(w, http.StatusBadRequest, "authorUsernames must be non-empty")
		return
	}
	if !search.ValidState(body.State) {
		writeError(w, http.StatusBadRequest, "state must be one of opened|merged|closed")
		return
	}
	perPage := body.PerPage
	if perPage <= 0 {
		perPage = search.DefaultPerPage
	}

	mrs, err := s.gitlab.SearchMergeRequests(r.Context(), token, body.AuthorUsernames, body.State, perPage)
	if err != nil {
		writeError(w, statusForError(err), messageForError(err))
		return
	}
	writeJSON(w, http.StatusOK, search.FromUpstream(mrs))
}

type storeTokenRequestBody struct {
	Token string `json:"token"`
}

type storeTokenResponse struct {
	User      userResponse `json:"user"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// handleStoreToken validates the token against the upstream API before
// storing it. The token itself is never echoed back.
func (s *Server) handleStoreToken(w http.ResponseWriter, r *http.Request) {
	var body storeTokenRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token := strings.TrimSpace(body.Token)
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	user, err := s.gitlab.CurrentUser(r.Context(), token)
	if err != nil {
		if gitlabapi.KindOf(err) == gitlabapi.KindAuth {
			writeError(w, http.StatusUnauthorized, "invalid gitlab token")
			return
		}
		writeError(w, statusForError(err), messageForError(err))
		return
	}

	sessionID, err := s.sessions.GetOrCreate(w, r)
	if err != nil {
		s.logger.Error("session creation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := s.tokens.Store(r.Context(), sessionID, token); err != nil {
		s.logger.Error("token store failed", zap.Error(err))
		writeError(w, statusForError(err), messageForError(err))
		return
	}

	writeJSON(w, http.StatusOK, storeTokenResponse{
		User: userResponse{
			ID:        user.ID,
			Username:  user.Username,
			Name:      user.Name,
			AvatarURL: user.AvatarURL,
		},
		ExpiresAt: s.now().Add(s.tokenTTL),
	})
}

// handleDeleteToken removes the caller's token. It answers 200 whether
// or not a session or token existed.
func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessions.Get(r)
	if ok {
		if err := s.tokens.Delete(r.Context(), sessionID); err != nil {
			s.logger.Error("token delete failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
