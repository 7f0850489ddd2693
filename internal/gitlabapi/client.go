package gitlabapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const defaultBaseURL = "https://gitlab.com/api/v4/"

const perPage = 100

// HTTPDoer is implemented by http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues authenticated requests against a GitLab-compatible REST
// API and normalizes failures into the APIError taxonomy. It is
// stateless and safe for concurrent use.
type Client struct {
	baseURL *url.URL
	doer    HTTPDoer
}

// NewClient creates a GitLab API client. An empty baseURL selects the
// public gitlab.com v4 API.
func NewClient(baseURL string, doer HTTPDoer) (*Client, error) {
	if doer == nil {
		return nil, fmt.Errorf("http doer is required")
	}

	parsed, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL: parsed,
		doer:    doer,
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.HasSuffix(trimmed, "/") {
		trimmed += "/"
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse gitlab api base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse gitlab api base url: missing scheme or host")
	}
	return parsed, nil
}

// getJSON issues one authenticated GET and decodes the JSON response
// body into out. It returns the response headers so callers can follow
// pagination. There is no retry; every failure surfaces to the caller.
func (c *Client) getJSON(ctx context.Context, token, path string, query url.Values, out any) (http.Header, error) {
	reqURL := *c.baseURL
	reqURL.Path = joinURLPath(reqURL.Path, path)
	if len(query) > 0 {
		reqURL.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build gitlab request: %w", err)
	}
	req.Header.Set("PRIVATE-TOKEN", token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gitlab request failed: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("gitlab request failed: nil response")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errorForStatus(resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gitlab response: %w", err)
	}

	if err := decodeBody(body, out); err != nil {
		return nil, err
	}
	return resp.Header, nil
}

// decodeBody parses a response body, rejecting empty and HTML bodies
// with a distinguishable error. An HTML body usually means the request
// was redirected to a login or error page instead of the API.
func decodeBody(body []byte, out any) error {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return &APIError{Kind: KindUpstream, Reason: "gitlab api returned empty response"}
	}

	if strings.HasPrefix(trimmed, "<!DOCTYPE") || strings.HasPrefix(trimmed, "<html") {
		return &APIError{
			Kind:   KindUpstream,
			Reason: "gitlab api returned HTML instead of JSON; check the token and API base URL. Response snippet: " + bodySnippet(trimmed),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{
			Kind:   KindUpstream,
			Reason: "gitlab api returned invalid JSON. Response snippet: " + bodySnippet(trimmed),
		}
	}
	return nil
}

func bodySnippet(body string) string {
	collapsed := strings.Join(strings.Fields(body), " ")
	if len(collapsed) > 200 {
		collapsed = collapsed[:200] + "..."
	}
	return collapsed
}

// fetchPaginated fetches every page of a list endpoint, following the
// X-Next-Page response header until it is absent or non-positive. A
// failure on any page aborts the whole fetch.
func fetchPaginated[T any](ctx context.Context, c *Client, token, path string, query url.Values) ([]T, error) {
	var results []T
	page := 1

	for {
		pageQuery := url.Values{}
		for key, values := range query {
			pageQuery[key] = values
		}
		pageQuery.Set("page", strconv.Itoa(page))
		pageQuery.Set("per_page", strconv.Itoa(perPage))

		var batch []T
		header, err := c.getJSON(ctx, token, path, pageQuery, &batch)
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)

		next := strings.TrimSpace(header.Get("X-Next-Page"))
		if next == "" {
			break
		}
		nextPage, err := strconv.Atoi(next)
		if err != nil || nextPage <= 0 {
			break
		}
		page = nextPage
	}

	return results, nil
}

func joinURLPath(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.Trim(part, "/")
		if trimmed == "" {
			continue
		}
		cleaned = append(cleaned, trimmed)
	}
	return "/" + strings.Join(cleaned, "/")
}
