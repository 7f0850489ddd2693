package gitlabapi

import (
	"errors"
	"fmt"
)

// ErrorKind classifies normalized GitLab API failures.
type ErrorKind string

const (
	// KindAuth indicates an invalid or missing token.
	KindAuth ErrorKind = "auth"
	// KindForbidden indicates the token lacks access to the resource.
	KindForbidden ErrorKind = "forbidden"
	// KindNotFound indicates the resource does not exist or is hidden.
	KindNotFound ErrorKind = "not_found"
	// KindUpstream indicates any other non-success or malformed response.
	KindUpstream ErrorKind = "upstream"
)

// APIError is a normalized GitLab API failure.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Reason     string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gitlab api: %s (status %d): %s", e.Kind, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("gitlab api: %s: %s", e.Kind, e.Reason)
}

// KindOf reports the error kind for a (possibly wrapped) APIError,
// or empty string for any other error.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

func errorForStatus(statusCode int, reason string) *APIError {
	switch statusCode {
	case 401:
		return &APIError{Kind: KindAuth, StatusCode: statusCode, Reason: "invalid gitlab token"}
	case 404:
		return &APIError{Kind: KindNotFound, StatusCode: statusCode, Reason: "resource not found"}
	case 403:
		return &APIError{Kind: KindForbidden, StatusCode: statusCode, Reason: "access forbidden"}
	default:
		return &APIError{Kind: KindUpstream, StatusCode: statusCode, Reason: reason}
	}
}
