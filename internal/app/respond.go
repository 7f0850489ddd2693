package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/eroomeoj94/gitlab-merge-request-support/internal/gitlabapi"
	"github.com/eroomeoj94/gitlab-merge-request-support/internal/report"
	"github.com/eroomeoj94/gitlab-merge-request-support/internal/tokenstore"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError emits the single-string error body every failure response
// carries.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusForError maps the error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	var validationErr *report.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest
	}
	if errors.Is(err, tokenstore.ErrEncryptionKeyMissing) || errors.Is(err, tokenstore.ErrEncryptionKeyInvalid) {
		return http.StatusInternalServerError
	}

	switch gitlabapi.KindOf(err) {
	case gitlabapi.KindAuth:
		return http.StatusUnauthorized
	case gitlabapi.KindForbidden:
		return http.StatusForbidden
	case gitlabapi.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func messageForError(err error) string {
	if errors.Is(err, tokenstore.ErrEncryptionKeyMissing) || errors.Is(err, tokenstore.ErrEncryptionKeyInvalid) {
		return "server configuration error"
	}
	return err.Error()
}
