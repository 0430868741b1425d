package http

import (
	"errors"
	"net/http"

	"open-trivia-rounds/internal/domain"
)

// Wire error codes.
const (
	CodeValidation        = "validation"
	CodeInvalidTransition = "invalid_transition"
	CodeNoCategories      = "no_categories"
	CodeFetchFailed       = "fetch_failed"
	CodeNotFound          = "not_found"
	CodeRateLimited       = "rate_limited"
	CodeBadMessage        = "bad_message"
	CodeInternal          = "internal"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// classify maps a service error to its wire code and HTTP status.
func classify(err error) (string, int) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return CodeValidation, http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition):
		return CodeInvalidTransition, http.StatusConflict
	case errors.Is(err, domain.ErrNoCategoriesAvailable):
		return CodeNoCategories, http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrFetch):
		return CodeFetchFailed, http.StatusBadGateway
	case errors.Is(err, domain.ErrSessionNotFound):
		return CodeNotFound, http.StatusNotFound
	}
	return CodeInternal, http.StatusInternalServerError
}

func toErrorPayload(err error) errorPayload {
	code, _ := classify(err)
	msg := err.Error()
	if code == CodeInternal {
		msg = "internal error"
	}
	return errorPayload{Code: code, Message: msg}
}
