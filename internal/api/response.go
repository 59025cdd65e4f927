// Package api exposes the HTTP surface: subscription CRUD, event intake,
// analytics, and manual retries, all behind bearer-token auth.
package api

import (
	"encoding/json"
	"net/http"

	"go.hookrelay.dev/internal/platform/common"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// PagedResponse represents a paginated response
type PagedResponse[T any] struct {
	Data       []T   `json:"data"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// WriteBadRequest writes a 400 error
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

// WriteUnauthorized writes a 401 error
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

// WriteInternalError writes a 500 error
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}

// WriteUseCaseError maps a use case error kind to its HTTP status
func WriteUseCaseError(w http.ResponseWriter, err *common.UseCaseError) {
	WriteError(w, err.HTTPStatus(), err.Code, err.Message)
}

// WriteUseCaseResult writes a successful use case result or its error
func WriteUseCaseResult[T any](w http.ResponseWriter, result common.Result[T], successStatus int) {
	if result.IsFailure() {
		WriteUseCaseError(w, result.Error())
		return
	}
	WriteJSON(w, successStatus, result.Value())
}

// DecodeJSON decodes JSON from a request body
func DecodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
