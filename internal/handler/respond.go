// Package handler holds the HTTP plumbing shared by the API: JSON
// responses, error mapping and the orchestrator status callback.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	appErrors "github.com/unclebandit/prospect-outreach/internal/errors"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, ErrorResponse{Error: msg})
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	var ct *appErrors.CampaignTransitionError
	var pe *appErrors.ProviderError
	switch {
	case appErrors.IsInvalidTransition(err), errors.As(err, &ct), errors.Is(err, appErrors.ErrClaimLost):
		return http.StatusConflict
	case appErrors.IsNotFound(err):
		return http.StatusNotFound
	case appErrors.IsValidation(err):
		return http.StatusBadRequest
	case errors.As(err, &pe):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Fail writes err with the status StatusFor picks.
func Fail(w http.ResponseWriter, err error) {
	Error(w, StatusFor(err), err.Error())
}
