package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/notifyhub/alert-relay/internal/domain"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// mapError translates domain sentinel errors to HTTP status codes.
// All mapping lives here so individual handlers stay concise.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrMissingHeaders),
		errors.Is(err, domain.ErrMalformedEvent):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAuthentication):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrInvalidAlertType),
		errors.Is(err, domain.ErrInvalidRecipient),
		errors.Is(err, domain.ErrInvalidUsername):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		// store failures land here: a 5xx makes the event source redeliver
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
