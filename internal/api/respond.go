package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/counterpoint/match-service/internal/matching"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps engine errors onto HTTP status codes. Eligibility
// failures and validation problems are client errors; anything
// unrecognized is a 500 with a generic body so internals do not leak.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, matching.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, matching.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error()})
	case errors.Is(err, matching.ErrAlreadyResolved),
		errors.Is(err, matching.ErrSelfMatch),
		errors.Is(err, matching.ErrNotEligible):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		log.Printf("[api] internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// badRequest writes a 400 with the given message.
func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// rateLimited writes a 429.
func rateLimited(w http.ResponseWriter) {
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
}
