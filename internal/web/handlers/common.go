package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/markrhq/markr/internal/access"
	"github.com/markrhq/markr/internal/capture"
	"github.com/markrhq/markr/internal/embedding"
	"github.com/markrhq/markr/internal/store"
	"github.com/markrhq/markr/internal/web/middleware"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

const dateFormat = "2006-01-02"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps domain errors onto HTTP statuses. Unrecognized
// errors become a generic 500 so internal detail never leaks to clients.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, access.ErrUnauthenticated):
		respondError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, access.ErrInsufficientRole),
		errors.Is(err, access.ErrScopeViolation),
		errors.Is(err, capture.ErrInvalidScope):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrSessionNotFound),
		errors.Is(err, store.ErrStudentNotFound),
		errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrSchoolNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, capture.ErrInvalidState):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, capture.ErrTimeout):
		respondError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, embedding.ErrUnreadableImage):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// requireActor fetches the authenticated actor or writes a 401.
func requireActor(w http.ResponseWriter, r *http.Request) (access.Actor, bool) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
	}
	return actor, ok
}

// parseDate parses a YYYY-MM-DD query value, defaulting to today (UTC)
// when the value is empty.
func parseDate(value string) (time.Time, error) {
	if value == "" {
		return capture.DateOf(time.Now().UTC()), nil
	}
	t, err := time.Parse(dateFormat, value)
	if err != nil {
		return time.Time{}, err
	}
	return capture.DateOf(t), nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
