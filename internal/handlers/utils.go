package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const contextSubjectKey contextKey = "sub"

// userIDFromContext extracts the authenticated user's id injected by the
// auth middleware. The JWT subject is carried as a string claim.
func userIDFromContext(ctx context.Context) (uuid.UUID, error) {
	value := ctx.Value(contextSubjectKey)
	subject, ok := value.(string)
	if !ok {
		return uuid.Nil, errors.New("missing subject")
	}
	id, err := uuid.Parse(strings.TrimSpace(subject))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, errors.New("invalid subject")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}
