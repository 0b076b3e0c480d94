// Package handlers contains the HTTP request handlers for the agent and
// system APIs.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ternarybob/mitto/internal/common"
)

type contextKey string

const userIDKey contextKey = "user_id"

// ContextWithUserID stores the authenticated user on the request context
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user, or "" when the
// request was not authenticated
func UserIDFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDKey).(string); ok {
		return userID
	}
	return ""
}

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteErrorCode(w, common.CodeMethodNotAllowed, "expected "+method)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorCode writes the standard error envelope for the code; the
// HTTP status is derived from the code table.
func WriteErrorCode(w http.ResponseWriter, code common.ErrorCode, description string) error {
	return WriteJSON(w, code.HTTPStatus(), common.NewErrorResponse(code, description))
}

// QueryInt reads an integer query parameter, falling back to def on
// absence or parse failure
func QueryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return def
	}
	return value
}
