package common

import "net/http"

// ErrorCode is a stable integer code returned in API error envelopes.
// Ranges: authentication 1000-1999, database 4000-4999, server 5000-5999,
// api 6000-6999.
type ErrorCode int

const (
	// Authentication errors (1000-1999)
	CodeAuthenticationFailed ErrorCode = 1001
	CodeTokenExpired         ErrorCode = 1002
	CodeInvalidToken         ErrorCode = 1003
	CodeUnauthorizedAccess   ErrorCode = 1004

	// Database errors (4000-4999)
	CodeDatabaseError     ErrorCode = 4000
	CodeRecordNotFound    ErrorCode = 4001
	CodeDuplicateRecord   ErrorCode = 4002
	CodeRecordNotModified ErrorCode = 4003

	// Server errors (5000-5999)
	CodeInternalError      ErrorCode = 5000
	CodeServiceUnavailable ErrorCode = 5001
	CodeQueueUnavailable   ErrorCode = 5003

	// API errors (6000-6999)
	CodeValidationError  ErrorCode = 6001
	CodeMethodNotAllowed ErrorCode = 6002
	CodeInvalidRequest   ErrorCode = 6003
)

// httpStatusByCode maps error codes to HTTP status codes
var httpStatusByCode = map[ErrorCode]int{
	CodeAuthenticationFailed: http.StatusUnauthorized,
	CodeTokenExpired:         http.StatusUnauthorized,
	CodeInvalidToken:         http.StatusUnauthorized,
	CodeUnauthorizedAccess:   http.StatusForbidden,
	CodeDatabaseError:        http.StatusInternalServerError,
	CodeRecordNotFound:       http.StatusNotFound,
	CodeDuplicateRecord:      http.StatusConflict,
	CodeRecordNotModified:    http.StatusConflict,
	CodeInternalError:        http.StatusInternalServerError,
	CodeServiceUnavailable:   http.StatusServiceUnavailable,
	CodeQueueUnavailable:     http.StatusServiceUnavailable,
	CodeValidationError:      http.StatusUnprocessableEntity,
	CodeMethodNotAllowed:     http.StatusMethodNotAllowed,
	CodeInvalidRequest:       http.StatusBadRequest,
}

// HTTPStatus returns the HTTP status for the code, defaulting to 500
func (c ErrorCode) HTTPStatus() int {
	if status, ok := httpStatusByCode[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// messageByCode holds the short human-readable message per code
var messageByCode = map[ErrorCode]string{
	CodeAuthenticationFailed: "authentication_failed",
	CodeTokenExpired:         "token_expired",
	CodeInvalidToken:         "invalid_token",
	CodeUnauthorizedAccess:   "unauthorized_access",
	CodeDatabaseError:        "database_error",
	CodeRecordNotFound:       "record_not_found",
	CodeDuplicateRecord:      "duplicate_record",
	CodeRecordNotModified:    "record_not_modified",
	CodeInternalError:        "internal_error",
	CodeServiceUnavailable:   "service_unavailable",
	CodeQueueUnavailable:     "queue_unavailable",
	CodeValidationError:      "validation_error",
	CodeMethodNotAllowed:     "method_not_allowed",
	CodeInvalidRequest:       "invalid_request",
}

// Message returns the short message for the code
func (c ErrorCode) Message() string {
	if msg, ok := messageByCode[c]; ok {
		return msg
	}
	return "unknown_error"
}

// ErrorResponse is the JSON error envelope returned by the API
type ErrorResponse struct {
	Code        int    `json:"code"`
	Message     string `json:"message"`
	Description string `json:"description"`
}

// NewErrorResponse builds an envelope for the code with a free-form description
func NewErrorResponse(code ErrorCode, description string) ErrorResponse {
	return ErrorResponse{
		Code:        int(code),
		Message:     code.Message(),
		Description: description,
	}
}
