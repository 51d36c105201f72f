package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hearthside/cms/internal/domain"
)

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized
	case domain.EPAYMENT:
		return http.StatusPaymentRequired
	case domain.EFORBIDDEN:
		return http.StatusForbidden
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.ECONFLICT:
		return http.StatusConflict
	case domain.ERATELIMIT:
		return http.StatusTooManyRequests
	case domain.EUNAVAILABLE:
		// Retryable upstream failure. 500 rather than 502/503 so clients and
		// Stripe treat it uniformly as "try again".
		return http.StatusInternalServerError
	case domain.EINTERNAL:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// ErrorResponse writes an error to the client, as JSON for API clients and
// plain text otherwise. Internal error details are never exposed.
func ErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorCode(err)
	message := domain.ErrorMessage(err)
	status := ErrorCodeToHTTPStatus(code)

	if status >= 500 {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"op", domain.ErrorOp(err),
			"error", err,
		)
	}

	if acceptsJSON(r) {
		writeJSONError(w, status, errorBody{Code: code, Message: message})
		return
	}

	http.Error(w, message, status)
}

// ValidationErrorResponse writes field-level validation errors as JSON.
// Falls back to ErrorResponse for non-validation errors.
func ValidationErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	fields := domain.GetValidationFields(err)
	if fields == nil {
		ErrorResponse(w, r, err)
		return
	}

	if acceptsJSON(r) {
		writeJSONError(w, http.StatusBadRequest, errorBody{
			Code:    domain.EINVALID,
			Message: "Validation failed",
			Fields:  fields,
		})
		return
	}

	http.Error(w, err.Error(), http.StatusBadRequest)
}

// NotFoundResponse writes a 404 response.
func NotFoundResponse(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(w, r, domain.NotFound("handler", "resource", r.URL.Path))
}

// UnauthorizedResponse writes a 401 response.
func UnauthorizedResponse(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(w, r, domain.Unauthorized("handler", "Authentication required"))
}

// ForbiddenResponse writes a 403 response.
func ForbiddenResponse(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(w, r, domain.Forbidden("handler", "Not authorized"))
}

// InternalErrorResponse writes a 500 response hiding the underlying error.
func InternalErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	ErrorResponse(w, r, domain.Internal(err, "handler", "internal error"))
}

func writeJSONError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: body})
}

// acceptsJSON reports whether the client expects a JSON response.
func acceptsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	return strings.HasSuffix(r.URL.Path, ".json")
}
