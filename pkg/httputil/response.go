package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/utafrali/ExpenseGo/pkg/errors"
	"github.com/utafrali/ExpenseGo/pkg/logger"
	"github.com/utafrali/ExpenseGo/pkg/validator"
)

// ErrorResponse is the error body the expense API produces: a single
// human-readable message under "error", plus optional field reasons.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteMessage writes an error body with the given status and message.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteError writes an error response derived from err. It prefers the
// request-scoped logger from context over the fallback logger.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		WriteJSON(w, appErr.Status, ErrorResponse{Error: appErr.Message, Fields: appErr.Fields})
		return
	}

	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		WriteMessage(w, status, "Internal server error")
		return
	}
	WriteMessage(w, status, http.StatusText(status))
}

// WriteValidationError writes a 400 response. Field reasons from the
// validator package are included, and the first one becomes the message.
func WriteValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		fields := valErr.Fields()
		msg := "Validation failed"
		if len(valErr.Errors) > 0 {
			first := valErr.Errors[0]
			msg = first.Field() + " " + fields[first.Field()]
		}
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Fields: fields})
		return
	}
	WriteMessage(w, http.StatusBadRequest, "No JSON data provided")
}

// QueryInt reads an integer query parameter, returning def when it is
// absent or malformed, and clamping the result to [lo, hi].
func QueryInt(r *http.Request, name string, def, lo, hi int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		v = def
	}
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}

// ParseID parses a positive integer path parameter. On failure it writes
// a 404, matching how the API treats unknown ids, and returns false.
func ParseID(w http.ResponseWriter, param, resource string) (int64, bool) {
	id, err := strconv.ParseInt(param, 10, 64)
	if err != nil || id <= 0 {
		WriteMessage(w, http.StatusNotFound, resource+" not found")
		return 0, false
	}
	return id, true
}
