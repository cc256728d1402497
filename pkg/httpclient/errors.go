package httpclient

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/ExpenseGo/pkg/errors"
)

// errorBody covers the error shapes the backend produces: a bare string
// under "error", a nested object, or a top-level "message".
type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

// MessageFromBody extracts the server-provided error message from a response
// body. It returns "" when the body carries none.
func MessageFromBody(body []byte) string {
	var eb errorBody
	if json.Unmarshal(body, &eb) != nil {
		return ""
	}
	if len(eb.Error) > 0 {
		var s string
		if json.Unmarshal(eb.Error, &s) == nil {
			return strings.TrimSpace(s)
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(eb.Error, &nested) == nil && nested.Message != "" {
			return strings.TrimSpace(nested.Message)
		}
	}
	return strings.TrimSpace(eb.Message)
}

// ErrorFromBody maps a non-2xx status and its body to an AppError.
func ErrorFromBody(status int, body []byte) *apperrors.AppError {
	return apperrors.FromStatus(status, MessageFromBody(body))
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError. The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.FromStatus(resp.StatusCode, "")
	}
	return ErrorFromBody(resp.StatusCode, body)
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
