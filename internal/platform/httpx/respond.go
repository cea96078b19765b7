// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"net/http"
)

// Problem type identifiers carried in ProblemDetail.Type, so API clients
// can switch on failure class without parsing titles.
const (
	TypeInvalidRequest = "vendsight:problem:invalid-request"
	TypeNotFound       = "vendsight:problem:not-found"
	TypeConflict       = "vendsight:problem:conflict"
	TypeUnprocessable  = "vendsight:problem:unprocessable"
	TypeUnavailable    = "vendsight:problem:unavailable"
	TypeInternal       = "vendsight:problem:internal"
)

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response, deriving the problem
// type from the status code.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	JSON(w, status, ProblemDetail{
		Type:   typeFor(status),
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func typeFor(status int) string {
	switch {
	case status == http.StatusNotFound:
		return TypeNotFound
	case status == http.StatusConflict:
		return TypeConflict
	case status == http.StatusUnprocessableEntity:
		return TypeUnprocessable
	case status == http.StatusServiceUnavailable:
		return TypeUnavailable
	case status >= 500:
		return TypeInternal
	case status >= 400:
		return TypeInvalidRequest
	default:
		return ""
	}
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
