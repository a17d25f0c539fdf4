package handler

import (
	"encoding/json"
	"net/http"
)

// JSONResponse is the standard JSON response structure
type JSONResponse struct {
	Data  any          `json:"data,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail contains error information. RetryStrategy and RetryAfter
// (seconds) tell the client how to proceed.
type ErrorDetail struct {
	Code          string `json:"code,omitempty"`
	Message       string `json:"message,omitempty"`
	RetryStrategy string `json:"retry_strategy,omitempty"`
	RetryAfter    int    `json:"retry_after,omitempty"`
}

// jsonResponse implements Response for JSON rendering
type jsonResponse struct {
	status  int
	headers http.Header
	body    JSONResponse
}

func (j *jsonResponse) Render(w http.ResponseWriter, r *http.Request) error {
	for k, v := range j.headers {
		w.Header()[k] = v
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSONOption configures JSON response
type JSONOption func(*jsonResponse)

// WithJSONStatus sets custom HTTP status code
func WithJSONStatus(status int) JSONOption {
	return func(r *jsonResponse) {
		r.status = status
	}
}

// WithJSONHeader sets a response header.
func WithJSONHeader(key, value string) JSONOption {
	return func(r *jsonResponse) {
		r.headers.Set(key, value)
	}
}

// JSON creates a JSON response with options
func JSON(v any, opts ...JSONOption) Response {
	r := &jsonResponse{
		status:  http.StatusOK,
		headers: make(http.Header),
		body:    JSONResponse{Data: v},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// JSONError creates a JSON error response with options. The status
// defaults to 500.
func JSONError(detail *ErrorDetail, opts ...JSONOption) Response {
	r := &jsonResponse{
		status:  http.StatusInternalServerError,
		headers: make(http.Header),
		body:    JSONResponse{Error: detail},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
