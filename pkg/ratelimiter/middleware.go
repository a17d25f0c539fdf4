package ratelimiter

import (
	"math"
	"net/http"
	"strconv"
)

// KeyFunc extracts a rate limit key from the request. An empty key skips
// limiting for that request.
type KeyFunc func(r *http.Request) string

// ErrorResponder writes the response for a denied or failed check.
// result is nil when err is set.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, result *Result, err error)

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*limitHandler)

// WithErrorResponder overrides the plain-text 429/500 responses.
func WithErrorResponder(fn ErrorResponder) MiddlewareOption {
	return func(h *limitHandler) {
		if fn != nil {
			h.respond = fn
		}
	}
}

type limitHandler struct {
	bucket  *Bucket
	key     KeyFunc
	respond ErrorResponder
	next    http.Handler
}

// Middleware limits requests per key. The X-RateLimit-* headers are set on
// every checked request and Retry-After on denied ones.
func Middleware(tb *Bucket, keyFunc KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		h := &limitHandler{bucket: tb, key: keyFunc, respond: plainResponder, next: next}
		for _, opt := range opts {
			opt(h)
		}
		return h
	}
}

func (h *limitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := h.key(r)
	if key == "" {
		h.next.ServeHTTP(w, r)
		return
	}

	result, err := h.bucket.Allow(r.Context(), key)
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}

	hdr := w.Header()
	hdr.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	hdr.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, result.Remaining)))
	hdr.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

	if result.Allowed() {
		h.next.ServeHTTP(w, r)
		return
	}
	if wait := result.RetryAfter(); wait > 0 {
		hdr.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	}
	h.respond(w, r, result, nil)
}

func plainResponder(w http.ResponseWriter, _ *http.Request, _ *Result, err error) {
	status := http.StatusTooManyRequests
	if err != nil {
		status = http.StatusInternalServerError
	}
	http.Error(w, http.StatusText(status), status)
}
