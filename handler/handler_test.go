package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitoolhub/accountsec/handler"
	"github.com/aitoolhub/accountsec/pkg/binder"
)

type codeRequest struct {
	Code string `json:"code"`
}

func recordErrors(got *error) handler.ErrorHandler[handler.Context] {
	return func(ctx handler.Context, err error) {
		*got = err
		ctx.ResponseWriter().WriteHeader(http.StatusTeapot)
	}
}

func TestWrap(t *testing.T) {
	t.Parallel()

	t.Run("binds request and renders response", func(t *testing.T) {
		t.Parallel()
		h := handler.Wrap(func(ctx handler.Context, req codeRequest) handler.Response {
			assert.NotNil(t, ctx.Request())
			return handler.JSON(map[string]string{"echo": req.Code}, handler.WithJSONStatus(http.StatusCreated))
		}, handler.WithBinder[handler.Context, codeRequest](binder.JSON()))

		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":" 42 "}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.JSONEq(t, `{"data":{"echo":"42"}}`, rec.Body.String())
	})

	t.Run("binder failure goes to error handler", func(t *testing.T) {
		t.Parallel()
		var got error
		called := false
		h := handler.Wrap(func(handler.Context, codeRequest) handler.Response {
			called = true
			return handler.JSON(nil)
		},
			handler.WithBinder[handler.Context, codeRequest](binder.JSON()),
			handler.WithErrorHandler[handler.Context, codeRequest](recordErrors(&got)),
		)

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))

		assert.False(t, called)
		assert.ErrorIs(t, got, binder.ErrMissingContentType)
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("error response goes to error handler", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		var got error
		h := handler.Wrap(func(handler.Context, struct{}) handler.Response {
			return handler.Error(boom)
		}, handler.WithErrorHandler[handler.Context, struct{}](recordErrors(&got)))

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.ErrorIs(t, got, boom)
	})

	t.Run("nil response", func(t *testing.T) {
		t.Parallel()
		var got error
		h := handler.Wrap(func(handler.Context, struct{}) handler.Response {
			return nil
		}, handler.WithErrorHandler[handler.Context, struct{}](recordErrors(&got)))

		h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.ErrorIs(t, got, handler.ErrNilResponse)
	})

	t.Run("default error handler answers 500", func(t *testing.T) {
		t.Parallel()
		h := handler.Wrap(func(handler.Context, struct{}) handler.Response {
			return handler.Error(errors.New("secret detail"))
		})

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret detail")
	})
}

func TestJSONError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	resp := handler.JSONError(&handler.ErrorDetail{Code: "resend_too_soon", RetryStrategy: "wait", RetryAfter: 40},
		handler.WithJSONStatus(http.StatusTooManyRequests),
		handler.WithJSONHeader("Retry-After", "40"),
	)
	require.NoError(t, resp.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "40", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var body handler.JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, "resend_too_soon", body.Error.Code)
	assert.Equal(t, 40, body.Error.RetryAfter)
	assert.Nil(t, body.Data)

	rec = httptest.NewRecorder()
	require.NoError(t, handler.JSONError(&handler.ErrorDetail{Code: "internal_error"}).Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
