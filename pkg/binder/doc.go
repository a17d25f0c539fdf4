// Package binder decodes HTTP request bodies into typed values.
//
// JSON returns a binder for handler.WithBinder. It requires an
// application/json content type, caps the body size, rejects unknown fields
// and trailing data, and trims surrounding whitespace from every decoded
// string so "  123456 " binds as "123456".
//
//	http.Handle("/verify", handler.Wrap(verify,
//		handler.WithBinder[handler.Context, VerifyRequest](binder.JSON(binder.WithMaxSize(16<<10))),
//	))
//
// Every failure wraps one of ErrMissingContentType, ErrUnsupportedMediaType
// or ErrFailedToParseJSON.
package binder
