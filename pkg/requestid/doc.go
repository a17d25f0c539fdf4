// Package requestid attaches a correlation id to every HTTP request.
//
// Middleware reuses a well-formed X-Request-ID supplied by the client and
// otherwise generates a UUID. The id is echoed in the response, stored in the
// request context and picked up by the logger through LoggerExtractor.
//
// Code dispatch uses the same id as its deduplication key, so a client that
// retries a send with the same header gets one email, not two.
//
//	r := chi.NewRouter()
//	r.Use(requestid.Middleware)
//
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
package requestid
