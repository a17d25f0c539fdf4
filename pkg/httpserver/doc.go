// Package httpserver runs the service's HTTP handler with timeouts taken from
// Config and a bounded graceful shutdown.
//
// Run blocks until ctx is cancelled or the listener fails. Callers own signal
// handling, usually through signal.NotifyContext in main. Errors wrap
// ErrStart or ErrShutdown.
//
// Health serves liveness and readiness from named dependency checks:
//
//	r.Get("/healthz", httpserver.Health(log, cfg.HealthTimeout, map[string]httpserver.Check{
//		"postgres": pg.Healthcheck(pool),
//		"redis":    redis.Healthcheck(client),
//	}))
package httpserver
