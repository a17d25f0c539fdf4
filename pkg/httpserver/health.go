package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/aitoolhub/accountsec/pkg/logger"
)

// Check tests one dependency.
type Check func(ctx context.Context) error

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health returns a handler that runs every check concurrently, each bounded
// by timeout. It answers 200 when all pass and 503 otherwise. With no checks
// it is a liveness check.
func Health(log *slog.Logger, timeout time.Duration, checks map[string]Check) http.HandlerFunc {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	names := slices.Sorted(maps.Keys(checks))

	return func(w http.ResponseWriter, r *http.Request) {
		report := healthReport{Status: "ok"}
		status := http.StatusOK

		if len(names) > 0 {
			results := make([]error, len(names))
			var wg sync.WaitGroup
			for i, name := range names {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ctx, cancel := context.WithTimeout(r.Context(), timeout)
					defer cancel()
					results[i] = checks[name](ctx)
				}()
			}
			wg.Wait()

			report.Checks = make(map[string]string, len(names))
			for i, name := range names {
				if err := results[i]; err != nil {
					log.WarnContext(r.Context(), "readiness check failed",
						slog.String("check", name),
						logger.Error(err),
					)
					report.Checks[name] = "fail"
					report.Status = "unavailable"
					status = http.StatusServiceUnavailable
					continue
				}
				report.Checks[name] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	}
}
