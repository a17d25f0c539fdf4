package httpserver

import "time"

type Config struct {
	Addr              string        `env:"HTTP_ADDR" envDefault:":8080"`               // Listen address
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`   // Bound on reading request headers
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`         // Bound on reading the whole request
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`        // Covers code delivery on the send endpoints
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`        // Keep-alive idle limit
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`     // Drain budget on shutdown
	HealthTimeout     time.Duration `env:"HTTP_HEALTH_CHECK_TIMEOUT" envDefault:"2s"` // Per-dependency readiness check budget
}
