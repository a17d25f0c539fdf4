package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/aitoolhub/accountsec/internal/config"
	tfhttp "github.com/aitoolhub/accountsec/modules/twofactor"
	"github.com/aitoolhub/accountsec/pkg/email"
	"github.com/aitoolhub/accountsec/pkg/httpserver"
	"github.com/aitoolhub/accountsec/pkg/logger"
	"github.com/aitoolhub/accountsec/pkg/pg"
	"github.com/aitoolhub/accountsec/pkg/ratelimiter"
	redisconn "github.com/aitoolhub/accountsec/pkg/redis"
	"github.com/aitoolhub/accountsec/pkg/requestid"
	"github.com/aitoolhub/accountsec/pkg/twofactor"
	"github.com/aitoolhub/accountsec/pkg/twofactor/pgstore"
	"github.com/aitoolhub/accountsec/pkg/twofactor/redisstore"
)

var errNoUser = errors.New("no authenticated user")

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadServer()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Server) error {
	log := newLogger(cfg.App)

	keys, err := cfg.Keyring()
	if err != nil {
		return err
	}
	sessions, err := twofactor.NewTokenIssuer([]byte(cfg.SessionSecret), cfg.SessionTTL)
	if err != nil {
		return err
	}

	pool, err := pg.Connect(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()
	store := pgstore.New(pool)

	sender, err := email.NewSender(cfg.Email)
	if err != nil {
		return err
	}
	if !cfg.Email.PostmarkEnabled() {
		log.WarnContext(ctx, "postmark not configured, writing emails to disk",
			slog.String("dir", cfg.Email.DevOutputDir),
		)
	}
	mailer := email.NewCodeMailer(sender,
		email.WithProductName(cfg.Email.ProductName),
		email.WithSendTimeout(cfg.Email.SendTimeout),
		email.WithMailerLogger(log.With(logger.Component("mailer"))),
	)

	checks := map[string]httpserver.Check{"postgres": pg.Healthcheck(pool)}

	var (
		challenges   twofactor.ChallengeStore
		limiterStore ratelimiter.Store
	)
	if cfg.UsesRedis() {
		client, err := redisconn.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()

		challenges = redisstore.New(client, redisstore.WithKeyPrefix(cfg.Redis.KeyPrefix+"challenge:"))
		limiterStore = ratelimiter.NewRedisStore(client, ratelimiter.WithKeyPrefix(cfg.Redis.KeyPrefix+"ratelimit:"))
		checks["redis"] = redisconn.Healthcheck(client)
	} else {
		log.WarnContext(ctx, "challenges and lockouts are kept in memory and not shared between instances")
		mem := ratelimiter.NewMemoryStore()
		defer mem.Close()
		challenges = twofactor.NewMemoryChallengeStore()
		limiterStore = mem
	}

	opts := []twofactor.Option{
		twofactor.WithConfig(cfg.TwoFactor),
		twofactor.WithLogger(log.With(logger.Component("twofactor"))),
		twofactor.WithLimiterStore(limiterStore),
	}
	enroll, err := twofactor.NewEnrollmentManager(store, keys, mailer, opts...)
	if err != nil {
		return err
	}
	challengeMgr, err := twofactor.NewChallengeManager(store, challenges, keys, mailer, sessions, opts...)
	if err != nil {
		return err
	}

	var verifyLimiter *ratelimiter.Bucket
	if n := cfg.VerifyRateLimit; n > 0 {
		verifyLimiter, err = ratelimiter.NewBucket(limiterStore, ratelimiter.PerWindow(n, time.Minute))
		if err != nil {
			return err
		}
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Get("/healthz", httpserver.Health(log, cfg.HTTP.HealthTimeout, nil))
	r.Get("/readyz", httpserver.Health(log, cfg.HTTP.HealthTimeout, checks))
	r.Mount("/v1/2fa", tfhttp.Router(tfhttp.RouterOptions{
		Enrollment:    enroll,
		Challenges:    challengeMgr,
		ResolveUser:   headerUser(cfg.UserHeader),
		VerifyLimiter: verifyLimiter,
		Logger:        log.With(logger.Component("http")),
	}))

	if cfg.SweepInterval > 0 {
		go runSweeper(ctx, log, store, cfg.TwoFactor, cfg.SweepInterval)
	}

	return httpserver.New(cfg.HTTP, log).Run(ctx, r)
}

// headerUser trusts the identity header set by the gateway in front of the service.
func headerUser(name string) tfhttp.UserResolver {
	return func(r *http.Request) (string, error) {
		if id := r.Header.Get(name); id != "" {
			return id, nil
		}
		return "", errNoUser
	}
}

func runSweeper(ctx context.Context, log *slog.Logger, store twofactor.Store, cfg twofactor.Config, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			start := time.Now()
			n, err := twofactor.Sweep(ctx, store, now, cfg)
			if err != nil {
				log.ErrorContext(ctx, "expiry sweep failed", logger.Error(err), logger.Event("sweep"))
				continue
			}
			log.InfoContext(ctx, "expiry sweep finished",
				slog.Int64("deleted", n),
				logger.Duration(time.Since(start)),
				logger.Event("sweep"),
			)
		}
	}
}
