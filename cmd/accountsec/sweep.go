package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/aitoolhub/accountsec/internal/config"
	"github.com/aitoolhub/accountsec/pkg/pg"
	"github.com/aitoolhub/accountsec/pkg/twofactor"
	"github.com/aitoolhub/accountsec/pkg/twofactor/pgstore"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired email codes and abandoned TOTP setups",
		Long: `Delete pending email codes that expired or were consumed and TOTP
secrets that were never confirmed within TWOFACTOR_PENDING_SECRET_TTL.
Suitable for a cron job when serve runs with ACCOUNTSEC_SWEEP_INTERVAL=0.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadMaintenance()
			if err != nil {
				return err
			}
			log := newLogger(cfg.App)
			ctx := cmd.Context()

			pool, err := pg.Connect(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := twofactor.Sweep(ctx, pgstore.New(pool), time.Now(), cfg.TwoFactor)
			if err != nil {
				return err
			}
			log.InfoContext(ctx, "expiry sweep finished", slog.Int64("deleted", n))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d rows\n", n)
			return err
		},
	}
}
