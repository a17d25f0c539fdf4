package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aitoolhub/accountsec/internal/config"
	"github.com/aitoolhub/accountsec/pkg/pg"
	"github.com/aitoolhub/accountsec/pkg/twofactor/pgstore"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply or roll back the database schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}

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

			switch action {
			case "down":
				return pg.Rollback(ctx, pool, cfg.Postgres, pgstore.Migrations, log)
			case "version":
				v, err := pg.Version(ctx, pool, cfg.Postgres, pgstore.Migrations, log)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
				return err
			default:
				return pg.Migrate(ctx, pool, cfg.Postgres, pgstore.Migrations, log)
			}
		},
	}
}
