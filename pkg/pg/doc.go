// Package pg connects to PostgreSQL through pgx/v5 and runs goose migrations
// shipped inside the binary.
//
//	pool, err := pg.Connect(ctx, cfg)
//	defer pool.Close()
//
//	err = pg.Migrate(ctx, pool, cfg, pgstore.Migrations, log)
//
//	err = pg.InTx(ctx, pool, func(tx pgx.Tx) error {
//	    // statements run in one read-committed transaction
//	    return nil
//	})
//
// Healthcheck returns a check for readiness endpoints. IsNotFoundError and
// IsForeignKeyViolationError classify driver errors.
package pg
