// Package pgstore implements twofactor.Store on PostgreSQL.
//
// Checks that must not race are single conditional statements or run
// inside a transaction holding a row lock. Apply Migrations with pg.Migrate
// before use:
//
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations, log); err != nil {
//		return err
//	}
//	store := pgstore.New(pool)
package pgstore
