// Package pg wires PostgreSQL for planguard: a pgx pool with retrying
// Connect, goose migrations fed from an embedded filesystem, a health probe
// and error classifiers for *pgconn.PgError.
//
//	pool, err := pg.Connect(ctx, cfg.Postgres)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//	if err := pg.Migrate(ctx, pool, migrations.FS, cfg.Postgres, log); err != nil {
//		return err
//	}
package pg
