//nolint:errcheck // testsetup
package tcpostgres

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpapenbr/f1replay-service-go/pkg/db/migrate"
	database "github.com/mpapenbr/f1replay-service-go/pkg/db/postgres"
)

// SetupTestDB starts a postgres container with the migrated raw cache schema
// and returns its URL along with a connection pool
func SetupTestDB() (string, *pgxpool.Pool) {
	ctx := context.Background()
	container, err := StartRawCacheContainer(ctx)
	if err != nil {
		log.Fatal(err)
	}
	dbURL, err := container.URL(ctx)
	if err != nil {
		log.Fatal(err)
	}
	if err = migrate.MigrateDB(dbURL); err != nil {
		log.Fatal(err)
	}
	pool, err := database.InitWithURL(ctx, dbURL)
	if err != nil {
		log.Fatal(err)
	}
	return dbURL, pool
}

func ClearRawSessionTable(pool *pgxpool.Pool) {
	pool.Exec(context.Background(), "delete from raw_session")
}
