package migrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/f1replay-service-go/log"
	"github.com/mpapenbr/f1replay-service-go/pkg/config"
	"github.com/mpapenbr/f1replay-service-go/pkg/db/migrate"
	"github.com/mpapenbr/f1replay-service-go/pkg/utils"
)

var ErrNoPostgres = errors.New("raw cache url is not a postgres url")

func NewMigrateCmd() *cobra.Command {
	var drop bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "performs the migration of the postgres raw cache schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.SetupLogger(os.Stderr); err != nil {
				return err
			}
			return startMigration(cmd.Context(), drop)
		},
	}
	cmd.Flags().BoolVar(&drop, "drop", false, "drop the schema before migrating")
	return cmd
}

func startMigration(ctx context.Context, drop bool) error {
	postgresAddr := utils.ExtractFromDBURL(config.RawCacheURL)
	if postgresAddr == "" {
		return fmt.Errorf("%w: %s", ErrNoPostgres, config.RawCacheURL)
	}
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}
	if err = utils.WaitForTCP(ctx, postgresAddr, timeout); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}

	dbURL := prepareURLForDB(config.RawCacheURL)
	if drop {
		log.Info("Dropping raw cache schema")
		if err := migrate.DropDB(dbURL); err != nil {
			return err
		}
	}
	return migrate.MigrateDB(dbURL)
}

func prepareURLForDB(url string) string {
	url = strings.Replace(url, "postgres://", "postgresql://", 1)
	options := "sslmode="
	if strings.Contains(url, options) {
		return url
	}
	if strings.Contains(url, "?") {
		return url + "&sslmode=disable"
	}
	return url + "?sslmode=disable"
}
