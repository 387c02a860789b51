package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/partnerledger-backend/pkg/config"
	"github.com/angelmondragon/partnerledger-backend/pkg/db"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
)

// ErrAutoMigrateInProd is returned when the auto-migrate flag is left on in a
// prod deploy; prod schema changes go through cmd/migrate.
var ErrAutoMigrateInProd = errors.New("auto-migrate is not allowed in prod")

// MaybeRunDev brings the schema up to date at boot when running in dev with
// the auto-migrate flag on. Postgres goes through goose; sqlite gets the
// mirrored schema.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	flagged := cfg.FeatureFlags.AutoMigrate
	switch {
	case flagged && cfg.App.IsProd():
		return ErrAutoMigrateInProd
	case !flagged || !cfg.App.IsDev():
		return nil
	}
	if logg == nil {
		logg = logger.Nop()
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"env":    cfg.App.Env,
		"driver": cfg.DB.Driver,
	})

	if cfg.DB.IsSQLite() {
		logg.Info(ctx, "auto-migrate: applying sqlite schema")
		return ApplySQLiteSchema(ctx, client.DB())
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	applied, err := Apply(ctx, sqlDB, DefaultDir, "up")
	if err != nil {
		return fmt.Errorf("auto-migrate up: %w", err)
	}
	versions := make([]int64, len(applied))
	for i, a := range applied {
		versions[i] = a.Version
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"dir":              DefaultDir,
		"applied_versions": versions,
	}), "auto-migrate: goose up complete")
	return nil
}
