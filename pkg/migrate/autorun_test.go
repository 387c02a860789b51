package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/partnerledger-backend/internal/testdb"
	"github.com/angelmondragon/partnerledger-backend/pkg/config"
	"github.com/angelmondragon/partnerledger-backend/pkg/migrate"
)

func autorunConfig(env string, flag bool) *config.Config {
	cfg := &config.Config{}
	cfg.App.Env = env
	cfg.DB.Driver = config.DBDriverSQLite
	cfg.FeatureFlags.AutoMigrate = flag
	return cfg
}

func TestMaybeRunDevRefusesProd(t *testing.T) {
	err := migrate.MaybeRunDev(context.Background(), autorunConfig(config.AppEnvProd, true), nil, nil)
	assert.ErrorIs(t, err, migrate.ErrAutoMigrateInProd)
}

func TestMaybeRunDevSkipsWithoutFlagOrOutsideDev(t *testing.T) {
	// a nil client would panic if either call tried to migrate
	assert.NoError(t, migrate.MaybeRunDev(context.Background(), autorunConfig(config.AppEnvDev, false), nil, nil))
	assert.NoError(t, migrate.MaybeRunDev(context.Background(), autorunConfig("staging", true), nil, nil))
	assert.NoError(t, migrate.MaybeRunDev(context.Background(), autorunConfig(config.AppEnvProd, false), nil, nil))
}

func TestMaybeRunDevAppliesSQLiteSchemaIdempotently(t *testing.T) {
	client := testdb.New(t)
	cfg := autorunConfig(config.AppEnvDev, true)

	require.NoError(t, migrate.MaybeRunDev(context.Background(), cfg, nil, client))
	assert.True(t, client.DB().Migrator().HasTable("outbox_events"))
	assert.True(t, client.DB().Migrator().HasTable("payouts"))
}
