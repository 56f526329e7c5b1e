package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/orris-inc/subsync/internal/shared/constants"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

func TestNewManager_StrategySelection(t *testing.T) {
	log := logger.NewNopLogger()

	assert.Equal(t, "gorm_auto_migrate", NewManager(constants.EnvProduction, "sqlite", "", log).GetStrategy().GetName())
	assert.Equal(t, "gorm_auto_migrate", NewManager(constants.EnvDevelopment, "mysql", "", log).GetStrategy().GetName())
	assert.Equal(t, "goose", NewManager(constants.EnvProduction, "mysql", "", log).GetStrategy().GetName())
}

func TestGormAutoMigrateStrategy_CreatesTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	m := NewManagerWithStrategy(NewGormAutoMigrateStrategy(logger.NewNopLogger()), logger.NewNopLogger())
	require.NoError(t, m.Migrate(db))

	for _, table := range []string{
		constants.TableUsers,
		constants.TableUserSubscriptions,
		constants.TableOrphanedSubscriptions,
		constants.TableProcessedWebhookEvents,
	} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestScripts_AreOrderedAndComplete(t *testing.T) {
	migrations, err := Scripts()
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	for i, m := range migrations {
		assert.Equal(t, int64(i+1), m.Version)
	}
}
