package repository

import (
	"testing"

	"github.com/nimasrn/report-dispatcher/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testDB struct {
	*pg.DB
	rawDB *gorm.DB
}

// AllEntities lists every table owned by this package, in migration order.
func AllEntities() []any {
	return []any{&ReportEntity{}, &DeliveryLogEntity{}, &AutomaticDeliveryEntity{}, &SettingEntity{}}
}

func setupTestDB(t *testing.T) *testDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	err = db.AutoMigrate(AllEntities()...)
	require.NoError(t, err)

	return &testDB{
		DB:    pg.New(db, db),
		rawDB: db,
	}
}
