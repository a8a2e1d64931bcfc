package db

import (
	"database/sql"

	"github.com/cyverse-de/dbutil"
	"github.com/cyverse/compute-qms/internal/model"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Init establishes a connection to a postgres database and wraps it in a GORM handle with tracing enabled.
func Init(driver, dbURI string) (*sql.DB, *gorm.DB, error) {
	wrapMsg := "unable to initialize the database connection"

	connector, err := dbutil.NewDefaultConnector("1m")
	if err != nil {
		return nil, nil, errors.Wrap(err, wrapMsg)
	}

	sqlDB, err := connector.Connect(driver, dbURI)
	if err != nil {
		return nil, nil, errors.Wrap(err, wrapMsg)
	}

	gormDB, err := gorm.Open(
		postgres.New(postgres.Config{Conn: sqlDB}),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Warn)},
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, wrapMsg)
	}

	if err = gormDB.Use(otelgorm.NewPlugin()); err != nil {
		return nil, nil, errors.Wrap(err, wrapMsg)
	}

	return sqlDB, gormDB, nil
}

// Models lists every model persisted by the GORM store, in dependency order.
var Models = []any{
	&model.UserQuota{},
	&model.OwnershipRecord{},
	&model.TokenTransaction{},
	&model.UserContract{},
	&model.TokenRequest{},
}

// AutoMigrate creates or updates the tables used by the GORM store. The postgres deployment uses the SQL migrations
// instead; this is used for embedded SQL databases.
func AutoMigrate(db *gorm.DB) error {
	return errors.Wrap(db.AutoMigrate(Models...), "unable to migrate the database schema")
}
