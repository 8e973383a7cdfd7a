package datastore

import (
	"fmt"

	"github.com/lansoscan/lansoscan-go/internal/conf"
	"github.com/lansoscan/lansoscan-go/internal/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// MySQLStore implements the datastore interface for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

func validateMySQLConfig(settings *conf.Settings) error {
	mysqlConf := settings.Output.MySQL
	if mysqlConf.Host == "" || mysqlConf.Database == "" {
		return errors.Newf("mysql host and database must not be empty").
			Category(errors.CategoryConfiguration).
			Component("datastore").
			Build()
	}
	return nil
}

// Open sets up the MySQL database connection
func (store *MySQLStore) Open() error {
	if err := validateMySQLConfig(store.Settings); err != nil {
		return err
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		store.Settings.Output.MySQL.Username, store.Settings.Output.MySQL.Password,
		store.Settings.Output.MySQL.Host, store.Settings.Output.MySQL.Port,
		store.Settings.Output.MySQL.Database)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return errors.Newf("failed to open MySQL database: %w", err).
			Category(errors.CategoryDatabase).
			Context("db_host", store.Settings.Output.MySQL.Host).
			Component("datastore").
			Build()
	}

	store.DB = db
	return performAutoMigration(db, store.Settings.Debug, "MySQL", store.Settings.Output.MySQL.Host)
}

// Close MySQL database connections
func (store *MySQLStore) Close() error {
	if store.DB == nil {
		return errors.Newf("database connection is not initialized").
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}

	sqlDB, err := store.DB.DB()
	if err != nil {
		return errors.Newf("failed to retrieve generic DB object: %w", err).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}

	if err := sqlDB.Close(); err != nil {
		return errors.Newf("failed to close MySQL database: %w", err).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}

	return nil
}
