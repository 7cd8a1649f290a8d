package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// Pure Go SQLite driver, registered as "sqlite"
	_ "modernc.org/sqlite"

	"github.com/drallgood/book-manager/internal/config"
	"github.com/drallgood/book-manager/internal/logger"
)

// DatabaseDriver opens a gorm connection for one database family
type DatabaseDriver interface {
	Dialector(cfg *config.DatabaseConfig) gorm.Dialector
	Prepare(cfg *config.DatabaseConfig) error
	ConfigurePool(db *sql.DB, cfg *config.DatabaseConfig)
	AfterConnect(db *gorm.DB, log *logger.Logger)
}

// SQLiteDriver uses the CGO sqlite3 driver
type SQLiteDriver struct{}

func (SQLiteDriver) Dialector(cfg *config.DatabaseConfig) gorm.Dialector {
	return sqlite.Open(cfg.Path)
}

func (SQLiteDriver) Prepare(cfg *config.DatabaseConfig) error {
	return ensureDir(cfg.Path)
}

func (SQLiteDriver) ConfigurePool(db *sql.DB, _ *config.DatabaseConfig) {
	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)
}

func (SQLiteDriver) AfterConnect(db *gorm.DB, log *logger.Logger) {
	applySQLitePragmas(db, log)
}

// PureSQLiteDriver uses the CGO-free modernc.org/sqlite driver
type PureSQLiteDriver struct {
	SQLiteDriver
}

func (PureSQLiteDriver) Dialector(cfg *config.DatabaseConfig) gorm.Dialector {
	return sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        cfg.Path,
	}
}

// PostgreSQLDriver implements DatabaseDriver for PostgreSQL
type PostgreSQLDriver struct{}

func (PostgreSQLDriver) Dialector(cfg *config.DatabaseConfig) gorm.Dialector {
	return postgres.Open(cfg.DSN())
}

func (PostgreSQLDriver) Prepare(*config.DatabaseConfig) error { return nil }

func (PostgreSQLDriver) ConfigurePool(db *sql.DB, cfg *config.DatabaseConfig) {
	configureServerPool(db, cfg)
}

func (PostgreSQLDriver) AfterConnect(*gorm.DB, *logger.Logger) {}

// MySQLDriver implements DatabaseDriver for MySQL and MariaDB
type MySQLDriver struct{}

func (MySQLDriver) Dialector(cfg *config.DatabaseConfig) gorm.Dialector {
	return mysql.Open(cfg.DSN())
}

func (MySQLDriver) Prepare(*config.DatabaseConfig) error { return nil }

func (MySQLDriver) ConfigurePool(db *sql.DB, cfg *config.DatabaseConfig) {
	configureServerPool(db, cfg)
}

func (MySQLDriver) AfterConnect(*gorm.DB, *logger.Logger) {}

// GetDatabaseDriver returns the driver for the configured database
func GetDatabaseDriver(cfg *config.DatabaseConfig) (DatabaseDriver, error) {
	switch cfg.Type {
	case config.DatabaseTypeSQLite:
		if cfg.PureGo {
			return PureSQLiteDriver{}, nil
		}
		return SQLiteDriver{}, nil
	case config.DatabaseTypePostgreSQL:
		return PostgreSQLDriver{}, nil
	case config.DatabaseTypeMySQL, config.DatabaseTypeMariaDB:
		return MySQLDriver{}, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// Connect opens and configures a gorm connection
func Connect(cfg *config.DatabaseConfig, log *logger.Logger) (*gorm.DB, error) {
	driver, err := GetDatabaseDriver(cfg)
	if err != nil {
		return nil, err
	}

	if err := driver.Prepare(cfg); err != nil {
		return nil, err
	}

	db, err := gorm.Open(driver.Dialector(cfg), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Type, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	driver.ConfigurePool(sqlDB, cfg)
	driver.AfterConnect(db, log)

	return db, nil
}

func configureServerPool(db *sql.DB, cfg *config.DatabaseConfig) {
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
}

func applySQLitePragmas(db *gorm.DB, log *logger.Logger) {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if err := db.Exec(pragma).Error; err != nil {
			log.Warn("Failed to apply SQLite pragma", map[string]interface{}{
				"pragma": pragma,
				"error":  err.Error(),
			})
		}
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}
