package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Connection struct {
	driverName string
	driver     *gorm.DB
}

// Open connects to the database and migrates the result proxy schema
func Open(driverName, dsn string) (*Connection, error) {
	var dialector gorm.Dialector
	switch driverName {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driverName)
	}

	driver, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driverName, err)
	}

	if driverName == DriverSQLite {
		// sqlite serializes writers, a single connection avoids lock errors
		sqlDB, err := driver.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve db driver: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	conn := NewConnectionFromGorm(driverName, driver)
	if err := conn.Migrate(); err != nil {
		return nil, err
	}
	log.Info().Str("driver", driverName).Msg("Database ready")
	return conn, nil
}

func NewConnectionFromGorm(driverName string, driver *gorm.DB) *Connection {
	return &Connection{driverName: driverName, driver: driver}
}

func (c *Connection) Migrate() error {
	if err := c.driver.AutoMigrate(&JwtRecord{}, &ResultNameRecord{}, &ResultDocument{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (c *Connection) Ping(ctx context.Context) error {
	sqlDB, err := c.driver.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve db driver: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (c *Connection) Close() error {
	sqlDB, err := c.driver.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve db driver: %w", err)
	}
	return sqlDB.Close()
}

func (c *Connection) Sql() *gorm.DB {
	return c.driver
}
