// Package db provides database connectivity for the closure service.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yourorg/fire-closure/pkg/db/models"
)

// Supported drivers
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Config contains database configuration
type Config struct {
	Driver             string
	Host               string
	Port               int
	Username           string
	Password           string
	Database           string
	Path               string
	MaxConnections     int
	MaxIdleConnections int
	ConnectionLifetime time.Duration
	LogLevel           string
}

// Connection wraps the GORM database connection
type Connection struct {
	db     *gorm.DB
	config *Config
	logger *zap.Logger
}

// NewConnection creates a new database connection
func NewConnection(cfg *Config, zapLogger *zap.Logger) (*Connection, error) {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverMySQL:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.Username,
			cfg.Password,
			cfg.Host,
			cfg.Port,
			cfg.Database,
		)
		dialector = mysql.Open(dsn)
	case DriverSQLite, "":
		dialector = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case "silent":
		logLevel = logger.Silent
	case "error":
		logLevel = logger.Error
	case "info":
		logLevel = logger.Info
	default:
		logLevel = logger.Warn
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if cfg.Driver == DriverMySQL {
		if cfg.MaxConnections > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxConnections)
		}
		if cfg.MaxIdleConnections > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConnections)
		}
		sqlDB.SetConnMaxLifetime(cfg.ConnectionLifetime)
	} else {
		// sqlite allows a single writer and ":memory:" is per connection
		sqlDB.SetMaxOpenConns(1)
	}

	conn := &Connection{
		db:     db,
		config: cfg,
		logger: zapLogger,
	}

	zapLogger.Info("database connection established",
		zap.String("driver", cfg.Driver),
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.String("path", cfg.Path))

	return conn, nil
}

// DB returns the underlying GORM database instance
func (c *Connection) DB() *gorm.DB {
	return c.db
}

// Close closes the database connection
func (c *Connection) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the database connection
func (c *Connection) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// AutoMigrate runs auto-migration for all models
func (c *Connection) AutoMigrate() error {
	return c.db.AutoMigrate(
		&models.Template{},
		&models.Section{},
		&models.Field{},
		&models.IncidentForm{},
		&models.Response{},
		&models.ClosureRecord{},
		&models.CatalogItem{},
	)
}

// Stats returns database connection statistics
type Stats struct {
	MaxOpenConnections int `json:"max_open_connections"`
	OpenConnections    int `json:"open_connections"`
	InUse              int `json:"in_use"`
	Idle               int `json:"idle"`
}

// GetStats returns connection pool statistics
func (c *Connection) GetStats() (*Stats, error) {
	sqlDB, err := c.db.DB()
	if err != nil {
		return nil, err
	}

	stats := sqlDB.Stats()
	return &Stats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
	}, nil
}
