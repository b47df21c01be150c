package database

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"coursedesk/internal/config"
	"coursedesk/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrUnsupportedDatabaseURL is returned for URLs that are neither sqlite nor postgres.
var ErrUnsupportedDatabaseURL = errors.New("unsupported database URL format")

// Handle is an open credential database.
type Handle struct {
	DB *gorm.DB
	// Path is the sqlite file backing the database; empty for postgres and
	// in-memory sqlite.
	Path string
}

// Open connects to the configured database and runs auto-migration
func Open(cfg config.DBConfig, log *zap.Logger, debug bool) (*Handle, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dialector, path, err := dialectorFor(cfg.URL)
	if err != nil {
		return nil, err
	}

	gormLogger := logger.Default.LogMode(logger.Silent)
	if debug {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}

	log.Info("credential database ready",
		zap.String("dialect", dialector.Name()),
		zap.String("path", path),
		zap.Int("max_open", cfg.MaxOpenConns))
	return &Handle{DB: db, Path: path}, nil
}

// dialectorFor maps DATABASE_URL to a gorm dialector. An empty URL selects
// the default sqlite file in the application directory.
func dialectorFor(url string) (gorm.Dialector, string, error) {
	switch {
	case url == "":
		dir, err := config.AppDir()
		if err != nil {
			return nil, "", err
		}
		path := filepath.Join(dir, "coursedesk.db")
		// Another process may be writing the credential while we read it.
		return sqlite.Open(path + "?_busy_timeout=5000"), path, nil
	case strings.HasPrefix(url, "sqlite://"):
		dsn := strings.TrimPrefix(url, "sqlite://")
		path := dsn
		if strings.HasPrefix(dsn, ":memory:") || strings.HasPrefix(dsn, "file::memory:") {
			path = ""
		} else if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		return sqlite.Open(dsn), path, nil
	case strings.HasPrefix(url, "postgresql://"), strings.HasPrefix(url, "postgres://"):
		return postgres.Open(url), "", nil
	default:
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedDatabaseURL, url)
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.CredentialProfile{})
}

// Close closes the underlying connection pool
func (h *Handle) Close() error {
	if h == nil || h.DB == nil {
		return nil
	}
	sqlDB, err := h.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
