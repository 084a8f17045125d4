// database/database.go
package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"box-mining-service/logger"
	"box-mining-service/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Dialect identifiers supported by Open.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// OneOpenBoxIndex backs the "at most one unopened box per user" rule in the store itself.
const OneOpenBoxIndex = "idx_user_boxes_one_open"

var (
	handleOnce sync.Once
	handle     *gorm.DB
	handleErr  error
)

// Acquire returns the process-wide connection, opening and migrating it on first use.
// Later calls reuse the same handle (or the same error); there is no teardown between requests.
func Acquire(dsn string) (*gorm.DB, error) {
	handleOnce.Do(func() {
		conn, err := Open(dsn)
		if err != nil {
			handleErr = err
			return
		}
		if err := Migrate(conn); err != nil {
			handleErr = err
			return
		}
		handle = conn
	})
	return handle, handleErr
}

func newGormLogger() gormlogger.Interface {
	return gormlogger.New(
		logger.StdLog(),
		gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// Open opens a GORM connection for a postgres or sqlite DSN.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}

	dialect, err := DetectDialect(trimmed)
	if err != nil {
		return nil, err
	}

	var conn *gorm.DB
	switch dialect {
	case DialectPostgres:
		conn, err = gorm.Open(postgres.Open(trimmed), &gorm.Config{Logger: newGormLogger(), TranslateError: true})
	case DialectSQLite:
		if errDir := ensureSQLiteDir(trimmed); errDir != nil {
			return nil, errDir
		}
		conn, err = gorm.Open(sqlite.Open(trimmed), &gorm.Config{Logger: newGormLogger(), TranslateError: true})
	}
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", dialect, err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("db: sql handle: %w", err)
	}
	if dialect == DialectSQLite {
		// sqlite serializes writers anyway; a single connection keeps :memory: databases coherent.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(25)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if errPing := sqlDB.PingContext(pingCtx); errPing != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("db: ping: %w", errPing)
	}
	return conn, nil
}

// DetectDialect infers the dialect from a DSN string.
func DetectDialect(dsn string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres, nil
	case strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") || strings.Contains(lower, "sslmode="):
		return DialectPostgres, nil
	case strings.HasPrefix(lower, "file:"), lower == ":memory:", !strings.Contains(lower, "://"):
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("db: unsupported dsn: %s", dsn)
	}
}

// Migrate creates the box tables and the partial unique index on open boxes.
func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&models.BoxTemplate{},
		&models.UserBox{},
		&models.User{},
	); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	// Both postgres and sqlite accept partial indexes in this form.
	stmt := fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %s ON user_boxes (user_id) WHERE opened = false",
		OneOpenBoxIndex,
	)
	if err := conn.Exec(stmt).Error; err != nil {
		return fmt.Errorf("db: create %s: %w", OneOpenBoxIndex, err)
	}
	return nil
}

func sqlitePath(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	if strings.HasPrefix(strings.ToLower(trimmed), "file:") {
		trimmed = trimmed[len("file:"):]
	}
	if idx := strings.Index(trimmed, "?"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	trimmed = strings.TrimPrefix(trimmed, "//")
	if trimmed == "" || trimmed == ":memory:" {
		return ""
	}
	return trimmed
}

func ensureSQLiteDir(dsn string) error {
	path := sqlitePath(dsn)
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("db: create sqlite dir: %w", err)
	}
	return nil
}
