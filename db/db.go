package db

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to DATABASE_URL. Postgres URLs and DSNs go through the
// postgres driver; "file:" DSNs, "*.db" paths and ":memory:" open SQLite for
// local runs and tests.
func Open(dsn string, log *slog.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database url is empty")
	}

	conn, err := gorm.Open(dialector(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Warn),
		NowFunc:                                  func() time.Time { return time.Now().Round(time.Microsecond) },
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if log != nil {
		log.Info("database connection established", "driver", conn.Dialector.Name())
	}
	return conn, nil
}

func dialector(dsn string) gorm.Dialector {
	if IsSQLite(dsn) {
		return sqlite.Open(dsn)
	}
	return postgres.Open(dsn)
}

// IsSQLite reports whether dsn names a SQLite database.
func IsSQLite(dsn string) bool {
	return dsn == ":memory:" || strings.HasPrefix(dsn, "file:") || strings.HasSuffix(dsn, ".db")
}
