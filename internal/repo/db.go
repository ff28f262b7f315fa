// Package repo implements the data persistence layer for domain entities,
// backed by GORM. The store plays the role of a document store keyed by user
// id and file id; every write is a single statement so concurrent updates
// never lose increments. This file contains database bootstrapping helpers
// for SQLite (pure Go driver) and schema migrations.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/tbourn/filegate-bot/internal/domain"
)

// connPragmas are attached to the DSN so every pooled connection gets them,
// not only the first one.
var connPragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// maxOpenConns bounds the pool.
const maxOpenConns = 10

// sqliteDSN appends connPragmas to path as _pragma parameters.
func sqliteDSN(path string) string {
	q := make([]string, 0, len(connPragmas))
	for _, p := range connPragmas {
		q = append(q, "_pragma="+p)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(q, "&")
}

// OpenSQLite opens (or creates) the SQLite database at path with WAL
// journaling, foreign keys and a 5s busy timeout on every connection. Extra
// GORM options (e.g. a silent logger in tests) may be supplied.
func OpenSQLite(path string, opts ...gorm.Option) (*gorm.DB, error) {
	// A missing parent directory surfaces as "out of memory (14)" from the
	// driver on some platforms; report it plainly instead.
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	if len(opts) == 0 {
		opts = []gorm.Option{&gorm.Config{}}
	}
	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), opts...)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxOpenConns)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// AutoMigrate creates or updates the users and files tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.FileEntry{},
	)
}
