package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/finmatter/kestrel/internal/domain"
)

// openSQLite opens a SQLite database using the pure-Go driver.
func openSQLite(cfg domain.RepositoryConfig) (*sql.DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "kestrel.db"
	}

	// Enable WAL mode and foreign keys for better concurrency and integrity
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)

	return db, nil
}
