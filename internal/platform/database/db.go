package database

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"agencycrm/internal/platform/config"
)

// Open opens the sqlite database described by cfg and verifies the connection.
// A ":memory:" URL only makes sense with MaxConnections set to 1, since every
// connection would otherwise get its own empty database.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.URL))
	if err != nil {
		return nil, err
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(time.Hour)
	if cfg.URL == ":memory:" {
		db.SetConnMaxLifetime(0)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func dsn(url string) string {
	if url == ":memory:" {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "_busy_timeout=5000&_journal_mode=WAL"
}
