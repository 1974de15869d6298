package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// OpenLocalDB opens the on-device store that backs the offline queue.
// Use ":memory:" for an ephemeral store.
func OpenLocalDB(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening local db: %w", err)
	}
	// one writer; also keeps a ":memory:" database alive across calls
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error pinging local db: %w", err)
	}

	if err := ensureLocalSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ensureLocalSchema(db *sqlx.DB) error {
	schema := `
PRAGMA journal_mode = WAL;
CREATE TABLE IF NOT EXISTS kv(
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT DEFAULT CURRENT_TIMESTAMP
);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("error creating local schema: %w", err)
	}
	return nil
}
