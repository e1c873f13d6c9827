package sqlite

import (
	"database/sql"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at path and creates the runs table if it
// doesn't exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY,
		run_id TEXT UNIQUE,
		action TEXT,
		correlation_id TEXT,
		target_url TEXT,
		status TEXT DEFAULT 'running',
		result_message TEXT,
		file_path TEXT,
		executor TEXT,
		created_at DATETIME,
		finished_at DATETIME
	)`)

	if err != nil {
		return nil, err
	}

	return db, nil
}
