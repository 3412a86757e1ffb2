package db

import (
	"database/sql"
	"fmt"
)

// Store caches the last fetched entries of every feed so a feed can still be
// shown when its source is unreachable
type Store struct {
	db *sql.DB
}

// Open connects to the SQLite database at path. Run Migrate first.
func Open(path string) (*Store, error) {
	db, err := connection(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
