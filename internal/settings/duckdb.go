package settings

import (
	"database/sql"
	"errors"
	"fmt"
)

// DuckDBBackend stores settings in a key/value table of a DuckDB database.
type DuckDBBackend struct {
	db *sql.DB
}

// NewDuckDBBackend creates the settings table if needed.
func NewDuckDBBackend(db *sql.DB) (*DuckDBBackend, error) {
	if db == nil {
		return nil, errors.New("duckdb connection is nil")
	}
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key  VARCHAR PRIMARY KEY,
		data VARCHAR NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("create settings table: %w", err)
	}
	return &DuckDBBackend{db: db}, nil
}

// Load implements Backend.
func (b *DuckDBBackend) Load(key string) ([]byte, bool, error) {
	var data string
	err := b.db.QueryRow(`SELECT data FROM settings WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(data), true, nil
}

// Save implements Backend.
func (b *DuckDBBackend) Save(key string, data []byte) error {
	_, err := b.db.Exec(`INSERT OR REPLACE INTO settings (key, data) VALUES (?, ?)`, key, string(data))
	return err
}

// Delete implements Backend.
func (b *DuckDBBackend) Delete(key string) error {
	_, err := b.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	return err
}

// Close implements Backend. The connection is owned by the caller.
func (b *DuckDBBackend) Close() error { return nil }
