package roster

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"classwire/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS classes (
	user_id    INTEGER NOT NULL,
	class_id   INTEGER NOT NULL,
	class_name TEXT    NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, class_id)
);
`

// Store persists the last known class list per user so a fresh start can
// rejoin rooms before the first REST fetch completes.
type Store struct {
	db *sql.DB

	mu     sync.RWMutex
	closed bool
}

// OpenStore opens (or creates) the cache database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open roster cache: %w", err)
	}

	// Single connection keeps SQLite writes serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create roster schema: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveClasses replaces the cached class list for a user atomically.
func (s *Store) SaveClasses(userID int, classes []types.Class) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM classes WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to clear cached classes: %w", err)
	}
	for _, c := range classes {
		_, err := tx.Exec(
			"INSERT INTO classes (user_id, class_id, class_name) VALUES (?, ?, ?)",
			userID, c.ID, c.Name)
		if err != nil {
			return fmt.Errorf("failed to cache class %d: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit roster cache: %w", err)
	}
	return nil
}

// LoadClasses returns the cached class list for a user, ordered by class ID.
// An empty cache returns an empty slice, not an error.
func (s *Store) LoadClasses(userID int) ([]types.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(
		"SELECT class_id, class_name FROM classes WHERE user_id = ? ORDER BY class_id",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached classes: %w", err)
	}
	defer rows.Close()

	var classes []types.Class
	for rows.Next() {
		var c types.Class
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan cached class: %w", err)
		}
		classes = append(classes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cached classes: %w", err)
	}
	return classes, nil
}

// Close releases the underlying database. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
