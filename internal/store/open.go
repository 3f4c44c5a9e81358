package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// DefaultPath returns ~/.kernsim/kernsim.db, creating the directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".kernsim")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", dir, err)
	}
	return filepath.Join(dir, "kernsim.db"), nil
}

// Open opens the SQLite store at dbPath (DefaultPath when empty) and
// applies migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if dbPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		dbPath = p
	}
	st, err := NewSQLiteStore(dbPath, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate %s: %w", dbPath, err)
	}
	logger.Info("database ready", "path", dbPath)
	return st, nil
}
