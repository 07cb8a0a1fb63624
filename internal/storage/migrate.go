package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MigrationFiles lists the *.sql files of dir in lexical order.
func MigrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// Migrate executes every migration file of dir. The bundled migrations are
// written to be re-runnable (IF NOT EXISTS).
func (s *Store) Migrate(ctx context.Context, dir string) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	files, err := MigrationFiles(dir)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		sql, readErr := os.ReadFile(f)
		if readErr != nil {
			return nil, fmt.Errorf("read %s: %w", f, readErr)
		}
		if _, execErr := pool.Exec(ctx, string(sql)); execErr != nil {
			return nil, fmt.Errorf("apply %s: %w", filepath.Base(f), execErr)
		}
	}
	return files, nil
}
