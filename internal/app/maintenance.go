package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Migrate applies the SQL files under database.migrations_path.
func (a *App) Migrate(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; nothing to migrate")
	}
	if closeStore != nil {
		defer closeStore()
	}

	applied, err := store.Migrate(ctx, a.Config.Database.MigrationsPath)
	if err != nil {
		return err
	}
	for _, f := range applied {
		a.Logger.Info().Str("file", filepath.Base(f)).Msg("migration applied")
	}
	return nil
}

// Prune deletes archived readings older than olderThan.
func (a *App) Prune(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return errors.New("--older-than must be positive")
	}
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; nothing to prune")
	}
	if closeStore != nil {
		defer closeStore()
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	removed, err := store.DeleteReadingsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "removed %d readings taken before %s\n", removed, cutoff.Format(time.RFC3339))
	return nil
}
