package app

import (
	"context"
	"errors"
	"time"

	"spot-perp-alerts/internal/storage"
)

// PruneAlerts deletes audited alerts older than the retention window.
func (a *App) PruneAlerts(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return errors.New("--older-than must be greater than zero")
	}

	store, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	cutoff := time.Now().UTC().Add(-olderThan)
	deleted, err := pruneAlerts(ctx, store, cutoff)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("alert history pruned")
	return nil
}

func pruneAlerts(ctx context.Context, store storage.AlertStore, cutoff time.Time) (int64, error) {
	before, err := store.CountAlerts(ctx)
	if err != nil {
		return 0, err
	}
	if err := store.DeleteAlertsBefore(ctx, cutoff); err != nil {
		return 0, err
	}
	after, err := store.CountAlerts(ctx)
	if err != nil {
		return 0, err
	}
	return before - after, nil
}
