package app

import (
	"context"
	"testing"
	"time"

	"spot-perp-alerts/internal/storage"
)

type stubAlertStore struct {
	count   int64
	expired int64
	cutoff  time.Time
}

func (s *stubAlertStore) InsertAlert(_ context.Context, alert storage.AlertRecord) (storage.AlertRecord, error) {
	return alert, nil
}

func (s *stubAlertStore) ListRecentAlerts(context.Context, int) ([]storage.AlertRecord, error) {
	return nil, nil
}

func (s *stubAlertStore) ListAlertsBetween(context.Context, time.Time, time.Time) ([]storage.AlertRecord, error) {
	return nil, nil
}

func (s *stubAlertStore) DeleteAlertsBefore(_ context.Context, olderThan time.Time) error {
	s.cutoff = olderThan
	s.count -= s.expired
	return nil
}

func (s *stubAlertStore) CountAlerts(context.Context) (int64, error) {
	return s.count, nil
}

func TestPruneAlertsReportsDeleted(t *testing.T) {
	store := &stubAlertStore{count: 10, expired: 4}
	cutoff := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	deleted, err := pruneAlerts(context.Background(), store, cutoff)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 4 {
		t.Fatalf("expected 4 deleted records, got %d", deleted)
	}
	if !store.cutoff.Equal(cutoff) {
		t.Fatalf("delete must use the requested cutoff, got %s", store.cutoff)
	}
}

func TestPruneAlertsNothingExpired(t *testing.T) {
	store := &stubAlertStore{count: 3}

	deleted, err := pruneAlerts(context.Background(), store, time.Now().UTC())
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected no deletions, got %d", deleted)
	}
}
