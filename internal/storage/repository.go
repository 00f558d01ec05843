package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertAlertSQL = `INSERT INTO alerts (
        symbol,
        kind,
        rule_id,
        metric_pct,
        threshold_pct,
        direction,
        notable,
        fired_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (symbol, rule_id, fired_at) DO UPDATE
    SET metric_pct    = EXCLUDED.metric_pct,
        threshold_pct = EXCLUDED.threshold_pct,
        direction     = EXCLUDED.direction,
        notable       = EXCLUDED.notable
    RETURNING id, symbol, kind, rule_id, metric_pct, threshold_pct, direction, notable, fired_at, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        symbol,
        kind,
        rule_id,
        metric_pct,
        threshold_pct,
        direction,
        notable,
        fired_at,
        created_at
    FROM alerts
    ORDER BY fired_at DESC
    LIMIT $1;`

	listAlertsBetweenSQL = `SELECT
        id,
        symbol,
        kind,
        rule_id,
        metric_pct,
        threshold_pct,
        direction,
        notable,
        fired_at,
        created_at
    FROM alerts
    WHERE fired_at >= $1
      AND fired_at < $2
    ORDER BY fired_at;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	countAlertsSQL = `SELECT COUNT(*) FROM alerts;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
	CountAlerts(ctx context.Context) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store provides postgres-backed alert auditing.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.Symbol,
		alert.Kind,
		alert.RuleID,
		alert.MetricPct.String(),
		alert.ThresholdPct.String(),
		alert.Direction,
		alert.Notable,
		alert.FiredAt,
	)

	rec, scanErr := scanAlertRecord(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlertRecords(rows, limit)
}

// ListAlertsBetween lists alerts within a time window ordered by fire time.
func (s *Store) ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts between: %w", queryErr)
	}
	defer rows.Close()

	return collectAlertRecords(rows, 0)
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

// CountAlerts counts stored alert records.
func (s *Store) CountAlerts(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countAlertsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count alerts: %w", scanErr)
	}
	return count, nil
}

func collectAlertRecords(rows pgx.Rows, sizeHint int) ([]AlertRecord, error) {
	alerts := make([]AlertRecord, 0, sizeHint)
	for rows.Next() {
		rec, err := scanAlertRecord(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanAlertRecord(row pgx.Row) (AlertRecord, error) {
	var (
		rec          AlertRecord
		metricStr    string
		thresholdStr string
	)

	if err := row.Scan(
		&rec.ID,
		&rec.Symbol,
		&rec.Kind,
		&rec.RuleID,
		&metricStr,
		&thresholdStr,
		&rec.Direction,
		&rec.Notable,
		&rec.FiredAt,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	var convErr error
	rec.MetricPct, convErr = decimal.NewFromString(metricStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse metric pct: %w", convErr)
	}
	rec.ThresholdPct, convErr = decimal.NewFromString(thresholdStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse threshold pct: %w", convErr)
	}

	return rec, nil
}

var (
	_ AlertStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
