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
	insertReadingSQL = `INSERT INTO readings (
        taken_at,
        voltage_rms,
        current_rms,
        power_kw,
        source
    ) VALUES ($1,$2,$3,$4,$5);`

	listReadingsBetweenSQL = `SELECT
        id,
        taken_at,
        voltage_rms,
        current_rms,
        power_kw,
        source
    FROM readings
    WHERE taken_at >= $1
      AND taken_at < $2
    ORDER BY taken_at;`

	deleteReadingsBeforeSQL = `DELETE FROM readings WHERE taken_at < $1;`

	upsertDailyUsageSQL = `INSERT INTO daily_usage (
        day,
        energy_kwh,
        cost,
        samples
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (day) DO UPDATE
    SET energy_kwh = daily_usage.energy_kwh + EXCLUDED.energy_kwh,
        cost       = daily_usage.cost + EXCLUDED.cost,
        samples    = daily_usage.samples + EXCLUDED.samples,
        closed_at  = now();`

	listRecentDailyUsageSQL = `SELECT
        day,
        energy_kwh::text,
        cost::text,
        samples,
        closed_at
    FROM daily_usage
    ORDER BY day DESC
    LIMIT $1;`

	insertAdvisoryEventSQL = `INSERT INTO advisory_events (
        advisory_type,
        kind,
        severity,
        message,
        power_kw,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id;`

	listRecentAdvisoryEventsSQL = `SELECT
        id,
        advisory_type,
        kind,
        severity,
        message,
        power_kw,
        created_at
    FROM advisory_events
    ORDER BY created_at DESC
    LIMIT $1;`
)

// ReadingStore archives raw samples.
type ReadingStore interface {
	InsertReading(ctx context.Context, rec ReadingRecord) error
	ListReadingsBetween(ctx context.Context, from, to time.Time) ([]ReadingRecord, error)
	DeleteReadingsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// DailyUsageStore archives closed accounting days.
type DailyUsageStore interface {
	UpsertDailyUsage(ctx context.Context, usage DailyUsage) error
	ListRecentDailyUsage(ctx context.Context, limit int) ([]DailyUsage, error)
}

// AdvisoryStore records advisory transitions.
type AdvisoryStore interface {
	InsertAdvisoryEvent(ctx context.Context, ev AdvisoryEvent) (int64, error)
	ListRecentAdvisoryEvents(ctx context.Context, limit int) ([]AdvisoryEvent, error)
}

// Store aggregates access to readings, daily totals and advisory events.
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

// InsertReading archives one sample.
func (s *Store) InsertReading(ctx context.Context, rec ReadingRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, insertReadingSQL,
		rec.TakenAt,
		rec.VoltageRMS,
		rec.CurrentRMS,
		rec.PowerKW,
		rec.Source,
	); execErr != nil {
		return fmt.Errorf("insert reading: %w", execErr)
	}
	return nil
}

// ListReadingsBetween lists samples within [from, to).
func (s *Store) ListReadingsBetween(ctx context.Context, from, to time.Time) ([]ReadingRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listReadingsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list readings between: %w", queryErr)
	}
	defer rows.Close()

	records := make([]ReadingRecord, 0)
	for rows.Next() {
		var rec ReadingRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.TakenAt,
			&rec.VoltageRMS,
			&rec.CurrentRMS,
			&rec.PowerKW,
			&rec.Source,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// DeleteReadingsBefore prunes archived samples and reports how many were removed.
func (s *Store) DeleteReadingsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteReadingsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete readings before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// UpsertDailyUsage records a closed day. Closing the same day twice (for
// example after a restart) adds to the stored totals.
func (s *Store) UpsertDailyUsage(ctx context.Context, usage DailyUsage) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertDailyUsageSQL,
		usage.Day,
		usage.EnergyKWh.String(),
		usage.Cost.String(),
		usage.Samples,
	); execErr != nil {
		return fmt.Errorf("upsert daily usage: %w", execErr)
	}
	return nil
}

// ListRecentDailyUsage lists the most recent days, newest first.
func (s *Store) ListRecentDailyUsage(ctx context.Context, limit int) ([]DailyUsage, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentDailyUsageSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list daily usage: %w", queryErr)
	}
	defer rows.Close()

	out := make([]DailyUsage, 0, limit)
	for rows.Next() {
		usage, scanErr := scanDailyUsage(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, usage)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// InsertAdvisoryEvent persists an advisory transition.
func (s *Store) InsertAdvisoryEvent(ctx context.Context, ev AdvisoryEvent) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var id int64
	if scanErr := pool.QueryRow(ctx, insertAdvisoryEventSQL,
		ev.Type,
		ev.Kind,
		ev.Severity,
		ev.Message,
		ev.PowerKW,
		ev.CreatedAt,
	).Scan(&id); scanErr != nil {
		return 0, fmt.Errorf("insert advisory event: %w", scanErr)
	}
	return id, nil
}

// ListRecentAdvisoryEvents lists the latest advisory transitions.
func (s *Store) ListRecentAdvisoryEvents(ctx context.Context, limit int) ([]AdvisoryEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAdvisoryEventsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list advisory events: %w", queryErr)
	}
	defer rows.Close()

	events := make([]AdvisoryEvent, 0, limit)
	for rows.Next() {
		var ev AdvisoryEvent
		if err := rows.Scan(
			&ev.ID,
			&ev.Type,
			&ev.Kind,
			&ev.Severity,
			&ev.Message,
			&ev.PowerKW,
			&ev.CreatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

func scanDailyUsage(rows pgx.Rows) (DailyUsage, error) {
	var (
		day       time.Time
		energyStr string
		costStr   string
		samples   int
		closedAt  time.Time
	)
	if err := rows.Scan(&day, &energyStr, &costStr, &samples, &closedAt); err != nil {
		return DailyUsage{}, err
	}

	energy, err := decimal.NewFromString(energyStr)
	if err != nil {
		return DailyUsage{}, fmt.Errorf("parse energy: %w", err)
	}
	cost, err := decimal.NewFromString(costStr)
	if err != nil {
		return DailyUsage{}, fmt.Errorf("parse cost: %w", err)
	}

	return DailyUsage{
		Day:       day,
		EnergyKWh: energy,
		Cost:      cost,
		Samples:   samples,
		ClosedAt:  closedAt,
	}, nil
}

var (
	_ ReadingStore    = (*Store)(nil)
	_ DailyUsageStore = (*Store)(nil)
	_ AdvisoryStore   = (*Store)(nil)
)
