package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertObservationSQL = `INSERT INTO observations (
        series_id,
        obs_date,
        value
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (series_id, obs_date) DO UPDATE
    SET value = EXCLUDED.value;`

	loadRangeSQL = `SELECT
        obs_date,
        value
    FROM observations
    WHERE series_id = $1
      AND obs_date >= $2
      AND obs_date <= $3
    ORDER BY obs_date ASC;`

	latestDateSQL = `SELECT MAX(obs_date) FROM observations WHERE series_id = $1;`

	listSeriesIDsSQL = `SELECT DISTINCT series_id FROM observations ORDER BY series_id ASC;`

	insertAlertSQL = `INSERT INTO alerts (
        alert_ts,
        series_id,
        level,
        message
    ) VALUES (
        $1,$2,$3,$4
    ) RETURNING id;`

	listRecentAlertsSQL = `SELECT
        id,
        alert_ts,
        series_id,
        level,
        message
    FROM alerts
    ORDER BY alert_ts DESC
    LIMIT $1;`
)

// StorageError wraps any failure against the persisted state so callers can
// tell storage faults apart from upstream fetch faults.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// ObservationStore defines operations for series persistence.
type ObservationStore interface {
	UpsertObservations(ctx context.Context, seriesID string, rows []Observation) (int, error)
	LoadRange(ctx context.Context, seriesID string, start, end time.Time) ([]Observation, error)
	LatestDate(ctx context.Context, seriesID string) (time.Time, bool, error)
	ListSeriesIDs(ctx context.Context) ([]string, error)
}

// AlertStore defines operations for the append-only alert log.
type AlertStore interface {
	InsertAlert(ctx context.Context, ts time.Time, seriesID, level, message string) error
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
}

// Store aggregates access to observations and alerts.
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

// UpsertObservations inserts-or-replaces each (series_id, obs_date) row and
// returns the number of rows written. Rows are applied in input order, so the
// last duplicate of a date within one call wins. Re-running with identical
// input leaves identical state.
func (s *Store) UpsertObservations(ctx context.Context, seriesID string, rows []Observation) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(upsertObservationSQL, seriesID, row.Date, row.Value)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	written := 0
	for range rows {
		if _, execErr := results.Exec(); execErr != nil {
			return written, storageErr("upsert observations", execErr)
		}
		written++
	}
	return written, nil
}

// LoadRange returns observations for a series within [start, end], ascending
// by date. A series with no data in range yields an empty slice, not an error.
func (s *Store) LoadRange(ctx context.Context, seriesID string, start, end time.Time) ([]Observation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, loadRangeSQL, seriesID, start, end)
	if queryErr != nil {
		return nil, storageErr("load range", queryErr)
	}
	defer rows.Close()

	obs := make([]Observation, 0)
	for rows.Next() {
		var o Observation
		if scanErr := rows.Scan(&o.Date, &o.Value); scanErr != nil {
			return nil, storageErr("scan observation", scanErr)
		}
		obs = append(obs, o)
	}
	if rows.Err() != nil {
		return nil, storageErr("load range", rows.Err())
	}
	return obs, nil
}

// LatestDate returns the maximum stored obs_date for the series. The boolean
// is false when the series has no rows at all.
func (s *Store) LatestDate(ctx context.Context, seriesID string) (time.Time, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return time.Time{}, false, err
	}

	var latest *time.Time
	if scanErr := pool.QueryRow(ctx, latestDateSQL, seriesID).Scan(&latest); scanErr != nil {
		return time.Time{}, false, storageErr("latest date", scanErr)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return *latest, true, nil
}

// ListSeriesIDs returns every series id with at least one observation.
func (s *Store) ListSeriesIDs(ctx context.Context) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSeriesIDsSQL)
	if queryErr != nil {
		return nil, storageErr("list series ids", queryErr)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, storageErr("scan series id", scanErr)
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, storageErr("list series ids", rows.Err())
	}
	return ids, nil
}

// InsertAlert appends one alert row. Failures are surfaced to the caller,
// never swallowed: the alert log is the externally visible signal.
func (s *Store) InsertAlert(ctx context.Context, ts time.Time, seriesID, level, message string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var id int64
	if scanErr := pool.QueryRow(ctx, insertAlertSQL, ts, seriesID, level, message).Scan(&id); scanErr != nil {
		return storageErr("insert alert", scanErr)
	}
	return nil
}

// ListRecentAlerts lists the most recent alerts, newest first.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, storageErr("list recent alerts", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		if scanErr := rows.Scan(&rec.ID, &rec.AlertTS, &rec.SeriesID, &rec.Level, &rec.Message); scanErr != nil {
			return nil, storageErr("scan alert", scanErr)
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, storageErr("list recent alerts", rows.Err())
	}
	return alerts, nil
}

var _ ObservationStore = (*Store)(nil)
var _ AlertStore = (*Store)(nil)
