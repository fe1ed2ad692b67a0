package storage

import (
	"context"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS observations (
        series_id text NOT NULL,
        obs_date  date NOT NULL,
        value     double precision NOT NULL,
        PRIMARY KEY (series_id, obs_date)
    );`,
	`CREATE TABLE IF NOT EXISTS alerts (
        id        bigserial PRIMARY KEY,
        alert_ts  timestamptz NOT NULL,
        series_id text NOT NULL,
        level     text NOT NULL,
        message   text NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_alert_ts ON alerts (alert_ts);`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_series_id ON alerts (series_id);`,
}

// EnsureSchema creates the observation and alert tables if they are missing.
// Safe to call on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range schemaStatements {
		if _, execErr := pool.Exec(ctx, stmt); execErr != nil {
			return storageErr("ensure schema", execErr)
		}
	}
	return nil
}
