// Package telemetry persists scan sessions and the density samples the
// control loop publishes, so a session can be replayed or charted after the
// fact. Recording is strictly observational: a broken store never interferes
// with the feedback path.
package telemetry

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/haptic-histology/tissue.scanner/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store records scan sessions and density samples in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the telemetry database at path and runs
// any pending schema migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	// Note: the migrate instance is not closed because closing it would close
	// the underlying DB connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// BeginSession creates a scan session row and returns its ID.
func (s *Store) BeginSession(mode string, imageWidth, imageHeight, clusterCount int) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO scan_sessions (session_id, mode, image_width, image_height, cluster_count, started_unix_nanos)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, mode, imageWidth, imageHeight, clusterCount, time.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to begin session: %w", err)
	}
	return id, nil
}

// EndSession stamps the session's end time.
func (s *Store) EndSession(sessionID string) error {
	_, err := s.db.Exec(
		`UPDATE scan_sessions SET ended_unix_nanos = ? WHERE session_id = ?`,
		time.Now().UnixNano(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// RecordSample stores one density observation for a session.
func (s *Store) RecordSample(sessionID string, x, y, density, gradient int, mode string) error {
	_, err := s.db.Exec(
		`INSERT INTO density_samples (session_id, ts_unix_nanos, x, y, density, gradient, mode)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, time.Now().UnixNano(), x, y, density, gradient, mode,
	)
	if err != nil {
		return fmt.Errorf("failed to record sample: %w", err)
	}
	return nil
}

// Sample is one recorded density observation.
type Sample struct {
	TSUnixNanos int64
	X           int
	Y           int
	Density     int
	Gradient    int
	Mode        string
}

// Samples returns a session's samples in time order, capped at limit
// (limit <= 0 selects all).
func (s *Store) Samples(sessionID string, limit int) ([]Sample, error) {
	query := `SELECT ts_unix_nanos, x, y, density, gradient, mode
	          FROM density_samples WHERE session_id = ? ORDER BY ts_unix_nanos`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var sm Sample
		if err := rows.Scan(&sm.TSUnixNanos, &sm.X, &sm.Y, &sm.Density, &sm.Gradient, &sm.Mode); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, sm)
	}
	return samples, rows.Err()
}

// LatestSessionID returns the most recently started session.
func (s *Store) LatestSessionID() (string, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT session_id FROM scan_sessions ORDER BY started_unix_nanos DESC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("no scan sessions recorded")
	}
	if err != nil {
		return "", fmt.Errorf("failed to query latest session: %w", err)
	}
	return id, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
