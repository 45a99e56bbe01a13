// Package storage provides SQLite-backed persistence for the latest
// snapshot and the discovered-place cache.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/pizzaindex/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNoSnapshot is returned by Latest when no snapshot has been persisted.
var ErrNoSnapshot = errors.New("no snapshot persisted")

// SnapshotStore is the latest-snapshot slot the host injects into its
// collaborators. The engine never touches it; the poll loop writes, the
// dashboard reads.
type SnapshotStore interface {
	Put(snapshot *models.Snapshot) error
	Latest() (*models.Snapshot, error)
}

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db *sql.DB
}

var _ SnapshotStore = (*Storage)(nil)

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/pizzaindex/data.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "pizzaindex", "data.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		// Single latest-snapshot slot; superseding writes replace row 0.
		`CREATE TABLE IF NOT EXISTS latest_snapshot (
			slot            INTEGER PRIMARY KEY CHECK (slot = 0),
			id              TEXT NOT NULL,
			composite_score REAL NOT NULL,
			alert_level     TEXT NOT NULL,
			captured_at     INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS snapshot_deviations (
			snapshot_id TEXT NOT NULL,
			position    INTEGER NOT NULL,
			sensor_id   TEXT NOT NULL,
			label       TEXT NOT NULL,
			percent     REAL NOT NULL,
			live        INTEGER NOT NULL,
			usual       INTEGER NOT NULL,
			PRIMARY KEY (snapshot_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS places (
			sensor_id   TEXT PRIMARY KEY,
			place_id    TEXT,
			name        TEXT NOT NULL,
			address     TEXT,
			rating      REAL,
			resolved_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Put replaces the latest snapshot and its deviation rows in one
// transaction. Previous snapshots are discarded, not kept.
func (s *Storage) Put(snapshot *models.Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO latest_snapshot
			(slot, id, composite_score, alert_level, captured_at)
		VALUES (0,?,?,?,?)`,
		snapshot.ID, snapshot.CompositeScore, string(snapshot.Level),
		snapshot.Timestamp.UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM snapshot_deviations`); err != nil {
		return fmt.Errorf("failed to clear deviations: %w", err)
	}
	for i, d := range snapshot.Deviations {
		if _, err := tx.Exec(`
			INSERT INTO snapshot_deviations
				(snapshot_id, position, sensor_id, label, percent, live, usual)
			VALUES (?,?,?,?,?,?,?)`,
			snapshot.ID, i, d.SensorID, d.Label, d.Percent, d.Live, d.Usual,
		); err != nil {
			return fmt.Errorf("failed to write deviation: %w", err)
		}
	}

	return tx.Commit()
}

// Latest returns the persisted snapshot, or ErrNoSnapshot.
func (s *Storage) Latest() (*models.Snapshot, error) {
	row := s.db.QueryRow(`
		SELECT id, composite_score, alert_level, captured_at
		FROM latest_snapshot WHERE slot = 0`)

	var snap models.Snapshot
	var level string
	var capturedAtNano int64
	err := row.Scan(&snap.ID, &snap.CompositeScore, &level, &capturedAtNano)
	if err == sql.ErrNoRows {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	snap.Level = models.AlertLevel(level)
	snap.Timestamp = time.Unix(0, capturedAtNano)

	rows, err := s.db.Query(`
		SELECT sensor_id, label, percent, live, usual
		FROM snapshot_deviations WHERE snapshot_id = ? ORDER BY position`, snap.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deviations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d models.Deviation
		if err := rows.Scan(&d.SensorID, &d.Label, &d.Percent, &d.Live, &d.Usual); err != nil {
			return nil, fmt.Errorf("failed to scan deviation: %w", err)
		}
		snap.Deviations = append(snap.Deviations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SavePlace upserts a resolved place for a sensor.
func (s *Storage) SavePlace(place *models.Place) error {
	if place.SensorID == "" {
		return errors.New("place sensor ID must not be empty")
	}
	if place.Name == "" {
		return errors.New("place name must not be empty")
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO places
			(sensor_id, place_id, name, address, rating, resolved_at)
		VALUES (?,?,?,?,?,?)`,
		place.SensorID, place.PlaceID, place.Name, place.Address, place.Rating,
		place.ResolvedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save place: %w", err)
	}
	return nil
}

// GetPlace returns the cached place for a sensor, or nil when unknown.
func (s *Storage) GetPlace(sensorID string) (*models.Place, error) {
	row := s.db.QueryRow(`
		SELECT sensor_id, place_id, name, address, rating, resolved_at
		FROM places WHERE sensor_id = ?`, sensorID)

	var p models.Place
	var resolvedAtNano int64
	err := row.Scan(&p.SensorID, &p.PlaceID, &p.Name, &p.Address, &p.Rating, &resolvedAtNano)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get place: %w", err)
	}
	p.ResolvedAt = time.Unix(0, resolvedAtNano)
	return &p, nil
}

// AllPlaces returns every cached place keyed by sensor ID.
func (s *Storage) AllPlaces() (map[string]*models.Place, error) {
	rows, err := s.db.Query(`
		SELECT sensor_id, place_id, name, address, rating, resolved_at FROM places`)
	if err != nil {
		return nil, fmt.Errorf("failed to query places: %w", err)
	}
	defer rows.Close()

	places := make(map[string]*models.Place)
	for rows.Next() {
		var p models.Place
		var resolvedAtNano int64
		if err := rows.Scan(&p.SensorID, &p.PlaceID, &p.Name, &p.Address, &p.Rating, &resolvedAtNano); err != nil {
			return nil, fmt.Errorf("failed to scan place: %w", err)
		}
		p.ResolvedAt = time.Unix(0, resolvedAtNano)
		places[p.SensorID] = &p
	}
	return places, rows.Err()
}
