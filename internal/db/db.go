// Package db persists scans and map snapshots in sqlite.
package db

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/rangemap/internal/sensor"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNoSnapshot is returned by LatestMapSnapshot on an empty table.
var ErrNoSnapshot = errors.New("no map snapshot recorded")

type DB struct {
	*sql.DB
}

// OpenDB opens the database at path and applies connection pragmas without
// running migrations.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &DB{sqlDB}, nil
}

// NewDB opens the database at path and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(migrationsFS); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func applyPragmas(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return nil
}

// ScanRecord is one persisted sweep and its effect on the map.
type ScanRecord struct {
	ID        string           `json:"id"`
	TakenAt   time.Time        `json:"taken_at"`
	Summary   sensor.Summary   `json:"summary"`
	Inserted  int              `json:"inserted"`
	Changed   int              `json:"changed"`
	Discarded int              `json:"discarded"`
	Readings  []sensor.Reading `json:"readings"`
}

// RecordScan stores one scan.
func (db *DB) RecordScan(s ScanRecord) error {
	readings := s.Readings
	if readings == nil {
		readings = []sensor.Reading{}
	}
	readingsJSON, err := json.Marshal(readings)
	if err != nil {
		return fmt.Errorf("failed to encode readings: %w", err)
	}
	_, err = db.Exec(
		`INSERT INTO scans (
			scan_id, taken_at_ns, samples, min_range, min_index, max_range, max_index,
			mean_range, std_dev, inserted, changed, discarded, readings_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.TakenAt.UnixNano(), s.Summary.Samples,
		s.Summary.Min, s.Summary.MinIndex, s.Summary.Max, s.Summary.MaxIndex,
		s.Summary.Mean, s.Summary.StdDev,
		s.Inserted, s.Changed, s.Discarded, string(readingsJSON),
	)
	return err
}

// RecentScans returns up to limit scans, newest first.
func (db *DB) RecentScans(limit int) ([]ScanRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT scan_id, taken_at_ns, samples, min_range, min_index,
			max_range, max_index, mean_range, std_dev, inserted, changed, discarded, readings_json
		FROM scans ORDER BY taken_at_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scans := []ScanRecord{}
	for rows.Next() {
		var (
			s            ScanRecord
			takenAt      int64
			readingsJSON string
		)
		if err := rows.Scan(
			&s.ID, &takenAt, &s.Summary.Samples,
			&s.Summary.Min, &s.Summary.MinIndex,
			&s.Summary.Max, &s.Summary.MaxIndex,
			&s.Summary.Mean, &s.Summary.StdDev,
			&s.Inserted, &s.Changed, &s.Discarded, &readingsJSON,
		); err != nil {
			return nil, err
		}
		s.TakenAt = time.Unix(0, takenAt).UTC()
		if err := json.Unmarshal([]byte(readingsJSON), &s.Readings); err != nil {
			return nil, fmt.Errorf("scan %s: failed to decode readings: %w", s.ID, err)
		}
		scans = append(scans, s)
	}
	return scans, rows.Err()
}

// MapSnapshot is a stored copy of the map in its text encoding.
type MapSnapshot struct {
	ID       string    `json:"id"`
	TakenAt  time.Time `json:"taken_at"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	OriginX  int       `json:"origin_x"`
	OriginY  int       `json:"origin_y"`
	Occupied int       `json:"occupied"`
	Text     string    `json:"text"`
}

// RecordMapSnapshot stores a map snapshot.
func (db *DB) RecordMapSnapshot(s MapSnapshot) error {
	_, err := db.Exec(
		`INSERT INTO map_snapshots (
			snapshot_id, taken_at_ns, width, height, origin_x, origin_y, occupied, map_text
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.TakenAt.UnixNano(), s.Width, s.Height, s.OriginX, s.OriginY, s.Occupied, s.Text,
	)
	return err
}

// LatestMapSnapshot returns the most recent snapshot or ErrNoSnapshot.
func (db *DB) LatestMapSnapshot() (*MapSnapshot, error) {
	var (
		s       MapSnapshot
		takenAt int64
	)
	err := db.QueryRow(`SELECT snapshot_id, taken_at_ns, width, height, origin_x, origin_y, occupied, map_text
		FROM map_snapshots ORDER BY taken_at_ns DESC LIMIT 1`).Scan(
		&s.ID, &takenAt, &s.Width, &s.Height, &s.OriginX, &s.OriginY, &s.Occupied, &s.Text,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	s.TakenAt = time.Unix(0, takenAt).UTC()
	return &s, nil
}
