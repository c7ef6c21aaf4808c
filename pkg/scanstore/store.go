// Package scanstore persists scan sessions and their detected objects in
// SQLite, and serves stored scans back as diff references.
package scanstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/spatialvcs/go-spatialvcs/pkg/protocol"
	"github.com/spatialvcs/go-spatialvcs/pkg/tracking"
)

// Scan statuses.
const (
	StatusRecording = "recording"
	StatusCompleted = "completed"
)

// ErrScanNotFound is returned when a scan id has no row.
var ErrScanNotFound = errors.New("scan not found")

// Scan is a recorded scan session.
type Scan struct {
	ScanID      string `json:"scan_id"`
	Status      string `json:"status"`
	Source      string `json:"source"`
	Frames      int    `json:"frames"`
	ObjectCount int    `json:"object_count"`
	StartedAtMs int64  `json:"started_at_ms"`
	UpdatedAtMs int64  `json:"updated_at_ms"`
}

// StoredDetection is one persisted object within a scan.
type StoredDetection struct {
	Label      string            `json:"label"`
	Display    string            `json:"display"`
	Details    string            `json:"details,omitempty"`
	Confidence float64           `json:"confidence"`
	Position   protocol.Position `json:"position"`
	AtMs       int64             `json:"at_ms"`
}

// Store provides SQLite-backed scan persistence.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open scan db: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS scans (
			scan_id        TEXT PRIMARY KEY,
			status         TEXT NOT NULL,
			source         TEXT,
			frames         INTEGER NOT NULL DEFAULT 0,
			object_count   INTEGER NOT NULL DEFAULT 0,
			started_at_ms  INTEGER NOT NULL,
			updated_at_ms  INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS scan_objects (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			scan_id     TEXT NOT NULL,
			label       TEXT NOT NULL,
			display     TEXT,
			details     TEXT,
			confidence  REAL,
			x           REAL NOT NULL DEFAULT 0,
			y           REAL NOT NULL DEFAULT 0,
			z           REAL NOT NULL DEFAULT 0,
			at_ms       INTEGER NOT NULL,
			FOREIGN KEY (scan_id) REFERENCES scans(scan_id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_scan_objects_scan ON scan_objects(scan_id);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create scan schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureScan creates the scan row if it does not exist and returns its id.
// An empty scanID gets a generated UUID.
func (s *Store) EnsureScan(scanID, source string, nowMs int64) (string, error) {
	if scanID == "" {
		scanID = uuid.New().String()
	}

	_, err := s.db.Exec(`
		INSERT INTO scans (scan_id, status, source, frames, object_count, started_at_ms, updated_at_ms)
		VALUES (?, ?, ?, 0, 0, ?, ?)
		ON CONFLICT(scan_id) DO NOTHING
	`, scanID, StatusRecording, source, nowMs, nowMs)
	if err != nil {
		return "", fmt.Errorf("ensure scan %s: %w", scanID, err)
	}

	return scanID, nil
}

// RecordFrame replaces the scan's stored object set with the given
// detections and bumps its frame counter. The stored set always mirrors
// the latest persistence snapshot, so a completed scan holds the final
// world state rather than per-frame history.
func (s *Store) RecordFrame(scanID string, detections []tracking.Detection, nowMs int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("record frame: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE scans
		SET frames = frames + 1, object_count = ?, updated_at_ms = ?
		WHERE scan_id = ?
	`, len(detections), nowMs, scanID)
	if err != nil {
		return fmt.Errorf("record frame %s: %w", scanID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("record frame %s: %w", scanID, ErrScanNotFound)
	}

	if _, err := tx.Exec(`DELETE FROM scan_objects WHERE scan_id = ?`, scanID); err != nil {
		return fmt.Errorf("clear scan objects %s: %w", scanID, err)
	}

	for _, det := range detections {
		_, err := tx.Exec(`
			INSERT INTO scan_objects (scan_id, label, display, details, confidence, x, y, z, at_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, scanID, det.Canonical, det.Label, det.Details, det.Confidence,
			det.Position.X, det.Position.Y, det.Position.Z, nowMs)
		if err != nil {
			return fmt.Errorf("insert scan object %s/%s: %w", scanID, det.Key, err)
		}
	}

	return tx.Commit()
}

// CompleteScan marks the scan as completed.
func (s *Store) CompleteScan(scanID string, nowMs int64) error {
	res, err := s.db.Exec(`
		UPDATE scans SET status = ?, updated_at_ms = ? WHERE scan_id = ?
	`, StatusCompleted, nowMs, scanID)
	if err != nil {
		return fmt.Errorf("complete scan %s: %w", scanID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("complete scan %s: %w", scanID, ErrScanNotFound)
	}
	return nil
}

// ListScans returns all scans, most recently updated first.
func (s *Store) ListScans() ([]Scan, error) {
	rows, err := s.db.Query(`
		SELECT scan_id, status, source, frames, object_count, started_at_ms, updated_at_ms
		FROM scans
		ORDER BY updated_at_ms DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	scans := []Scan{}
	for rows.Next() {
		var sc Scan
		var source sql.NullString
		if err := rows.Scan(&sc.ScanID, &sc.Status, &source, &sc.Frames,
			&sc.ObjectCount, &sc.StartedAtMs, &sc.UpdatedAtMs); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		sc.Source = source.String
		scans = append(scans, sc)
	}
	return scans, rows.Err()
}

// GetScan returns a single scan by id.
func (s *Store) GetScan(scanID string) (*Scan, error) {
	var sc Scan
	var source sql.NullString
	err := s.db.QueryRow(`
		SELECT scan_id, status, source, frames, object_count, started_at_ms, updated_at_ms
		FROM scans
		WHERE scan_id = ?
	`, scanID).Scan(&sc.ScanID, &sc.Status, &source, &sc.Frames,
		&sc.ObjectCount, &sc.StartedAtMs, &sc.UpdatedAtMs)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get scan %s: %w", scanID, ErrScanNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get scan %s: %w", scanID, err)
	}
	sc.Source = source.String
	return &sc, nil
}

// Detections returns the stored object set for a scan.
func (s *Store) Detections(scanID string) ([]StoredDetection, error) {
	if _, err := s.GetScan(scanID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT label, display, details, confidence, x, y, z, at_ms
		FROM scan_objects
		WHERE scan_id = ?
		ORDER BY id
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("scan detections %s: %w", scanID, err)
	}
	defer rows.Close()

	dets := []StoredDetection{}
	for rows.Next() {
		var det StoredDetection
		var display, details sql.NullString
		var confidence sql.NullFloat64
		if err := rows.Scan(&det.Label, &display, &details, &confidence,
			&det.Position.X, &det.Position.Y, &det.Position.Z, &det.AtMs); err != nil {
			return nil, fmt.Errorf("scan object row: %w", err)
		}
		det.Display = display.String
		det.Details = details.String
		det.Confidence = confidence.Float64
		dets = append(dets, det)
	}
	return dets, rows.Err()
}

// LoadReference builds a diff reference from the scan's stored objects,
// keyed by canonical label. Later rows win when a label repeats.
func (s *Store) LoadReference(ctx context.Context, scanID string) (tracking.Reference, error) {
	if _, err := s.GetScan(scanID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT label, display, x, y, z
		FROM scan_objects
		WHERE scan_id = ?
		ORDER BY id
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("load reference %s: %w", scanID, err)
	}
	defer rows.Close()

	ref := tracking.Reference{}
	for rows.Next() {
		var label string
		var display sql.NullString
		var pos protocol.Position
		if err := rows.Scan(&label, &display, &pos.X, &pos.Y, &pos.Z); err != nil {
			return nil, fmt.Errorf("reference row: %w", err)
		}
		ref[label] = tracking.RefObject{Position: pos, Display: display.String}
	}
	return ref, rows.Err()
}
