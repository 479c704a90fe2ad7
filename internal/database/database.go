// Package database keeps the durable alert history and the snapshot index
// in SQLite.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"tripwatch/internal/camera"
)

// Database handles SQLite database operations
type Database struct {
	db     *sql.DB
	logger *slog.Logger
}

// AlertRecord is an alert as stored.
type AlertRecord struct {
	ID         string
	CameraID   string
	CameraName string
	Message    string
	Timestamp  time.Time
	Box        BoundingBoxRecord
}

// BoundingBoxRecord represents a bounding box
type BoundingBoxRecord struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SnapshotRecord indexes a stored snapshot.
type SnapshotRecord struct {
	ID         string
	CameraName string
	Location   string
	Size       int
	TakenAt    time.Time
}

// New opens the database at dbPath in WAL mode.
func New(dbPath string, logger *slog.Logger) (*Database, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &Database{db: db, logger: logger.With("component", "database")}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Migrate creates the schema.
func (d *Database) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			camera_id TEXT NOT NULL,
			camera_name TEXT NOT NULL,
			message TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			bounding_box TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			camera_name TEXT NOT NULL,
			location TEXT NOT NULL,
			size INTEGER NOT NULL,
			taken_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_camera_time ON alerts(camera_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_time ON alerts(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_time ON snapshots(taken_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	d.logger.Debug("migrations completed")
	return nil
}

// EmitAlert stores alert. It lets the database act as an alert sink.
func (d *Database) EmitAlert(ctx context.Context, alert camera.Alert) error {
	return d.SaveAlert(ctx, &AlertRecord{
		ID:         alert.ID,
		CameraID:   alert.CameraID,
		CameraName: alert.CameraName,
		Message:    alert.Message,
		Timestamp:  alert.Timestamp,
		Box:        boxRecord(alert.Box),
	})
}

// SaveAlert inserts an alert. Saving the same id twice is a no-op.
func (d *Database) SaveAlert(ctx context.Context, alert *AlertRecord) error {
	boxJSON, err := json.Marshal(alert.Box)
	if err != nil {
		return fmt.Errorf("failed to marshal bounding box: %w", err)
	}

	query := `INSERT INTO alerts (id, camera_id, camera_name, message, timestamp, bounding_box)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`

	_, err = d.db.ExecContext(ctx, query, alert.ID, alert.CameraID, alert.CameraName,
		alert.Message, alert.Timestamp.UTC(), string(boxJSON))
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// GetAlert retrieves an alert by ID. A missing alert is nil, nil.
func (d *Database) GetAlert(ctx context.Context, id string) (*AlertRecord, error) {
	query := `SELECT id, camera_id, camera_name, message, timestamp, bounding_box
		FROM alerts WHERE id = ?`

	alert, err := scanAlert(d.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

// ListAlerts returns alerts newest first, optionally for one camera and
// since a point in time.
func (d *Database) ListAlerts(ctx context.Context, cameraID string, since *time.Time, limit int) ([]*AlertRecord, error) {
	query := `SELECT id, camera_id, camera_name, message, timestamp, bounding_box
		FROM alerts WHERE 1=1`
	args := []any{}

	if cameraID != "" {
		query += " AND camera_id = ?"
		args = append(args, cameraID)
	}

	if since != nil {
		query += " AND timestamp >= ?"
		args = append(args, since.UTC())
	}

	query += " ORDER BY timestamp DESC, rowid DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*AlertRecord
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// DeleteAlertsBefore deletes alerts older than before.
func (d *Database) DeleteAlertsBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := d.db.ExecContext(ctx, "DELETE FROM alerts WHERE timestamp < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old alerts: %w", err)
	}
	return result.RowsAffected()
}

// IndexSnapshot records a stored snapshot.
func (d *Database) IndexSnapshot(ctx context.Context, snap *SnapshotRecord) error {
	query := `INSERT INTO snapshots (id, camera_name, location, size, taken_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err := d.db.ExecContext(ctx, query, snap.ID, snap.CameraName, snap.Location, snap.Size, snap.TakenAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns indexed snapshots newest first.
func (d *Database) ListSnapshots(ctx context.Context, cameraName string, limit int) ([]*SnapshotRecord, error) {
	query := `SELECT id, camera_name, location, size, taken_at FROM snapshots WHERE 1=1`
	args := []any{}

	if cameraName != "" {
		query += " AND camera_name = ?"
		args = append(args, cameraName)
	}
	query += " ORDER BY taken_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*SnapshotRecord
	for rows.Next() {
		var s SnapshotRecord
		if err := rows.Scan(&s.ID, &s.CameraName, &s.Location, &s.Size, &s.TakenAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, &s)
	}
	return snaps, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*AlertRecord, error) {
	var alert AlertRecord
	var boxJSON sql.NullString

	if err := row.Scan(&alert.ID, &alert.CameraID, &alert.CameraName, &alert.Message, &alert.Timestamp, &boxJSON); err != nil {
		return nil, err
	}
	if boxJSON.Valid && boxJSON.String != "" {
		if err := json.Unmarshal([]byte(boxJSON.String), &alert.Box); err != nil {
			return nil, fmt.Errorf("failed to unmarshal bounding box: %w", err)
		}
	}
	return &alert, nil
}

func boxRecord(r image.Rectangle) BoundingBoxRecord {
	return BoundingBoxRecord{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}
