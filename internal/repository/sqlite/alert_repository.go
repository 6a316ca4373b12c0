package sqlite

import (
	"database/sql"
	"fmt"

	"farmsentry/internal/dto"
	"farmsentry/internal/model"
)

const alertColumns = `a.id, a.timestamp, a.detected_object, a.confidence, a.image_path, a.video_filename, a.is_read`

// AlertRepository implements repository.AlertRepository for SQLite.
type AlertRepository struct {
	db *DB
}

// NewAlertRepository creates a new SQLite alert repository.
func NewAlertRepository(db *DB) *AlertRepository {
	return &AlertRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*model.Alert, error) {
	var alert model.Alert
	var video sql.NullString
	if err := row.Scan(&alert.ID, &alert.Timestamp, &alert.DetectedObject, &alert.Confidence, &alert.ImagePath, &video, &alert.IsRead); err != nil {
		return nil, err
	}
	alert.VideoFilename = video.String
	return &alert, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Insert adds a new alert record to the database.
func (r *AlertRepository) Insert(alert *model.Alert) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().Exec(`
		INSERT INTO alerts (id, timestamp, detected_object, confidence, image_path, video_filename, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, alert.ID, alert.Timestamp, alert.DetectedObject, alert.Confidence, alert.ImagePath, nullableString(alert.VideoFilename), alert.IsRead)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetByID retrieves an alert by its ID.
func (r *AlertRepository) GetByID(id string) (*model.Alert, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	alert, err := scanAlert(r.db.Conn().QueryRow(`SELECT `+alertColumns+` FROM alerts a WHERE a.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

// GetLatest retrieves the most recent alert.
func (r *AlertRepository) GetLatest() (*model.Alert, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	alert, err := scanAlert(r.db.Conn().QueryRow(`SELECT ` + alertColumns + ` FROM alerts a ORDER BY a.timestamp DESC LIMIT 1`))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest alert: %w", err)
	}
	return alert, nil
}

// GetByVideoFilename retrieves the alert that owns a clip.
func (r *AlertRepository) GetByVideoFilename(filename string) (*model.Alert, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	alert, err := scanAlert(r.db.Conn().QueryRow(`SELECT `+alertColumns+` FROM alerts a WHERE a.video_filename = ?`, filename))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

// GetAll retrieves alerts based on filter criteria, newest first.
func (r *AlertRepository) GetAll(filter *dto.AlertFilters) ([]model.Alert, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `SELECT ` + alertColumns + ` FROM alerts a WHERE 1=1`
	args := []interface{}{}

	if filter.Object != "" {
		query += " AND a.detected_object = ?"
		args = append(args, filter.Object)
	}

	if filter.UnreadOnly {
		query += " AND a.is_read = 0"
	}

	query += " ORDER BY a.timestamp DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *alert)
	}

	return alerts, rows.Err()
}

// UnreadCount returns the number of alerts not yet marked as read.
func (r *AlertRepository) UnreadCount() (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM alerts WHERE is_read = 0`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread alerts: %w", err)
	}
	return count, nil
}

// MarkRead marks one alert as read. It reports false when no such alert exists.
func (r *AlertRepository) MarkRead(id string) (bool, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`UPDATE alerts SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark alert as read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkAllRead marks every unread alert as read and returns how many changed.
func (r *AlertRepository) MarkAllRead() (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`UPDATE alerts SET is_read = 1 WHERE is_read = 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to mark alerts as read: %w", err)
	}
	return result.RowsAffected()
}

// ClearVideo detaches a deleted clip from its alert.
func (r *AlertRepository) ClearVideo(filename string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`UPDATE alerts SET video_filename = NULL WHERE video_filename = ?`, filename); err != nil {
		return fmt.Errorf("failed to clear alert video: %w", err)
	}
	return nil
}

// Delete removes an alert and its detections. It reports false when no such
// alert exists.
func (r *AlertRepository) Delete(id string) (bool, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM detections WHERE alert_id = ?`, id); err != nil {
		return false, fmt.Errorf("failed to delete detections: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return n > 0, nil
}
