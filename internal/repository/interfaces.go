package repository

import (
	"farmsentry/internal/dto"
	"farmsentry/internal/model"
)

// AlertRepository defines the interface for alert data operations.
type AlertRepository interface {
	// Create operations
	Insert(alert *model.Alert) error

	// Read operations
	GetByID(id string) (*model.Alert, error)
	GetLatest() (*model.Alert, error)
	GetAll(filter *dto.AlertFilters) ([]model.Alert, error)
	GetByVideoFilename(filename string) (*model.Alert, error)
	UnreadCount() (int, error)

	// Update operations
	MarkRead(id string) (bool, error)
	MarkAllRead() (int64, error)
	ClearVideo(filename string) error

	// Delete operations
	Delete(id string) (bool, error)
}

// DetectionRepository defines the interface for detection data operations.
type DetectionRepository interface {
	// Create operations
	InsertBatch(detections []model.Detection) error

	// Read operations
	GetByAlertID(alertID string) ([]model.Detection, error)
}
