// Package migrate backfills the database from files already on disk.
package migrate

import (
	"fmt"
	"os"

	"farmsentry/internal/model"
	"farmsentry/internal/repository"
	"farmsentry/internal/service/recorder"

	"github.com/google/uuid"
)

// DefaultLabel is stored for clips whose detection is unknown.
const DefaultLabel = "Unknown"

// Report summarises an indexing run.
type Report struct {
	Indexed  int
	Existing int
	Skipped  []string
}

// IndexClips creates an alert for every clip in dir that no alert references
// yet. The alert time comes from the clip name. Indexed alerts are marked read.
func IndexClips(dir, label string, alerts repository.AlertRepository) (Report, error) {
	var report Report

	files, err := os.ReadDir(dir)
	if err != nil {
		return report, fmt.Errorf("failed to read clip directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !recorder.IsClipFile(file.Name()) {
			continue
		}

		ts, err := recorder.ParseClipName(file.Name())
		if err != nil {
			report.Skipped = append(report.Skipped, file.Name())
			continue
		}

		existing, err := alerts.GetByVideoFilename(file.Name())
		if err != nil {
			return report, err
		}
		if existing != nil {
			report.Existing++
			continue
		}

		alert := &model.Alert{
			ID:             uuid.NewString(),
			Timestamp:      ts,
			DetectedObject: label,
			VideoFilename:  file.Name(),
			IsRead:         true,
		}
		if err := alerts.Insert(alert); err != nil {
			report.Skipped = append(report.Skipped, file.Name())
			continue
		}
		report.Indexed++
	}

	return report, nil
}
