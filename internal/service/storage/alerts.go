package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"farmsentry/internal/config"
	"farmsentry/internal/dto"
	"farmsentry/internal/logger"
	"farmsentry/internal/model"
	"farmsentry/internal/repository"
	"farmsentry/internal/service/recorder"

	"github.com/google/uuid"
)

// ErrPersistenceFailure is returned when an alert could not be stored. No
// broadcast happens for such an alert.
var ErrPersistenceFailure = errors.New("persistence failure")

const bytesPerGB = 1 << 30

// AlertService stores alerts: the annotated still on disk, the alert and its
// detections in the database. It also keeps the clip directory under quota.
type AlertService struct {
	snapshotDir   string
	clipDir       string
	maxClipBytes  int64
	interval      time.Duration
	logger        *logger.Logger
	alertRepo     repository.AlertRepository
	detectionRepo repository.DetectionRepository
	now           func() time.Time
}

// NewAlertService creates a new AlertService for the configured directories.
func NewAlertService(cfg *config.Config, logger *logger.Logger, alertRepo repository.AlertRepository, detectionRepo repository.DetectionRepository) *AlertService {
	return &AlertService{
		snapshotDir:   cfg.SnapshotDirectory,
		clipDir:       cfg.ClipDirectory,
		maxClipBytes:  cfg.MaxClipDirectorySize * bytesPerGB,
		interval:      cfg.CleanupInterval,
		logger:        logger,
		alertRepo:     alertRepo,
		detectionRepo: detectionRepo,
		now:           time.Now,
	}
}

// Persist stores a new alert for result. image is the annotated JPEG and clip
// the clip file name, empty when none was recorded. Every error wraps
// ErrPersistenceFailure and leaves nothing behind.
func (s *AlertService) Persist(ctx context.Context, image []byte, clip string, result dto.DetectionResult) (*model.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrPersistenceFailure)
	}

	if err := os.MkdirAll(s.snapshotDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating snapshot directory: %v", ErrPersistenceFailure, err)
	}

	alert := &model.Alert{
		ID:             uuid.NewString(),
		Timestamp:      s.now(),
		DetectedObject: result.Label,
		Confidence:     result.Confidence,
		VideoFilename:  clip,
	}

	filename := fmt.Sprintf("alert_%s_%s.jpg", alert.Timestamp.Format("20060102_150405"), alert.ID[:8])
	alert.ImagePath = filepath.Join(s.snapshotDir, filename)
	if err := os.WriteFile(alert.ImagePath, image, 0644); err != nil {
		return nil, fmt.Errorf("%w: saving snapshot: %v", ErrPersistenceFailure, err)
	}

	if err := s.alertRepo.Insert(alert); err != nil {
		os.Remove(alert.ImagePath)
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	if len(result.Detections) > 0 {
		detections := make([]model.Detection, 0, len(result.Detections))
		for _, d := range result.Detections {
			detections = append(detections, model.Detection{
				AlertID:    alert.ID,
				ClassID:    d.ClassID,
				ObjectName: d.Label,
				X:          d.X,
				Y:          d.Y,
				Width:      d.Width,
				Height:     d.Height,
				Confidence: d.Confidence,
			})
		}
		if err := s.detectionRepo.InsertBatch(detections); err != nil {
			if _, delErr := s.alertRepo.Delete(alert.ID); delErr != nil {
				s.logger.Error("Failed to roll back alert %s: %v", alert.ID, delErr)
			}
			os.Remove(alert.ImagePath)
			return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
		}
	}

	s.logger.Info("💾 Alert %s saved: %s (%.1f%%)", alert.ID, alert.DetectedObject, alert.Confidence*100)
	return alert, nil
}

// GetAlert returns the alert with its detections, or nil when it does not exist.
func (s *AlertService) GetAlert(id string) (*dto.AlertDetail, error) {
	alert, err := s.alertRepo.GetByID(id)
	if err != nil || alert == nil {
		return nil, err
	}

	detections, err := s.detectionRepo.GetByAlertID(id)
	if err != nil {
		return nil, err
	}
	if detections == nil {
		detections = []model.Detection{}
	}
	return &dto.AlertDetail{Alert: *alert, Detections: detections}, nil
}

// DeleteAlert removes an alert with its still and clip. It reports false when
// the alert does not exist.
func (s *AlertService) DeleteAlert(id string) (bool, error) {
	alert, err := s.alertRepo.GetByID(id)
	if err != nil {
		return false, err
	}
	if alert == nil {
		return false, nil
	}

	found, err := s.alertRepo.Delete(id)
	if err != nil {
		return false, err
	}

	if alert.ImagePath != "" {
		if err := os.Remove(alert.ImagePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warning("Failed to delete snapshot %s: %v", alert.ImagePath, err)
		}
	}
	if alert.VideoFilename != "" {
		path := filepath.Join(s.clipDir, alert.VideoFilename)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warning("Failed to delete clip %s: %v", path, err)
		}
	}

	s.logger.Info("Deleted alert: %s", id)
	return found, nil
}

// ListClips returns the clips on disk, newest first.
func (s *AlertService) ListClips() ([]dto.ClipInfo, error) {
	entries, err := os.ReadDir(s.clipDir)
	if os.IsNotExist(err) {
		return []dto.ClipInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read clip directory: %w", err)
	}

	clips := make([]dto.ClipInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !recorder.IsClipFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		clips = append(clips, dto.ClipInfo{
			Filename: entry.Name(),
			Size:     info.Size(),
			Created:  info.ModTime(),
		})
	}

	sort.Slice(clips, func(i, j int) bool {
		return clips[i].Created.After(clips[j].Created)
	})
	return clips, nil
}

// Run periodically enforces the clip directory quota until ctx is done.
func (s *AlertService) Run(ctx context.Context) {
	if s.interval <= 0 || s.maxClipBytes <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.EnforceClipQuota(); err != nil {
				s.logger.Error("Clip cleanup failed: %v", err)
			}
		}
	}
}

// EnforceClipQuota deletes the oldest clips until the clip directory fits its
// size limit, detaching them from their alerts. It returns how many were deleted.
func (s *AlertService) EnforceClipQuota() (int, error) {
	clips, err := s.ListClips()
	if err != nil {
		return 0, err
	}

	var total int64
	for _, c := range clips {
		total += c.Size
	}

	deleted := 0
	// clips is newest first, so evict from the end.
	for i := len(clips) - 1; i >= 0 && total > s.maxClipBytes; i-- {
		clip := clips[i]
		if err := os.Remove(filepath.Join(s.clipDir, clip.Filename)); err != nil {
			s.logger.Error("Error deleting clip %s: %v", clip.Filename, err)
			continue
		}
		if err := s.alertRepo.ClearVideo(clip.Filename); err != nil {
			s.logger.Error("Error detaching clip %s: %v", clip.Filename, err)
		}
		total -= clip.Size
		deleted++
	}

	if deleted > 0 {
		s.logger.Info("🧹 Removed %d old clips, clip directory now %d bytes", deleted, total)
	}
	return deleted, nil
}
