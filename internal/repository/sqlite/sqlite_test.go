package sqlite

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"farmsentry/internal/dto"
	"farmsentry/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
)

// ========================================
// Test Setup Helpers
// ========================================

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newAlert(id, object string, ts time.Time) *model.Alert {
	return &model.Alert{
		ID:             id,
		Timestamp:      ts,
		DetectedObject: object,
		Confidence:     0.85,
		ImagePath:      "snapshots/" + id + ".jpg",
	}
}

// ========================================
// Database Tests
// ========================================

func TestDatabase_CreatesFileAndDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "farm.db")
	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file should exist")
	}
}

func TestDatabase_MigrationIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "farm.db")
	for i := 0; i < 2; i++ {
		db, err := New(dbPath)
		if err != nil {
			t.Fatalf("Open %d failed: %v", i, err)
		}
		db.Close()
	}
}

// ========================================
// Alert Repository Tests
// ========================================

func TestAlertRepository_InsertAndGet(t *testing.T) {
	repo := NewAlertRepository(setupTestDB(t))
	ts := time.Date(2024, 5, 17, 14, 3, 9, 0, time.UTC)

	alert := newAlert("a1", "Person", ts)
	alert.VideoFilename = "alert_20240517_140309.mp4"
	if err := repo.Insert(alert); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := repo.GetByID("a1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected alert, got nil")
	}
	if got.DetectedObject != "Person" || got.VideoFilename != alert.VideoFilename || got.IsRead {
		t.Errorf("Unexpected alert: %+v", got)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("Expected timestamp %v, got %v", ts, got.Timestamp)
	}
}

func TestAlertRepository_GetMissing(t *testing.T) {
	repo := NewAlertRepository(setupTestDB(t))

	got, err := repo.GetByID("missing")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil, got %+v", got)
	}

	latest, err := repo.GetLatest()
	if err != nil || latest != nil {
		t.Errorf("Expected no latest alert, got %+v (%v)", latest, err)
	}
}

func TestAlertRepository_NullVideo(t *testing.T) {
	repo := NewAlertRepository(setupTestDB(t))

	if err := repo.Insert(newAlert("a1", "Dog", time.Now().UTC())); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	got, _ := repo.GetByID("a1")
	if got.VideoFilename != "" {
		t.Errorf("Expected no video, got %q", got.VideoFilename)
	}
}

func TestAlertRepository_GetAllNewestFirst(t *testing.T) {
	repo := NewAlertRepository(setupTestDB(t))
	base := time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)

	repo.Insert(newAlert("old", "Person", base))
	repo.Insert(newAlert("mid", "Dog", base.Add(time.Hour)))
	repo.Insert(newAlert("new", "Person", base.Add(2*time.Hour)))

	alerts, err := repo.GetAll(&dto.AlertFilters{})
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(alerts) != 3 {
		t.Fatalf("Expected 3 alerts, got %d", len(alerts))
	}
	if alerts[0].ID != "new" || alerts[2].ID != "old" {
		t.Errorf("Expected newest first, got %s..%s", alerts[0].ID, alerts[2].ID)
	}

	latest, _ := repo.GetLatest()
	if latest == nil || latest.ID != "new" {
		t.Errorf("Expected latest alert 'new', got %+v", latest)
	}
}

func TestAlertRepository_Filters(t *testing.T) {
	repo := NewAlertRepository(setupTestDB(t))
	base := time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)

	for i, obj := range []string{"Person", "Dog", "Person", "Cow", "Person"} {
		repo.Insert(newAlert(string(rune('a'+i)), obj, base.Add(time.Duration(i)*time.Minute)))
	}
	repo.MarkRead("e")

	tests := []struct {
		name     string
		filter   dto.AlertFilters
		expected int
	}{
		{"all", dto.AlertFilters{}, 5},
		{"object", dto.AlertFilters{Object: "Person"}, 3},
		{"unread", dto.AlertFilters{UnreadOnly: true}, 4},
		{"object unread", dto.AlertFilters{Object: "Person", UnreadOnly: true}, 2},
		{"limit", dto.AlertFilters{Limit: 2}, 2},
		{"limit offset", dto.AlertFilters{Limit: 2, Offset: 4}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts, err := repo.GetAll(&tt.filter)
			if err != nil {
				t.Fatalf("GetAll failed: %v", err)
			}
			if len(alerts) != tt.expected {
				t.Errorf("Expected %d alerts, got %d", tt.expected, len(alerts))
			}
		})
	}
}

func TestAlertRepository_ReadState(t *testing.T) {
	repo := NewAlertRepository(setupTestDB(t))
	now := time.Now().UTC()
	repo.Insert(newAlert("a1", "Person", now))
	repo.Insert(newAlert("a2", "Dog", now.Add(time.Second)))
	repo.Insert(newAlert("a3", "Cat", now.Add(2*time.Second)))

	if count, _ := repo.UnreadCount(); count != 3 {
		t.Fatalf("Expected 3 unread, got %d", count)
	}

	found, err := repo.MarkRead("a2")
	if err != nil || !found {
		t.Fatalf("MarkRead failed: found=%v err=%v", found, err)
	}
	if found, _ := repo.MarkRead("missing"); found {
		t.Error("Expected MarkRead on a missing alert to report false")
	}
	if count, _ := repo.UnreadCount(); count != 2 {
		t.Errorf("Expected 2 unread, got %d", count)
	}

	n, err := repo.MarkAllRead()
	if err != nil {
		t.Fatalf("MarkAllRead failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 alerts updated, got %d", n)
	}
	if count, _ := repo.UnreadCount(); count != 0 {
		t.Errorf("Expected 0 unread, got %d", count)
	}
}

func TestAlertRepository_VideoLookupAndClear(t *testing.T) {
	repo := NewAlertRepository(setupTestDB(t))
	alert := newAlert("a1", "Person", time.Now().UTC())
	alert.VideoFilename = "alert_20240517_140309.avi"
	repo.Insert(alert)

	got, err := repo.GetByVideoFilename("alert_20240517_140309.avi")
	if err != nil || got == nil || got.ID != "a1" {
		t.Fatalf("Expected alert a1, got %+v (%v)", got, err)
	}

	if err := repo.ClearVideo("alert_20240517_140309.avi"); err != nil {
		t.Fatalf("ClearVideo failed: %v", err)
	}
	got, _ = repo.GetByID("a1")
	if got.VideoFilename != "" {
		t.Errorf("Expected the video to be cleared, got %q", got.VideoFilename)
	}
}

func TestAlertRepository_DeleteCascadesDetections(t *testing.T) {
	db := setupTestDB(t)
	alerts := NewAlertRepository(db)
	detections := NewDetectionRepository(db)

	alerts.Insert(newAlert("a1", "Person", time.Now().UTC()))
	detections.InsertBatch([]model.Detection{
		{AlertID: "a1", ClassID: 1, ObjectName: "Person", Confidence: 0.9},
	})

	found, err := alerts.Delete("a1")
	if err != nil || !found {
		t.Fatalf("Delete failed: found=%v err=%v", found, err)
	}
	if dets, _ := detections.GetByAlertID("a1"); len(dets) != 0 {
		t.Errorf("Expected detections to be removed, got %d", len(dets))
	}
	if found, _ := alerts.Delete("a1"); found {
		t.Error("Expected a second delete to report false")
	}
}

// ========================================
// Detection Repository Tests
// ========================================

func TestDetectionRepository_InsertBatch(t *testing.T) {
	db := setupTestDB(t)
	NewAlertRepository(db).Insert(newAlert("a1", "Person", time.Now().UTC()))
	repo := NewDetectionRepository(db)

	batch := []model.Detection{
		{AlertID: "a1", ClassID: 1, ObjectName: "Person", X: 10, Y: 20, Width: 30, Height: 40, Confidence: 0.9},
		{AlertID: "a1", ClassID: 18, ObjectName: "Dog", X: 50, Y: 60, Width: 70, Height: 80, Confidence: 0.7},
	}
	if err := repo.InsertBatch(batch); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	got, err := repo.GetByAlertID("a1")
	if err != nil {
		t.Fatalf("GetByAlertID failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 detections, got %d", len(got))
	}
	if got[1].ObjectName != "Dog" || got[1].ClassID != 18 || got[1].Width != 70 {
		t.Errorf("Unexpected detection: %+v", got[1])
	}
}

func TestDetectionRepository_EmptyBatch(t *testing.T) {
	repo := NewDetectionRepository(setupTestDB(t))
	if err := repo.InsertBatch(nil); err != nil {
		t.Errorf("Expected empty batch to succeed, got %v", err)
	}
}

// ========================================
// Failure Tests
// ========================================

func TestAlertRepository_InsertError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer conn.Close()

	diskFull := errors.New("database or disk is full")
	mock.ExpectExec("INSERT INTO alerts").WillReturnError(diskFull)

	repo := NewAlertRepository(Wrap(conn))
	err = repo.Insert(newAlert("a1", "Person", time.Now()))
	if !errors.Is(err, diskFull) {
		t.Errorf("Expected wrapped driver error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestDetectionRepository_RollbackOnError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer conn.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO detections")
	prep.ExpectExec().WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	repo := NewDetectionRepository(Wrap(conn))
	err = repo.InsertBatch([]model.Detection{{AlertID: "a1", ObjectName: "Person"}})
	if err == nil {
		t.Fatal("Expected an error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}
