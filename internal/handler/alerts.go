package handler

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"

	"farmsentry/internal/dto"
	"farmsentry/internal/logger"
	"farmsentry/internal/model"
	"farmsentry/internal/repository"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 500
)

// AlertDeleter removes an alert together with its files.
type AlertDeleter interface {
	DeleteAlert(id string) (bool, error)
}

// AlertReader loads an alert with its detections.
type AlertReader interface {
	GetAlert(id string) (*dto.AlertDetail, error)
}

// ListAlertsHandler returns alerts newest first. Query: limit, offset, object, unread.
func ListAlertsHandler(alertRepo repository.AlertRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := atoiDefault(q.Get("limit"), defaultAlertLimit)
		if limit > maxAlertLimit {
			limit = maxAlertLimit
		}

		filter := &dto.AlertFilters{
			Object:     q.Get("object"),
			UnreadOnly: q.Get("unread") == "true",
			Limit:      limit,
			Offset:     atoiDefault(q.Get("offset"), 0),
		}

		alerts, err := alertRepo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying alerts: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if alerts == nil {
			alerts = []model.Alert{}
		}

		writeJSON(w, logger, http.StatusOK, alerts)
	}
}

// LatestAlertHandler returns the most recent alert or 404.
func LatestAlertHandler(alertRepo repository.AlertRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alert, err := alertRepo.GetLatest()
		if err != nil {
			logger.Error("Error querying latest alert: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if alert == nil {
			http.Error(w, "No alerts found", http.StatusNotFound)
			return
		}
		writeJSON(w, logger, http.StatusOK, alert)
	}
}

// GetAlertHandler returns the alert {id} with its detection boxes.
func GetAlertHandler(alerts AlertReader, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		detail, err := alerts.GetAlert(id)
		if err != nil {
			logger.Error("Error loading alert %s: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if detail == nil {
			http.Error(w, "Alert not found", http.StatusNotFound)
			return
		}
		writeJSON(w, logger, http.StatusOK, detail)
	}
}

// UnreadCountHandler returns {"unread_count": n}.
func UnreadCountHandler(alertRepo repository.AlertRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := alertRepo.UnreadCount()
		if err != nil {
			logger.Error("Error counting unread alerts: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, logger, http.StatusOK, map[string]int{"unread_count": count})
	}
}

// MarkReadHandler marks the alert {id} as read.
func MarkReadHandler(alertRepo repository.AlertRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		found, err := alertRepo.MarkRead(id)
		if err != nil {
			logger.Error("Error marking alert %s as read: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if !found {
			http.Error(w, "Alert not found", http.StatusNotFound)
			return
		}
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "read", "id": id})
	}
}

// MarkAllReadHandler marks every alert as read.
func MarkAllReadHandler(alertRepo repository.AlertRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := alertRepo.MarkAllRead()
		if err != nil {
			logger.Error("Error marking alerts as read: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "read", "updated": strconv.FormatInt(n, 10)})
	}
}

// DeleteAlertHandler removes the alert {id} with its still and clip.
func DeleteAlertHandler(alerts AlertDeleter, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		found, err := alerts.DeleteAlert(id)
		if err != nil {
			logger.Error("Error deleting alert %s: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if !found {
			http.Error(w, "Alert not found", http.StatusNotFound)
			return
		}
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "deleted", "id": id})
	}
}

// AlertImageHandler serves the annotated still of alert {id}.
func AlertImageHandler(alertRepo repository.AlertRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alert, err := alertRepo.GetByID(r.PathValue("id"))
		if err != nil {
			logger.Error("Error querying alert: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if alert == nil || alert.ImagePath == "" {
			http.NotFound(w, r)
			return
		}
		if _, err := os.Stat(alert.ImagePath); err != nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		http.ServeFile(w, r, alert.ImagePath)
	}
}

func writeJSON(w http.ResponseWriter, logger *logger.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

// atoiDefault converts s to a non-negative int or returns def.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
