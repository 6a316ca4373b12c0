package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"farmsentry/internal/config"
	"farmsentry/internal/dto"
	"farmsentry/internal/logger"
	"farmsentry/internal/service/recorder"
)

var clipContentTypes = map[string]string{
	".mp4": "video/mp4",
	".avi": "video/x-msvideo",
}

// ClipLister lists the recorded clips.
type ClipLister interface {
	ListClips() ([]dto.ClipInfo, error)
}

// ListVideosHandler returns the recorded clips, newest first.
func ListVideosHandler(clips ClipLister, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := clips.ListClips()
		if err != nil {
			logger.Error("Error listing clips: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, logger, http.StatusOK, list)
	}
}

// ServeVideoHandler streams the clip {filename}. Range requests are supported.
func ServeVideoHandler(cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename, ok := sanitizeClipName(r.PathValue("filename"))
		if !ok {
			logger.Warning("Rejected clip request: %q", r.PathValue("filename"))
			http.Error(w, "Invalid filename", http.StatusBadRequest)
			return
		}

		path := filepath.Join(cfg.ClipDirectory, filename)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			http.Error(w, "Video not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", clipContentTypes[strings.ToLower(filepath.Ext(filename))])
		w.Header().Set("Accept-Ranges", "bytes")
		http.ServeFile(w, r, path)
	}
}

// sanitizeClipName accepts a bare clip file name and rejects anything that
// could leave the clip directory.
func sanitizeClipName(name string) (string, bool) {
	if name == "" || strings.ContainsRune(name, 0) {
		return "", false
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", false
	}
	if filepath.Base(name) != name || !recorder.IsClipFile(name) {
		return "", false
	}
	return name, true
}
