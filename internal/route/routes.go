package route

import (
	"net/http"
	"os"
	"path/filepath"

	"farmsentry/internal/config"
	"farmsentry/internal/handler"
	"farmsentry/internal/logger"
	"farmsentry/internal/middleware"
	"farmsentry/internal/repository"
)

// AlertStore is what the alert and clip endpoints need beyond the repository.
type AlertStore interface {
	handler.AlertReader
	handler.AlertDeleter
	handler.ClipLister
}

// Dependencies are the components the HTTP layer talks to.
type Dependencies struct {
	Config        *config.Config
	Logger        *logger.Logger
	Camera        handler.LiveCamera
	Loop          handler.LoopStatus
	AlertRepo     repository.AlertRepository
	Alerts        AlertStore
	Hub           handler.Subscribers
	LiveStream    http.Handler
	WarningStream http.Handler
}

// dynamicHTMLHandler serves /path as /static/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/" {
		path = "/index"
	}

	filePath := filepath.Join("static", filepath.Clean(path)+".html")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, filePath)
}

// SetupRoutes registers HTTP routes, static file serving, API endpoints,
// and wraps the mux with the authentication middleware.
func SetupRoutes(d Dependencies) http.Handler {
	mux := http.NewServeMux()
	cfg, log := d.Config, d.Logger

	// Static files
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	// Camera
	mux.Handle("GET /api/camera/live", d.LiveStream)
	mux.Handle("GET /api/camera/warnings", d.WarningStream)
	mux.HandleFunc("GET /api/camera/snapshot", handler.SnapshotHandler(d.Camera))
	mux.HandleFunc("GET /api/camera/status", handler.CameraStatusHandler(d.Camera, d.Loop, log))

	// Alerts
	mux.HandleFunc("GET /api/alerts", handler.ListAlertsHandler(d.AlertRepo, log))
	mux.HandleFunc("GET /api/alerts/latest", handler.LatestAlertHandler(d.AlertRepo, log))
	mux.HandleFunc("GET /api/alerts/unread/count", handler.UnreadCountHandler(d.AlertRepo, log))
	mux.HandleFunc("POST /api/alerts/read-all", handler.MarkAllReadHandler(d.AlertRepo, log))
	mux.HandleFunc("POST /api/alerts/{id}/read", handler.MarkReadHandler(d.AlertRepo, log))
	mux.HandleFunc("GET /api/alerts/{id}", handler.GetAlertHandler(d.Alerts, log))
	mux.HandleFunc("GET /api/alerts/{id}/image", handler.AlertImageHandler(d.AlertRepo, log))
	mux.HandleFunc("DELETE /api/alerts/{id}", handler.DeleteAlertHandler(d.Alerts, log))
	mux.HandleFunc("GET /ws/alerts", handler.AlertsWebsocketHandler(d.Hub, log))

	// Clips
	mux.HandleFunc("GET /api/videos", handler.ListVideosHandler(d.Alerts, log))
	mux.HandleFunc("GET /api/videos/{filename}", handler.ServeVideoHandler(cfg, log))

	// Log endpoints
	mux.HandleFunc("GET /logs/{level}", handler.ShowLogsHandler(cfg))
	mux.HandleFunc("POST /logs/{level}/clear", handler.ClearLogsHandler(log))

	// Auth endpoints
	mux.HandleFunc("POST /auth/login", handler.LoginHandler(cfg, log))
	mux.HandleFunc("GET /auth/logout", handler.LogoutHandler)

	// Automatic HTML handler mapping for example: /settings -> /static/settings.html
	mux.HandleFunc("GET /", dynamicHTMLHandler)

	return middleware.AuthMiddleware(mux)
}
