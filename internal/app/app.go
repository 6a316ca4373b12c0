package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"farmsentry/internal/config"
	"farmsentry/internal/logger"
	"farmsentry/internal/repository/sqlite"
	"farmsentry/internal/route"
	"farmsentry/internal/service"
	"farmsentry/internal/service/ai"
	"farmsentry/internal/service/camera"
	"farmsentry/internal/service/recorder"
	"farmsentry/internal/service/storage"
	"farmsentry/internal/service/websocket"

	"github.com/hybridgroup/mjpeg"
)

const shutdownTimeout = 5 * time.Second

// App owns every long-lived component and wires them together.
type App struct {
	config     *config.Config
	logger     *logger.Logger
	db         *sqlite.DB
	source     *camera.FrameSource
	classifier *ai.IntrusionClassifier
	alerts     *storage.AlertService
	hub        *websocket.HubService
	manager    *service.Manager
	live       *mjpeg.Stream
	server     *http.Server
}

// NewApp builds the application from cfg. Nothing is started yet.
func NewApp(cfg *config.Config) (*App, error) {
	return newApp(cfg, camera.OpenVideoCapture)
}

func newApp(cfg *config.Config, open camera.CaptureOpener) (*App, error) {
	log := logger.NewLogger(cfg)

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	alertRepo := sqlite.NewAlertRepository(db)
	detectionRepo := sqlite.NewDetectionRepository(db)

	source := camera.NewFrameSourceWithOpener(cfg, log, open)
	motion := ai.NewMotionDetector(cfg, log)
	classifier := ai.NewIntrusionClassifier(cfg, log)
	clips := recorder.NewClipRecorder(cfg, log)
	alerts := storage.NewAlertService(cfg, log, alertRepo, detectionRepo)
	hub := websocket.NewHubService(log)

	live := mjpeg.NewStream()
	warnings := mjpeg.NewStream()

	manager := service.NewManager(cfg, log, source, motion, classifier, clips, alerts, hub, warnings)

	router := route.SetupRoutes(route.Dependencies{
		Config:        cfg,
		Logger:        log,
		Camera:        source,
		Loop:          manager,
		AlertRepo:     alertRepo,
		Alerts:        alerts,
		Hub:           hub,
		LiveStream:    live,
		WarningStream: warnings,
	})

	return &App{
		config:     cfg,
		logger:     log,
		db:         db,
		source:     source,
		classifier: classifier,
		alerts:     alerts,
		hub:        hub,
		manager:    manager,
		live:       live,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run starts capture, the security loop and the HTTP server, and blocks until
// ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.source.Start(); err != nil {
		// Degraded: the server still runs and serves stored alerts.
		a.logger.Error("Camera not available, running without live video: %v", err)
	}

	var wg sync.WaitGroup
	start := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}
	start(a.hub.Run)
	start(a.alerts.Run)
	start(a.manager.Run)
	start(func(ctx context.Context) {
		camera.Feed(ctx, a.source, a.live, a.config.CaptureFPS)
	})

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("🚀 Farm security server listening on http://localhost:%d", a.config.Port)
		a.logger.Info("📁 Clips: %s", a.config.ClipDirectory)
		a.logger.Info("🤖 AI Model: %s", a.config.ModelPath)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		runErr = err
	}

	a.shutdown(cancel, &wg)
	return runErr
}

// shutdown stops the components in dependency order.
func (a *App) shutdown(cancel context.CancelFunc, wg *sync.WaitGroup) {
	a.logger.Info("Shutting down...")

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		// MJPEG viewers keep their requests open.
		a.server.Close()
	}

	cancel()
	wg.Wait()

	a.source.Stop()
	if err := a.classifier.Close(); err != nil {
		a.logger.Warning("Failed to release model: %v", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warning("Failed to close database: %v", err)
	}
	a.logger.Info("👋 Stopped")
	a.logger.Close()
}
