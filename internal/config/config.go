package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable of the capture → detect → classify → record pipeline
// and of the small HTTP surface around it.
type Config struct {
	Port     int
	Password string

	CameraDevice  string
	CaptureWidth  int
	CaptureHeight int
	CaptureFPS    int
	JPEGQuality   int
	// RetentionSeconds is how much video history is kept in memory.
	RetentionSeconds float64
	// MaxReadFailures is the number of consecutive failed reads before the device is reopened.
	MaxReadFailures int

	MotionMinArea       float64
	ConfidenceThreshold float64
	IntruderClasses     []int
	ModelPath           string
	ModelConfigPath     string
	ModelInputSize      int

	SampleInterval time.Duration
	SampleGap      time.Duration
	PreTrigger     time.Duration
	PostTrigger    time.Duration
	Cooldown       time.Duration

	ClipDirectory        string
	SnapshotDirectory    string
	DatabasePath         string
	LogDirectory         string
	MaxClipDirectorySize int64 // GB
	CleanupInterval      time.Duration
}

// DefaultIntruderClasses are the COCO ids of a person and the farm-relevant animals
// (bird, cat, dog, horse, sheep, cow).
var DefaultIntruderClasses = []int{1, 16, 17, 18, 19, 20, 21}

// Load reads the configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:     getEnvAsInt("PORT", 8080),
		Password: getEnv("PASSWORD", "farmsentry"),

		CameraDevice:     getEnv("CAMERA_DEVICE", "0"),
		CaptureWidth:     getEnvAsInt("CAPTURE_WIDTH", 640),
		CaptureHeight:    getEnvAsInt("CAPTURE_HEIGHT", 480),
		CaptureFPS:       getEnvAsInt("CAPTURE_FPS", 15),
		JPEGQuality:      getEnvAsInt("JPEG_QUALITY", 85),
		RetentionSeconds: getEnvAsFloat("RETENTION_SECONDS", 15),
		MaxReadFailures:  getEnvAsInt("MAX_READ_FAILURES", 50),

		MotionMinArea:       getEnvAsFloat("MOTION_MIN_AREA", 500),
		ConfidenceThreshold: getEnvAsFloat("CONFIDENCE_THRESHOLD", 0.6),
		IntruderClasses:     getEnvAsIntList("INTRUDER_CLASSES", DefaultIntruderClasses),
		ModelPath:           getEnv("MODEL_PATH", filepath.Join(".", "models", "frozen_inference_graph.pb")),
		ModelConfigPath:     getEnv("MODEL_CONFIG_PATH", filepath.Join(".", "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt")),
		ModelInputSize:      getEnvAsInt("MODEL_INPUT_SIZE", 300),

		SampleInterval: getEnvAsDuration("SAMPLE_INTERVAL", 6*time.Second),
		SampleGap:      getEnvAsDuration("SAMPLE_GAP", 2*time.Second),
		PreTrigger:     getEnvAsDuration("PRE_TRIGGER", 5*time.Second),
		PostTrigger:    getEnvAsDuration("POST_TRIGGER", 5*time.Second),
		Cooldown:       getEnvAsDuration("COOLDOWN", 60*time.Second),

		ClipDirectory:        getEnv("CLIP_DIR", filepath.Join(".", "videos")),
		SnapshotDirectory:    getEnv("SNAPSHOT_DIR", filepath.Join(".", "snapshots")),
		DatabasePath:         getEnv("DB_PATH", filepath.Join(".", "data", "farmsentry.db")),
		LogDirectory:         getEnv("LOG_DIR", filepath.Join(".", "logs")),
		MaxClipDirectorySize: getEnvAsInt64("MAX_CLIP_DIRECTORY_SIZE", 4),
		CleanupInterval:      getEnvAsDuration("CLEANUP_INTERVAL", 10*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsIntList parses a comma separated list such as "1,16,17". An entry that
// is not a number makes the whole value fall back to the default.
func getEnvAsIntList(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return append([]int(nil), defaultValue...)
	}

	var out []int
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return append([]int(nil), defaultValue...)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return append([]int(nil), defaultValue...)
	}
	return out
}
