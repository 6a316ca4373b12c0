package logger

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"farmsentry/internal/config"
)

// Level is a log severity. Each level is written to its own file.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Levels lists every level, least severe first.
var Levels = []Level{LevelInfo, LevelWarning, LevelError}

// ParseLevel maps a level name such as "warning" to its Level.
func ParseLevel(name string) (Level, bool) {
	for _, l := range Levels {
		if string(l) == name {
			return l, true
		}
	}
	return "", false
}

// FileName is the file the level is written to inside the log directory.
func (l Level) FileName() string {
	return string(l) + ".log"
}

// Logger provides leveled logging (info/warning/error) to files and stdout/stderr.
type Logger struct {
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	logDir     string
	files      []*os.File
	mu         sync.Mutex
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(config *config.Config) *Logger {
	if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	l := &Logger{logDir: config.LogDirectory}

	console := map[Level]io.Writer{
		LevelInfo:    os.Stdout,
		LevelWarning: os.Stdout,
		LevelError:   os.Stderr,
	}
	writers := make(map[Level]io.Writer, len(Levels))
	for _, level := range Levels {
		file := openLogFile(filepath.Join(l.logDir, level.FileName()))
		l.files = append(l.files, file)
		writers[level] = io.MultiWriter(console[level], file)
	}

	l.setup(writers, log.Ldate|log.Ltime|log.Lshortfile, true)
	return l
}

// NewWithWriter creates a Logger that sends every level to w. It has no log
// directory, so CleanLogs is a no-op.
func NewWithWriter(w io.Writer) *Logger {
	l := &Logger{}
	l.setup(map[Level]io.Writer{LevelInfo: w, LevelWarning: w, LevelError: w}, log.Ltime|log.Lshortfile, false)
	return l
}

func (l *Logger) setup(writers map[Level]io.Writer, flags int, emoji bool) {
	prefix := func(icon, name string) string {
		if emoji {
			return icon + " " + name
		}
		return name
	}
	l.infoLog = log.New(writers[LevelInfo], prefix("ℹ️ ", "INFO    "), flags)
	l.warningLog = log.New(writers[LevelWarning], prefix("⚠️ ", "WARNING "), flags)
	l.errorLog = log.New(writers[LevelError], prefix("❌", "ERROR   "), flags)
}

// openLogFile opens or creates a log file for appending.
func openLogFile(filename string) *os.File {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file %s: %v", filename, err)
	}
	return file
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.output(l.infoLog, format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.output(l.warningLog, format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.output(l.errorLog, format, v...)
}

// output reports the caller of Info/Warning/Error, not itself.
func (l *Logger) output(target *log.Logger, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	target.Output(3, fmt.Sprintf(format, v...))
}

// Path returns the file of level, or "" for a writer-backed logger.
func (l *Logger) Path(level Level) string {
	if l.logDir == "" {
		return ""
	}
	return filepath.Join(l.logDir, level.FileName())
}

// CleanLogs truncates the file of level.
func (l *Logger) CleanLogs(level Level) error {
	path := l.Path(level)
	if path == "" {
		return nil
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		l.Error("Error opening file: %v", err)
		return err
	}
	defer file.Close()

	l.Info("Log file %s has been cleared.", level.FileName())
	return nil
}

// Close releases the log files. Later entries still reach the console.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, f := range l.files {
		errs = append(errs, f.Close())
	}
	l.files = nil
	return errors.Join(errs...)
}
