// Package obslog wraps logrus with size/age-based file rotation via
// lumberjack, mirroring the reference bot's pkg/logger. Unlike the
// reference bot, rotation here is purely size/age driven — this engine
// has no fixed market-cycle boundary to key log files on.
package obslog

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	std   *logrus.Logger
	stdMu sync.Mutex
)

// Config controls the global logger.
type Config struct {
	Level      string // debug, info, warn, error
	OutputFile string // optional; empty means console only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Init installs the global logger. Safe to call once at startup.
func Init(cfg Config) error {
	stdMu.Lock()
	defer stdMu.Unlock()

	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	formatter := &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	}
	logger.SetFormatter(formatter)

	writers := []io.Writer{os.Stdout}
	if cfg.OutputFile != "" {
		if dir := filepath.Dir(cfg.OutputFile); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}
	logger.SetOutput(io.MultiWriter(writers...))

	std = logger
	return nil
}

// InitDefault sets up sane console-only defaults; used by tests and
// tools that never call Init explicitly.
func InitDefault() {
	stdMu.Lock()
	already := std != nil
	stdMu.Unlock()
	if already {
		return
	}
	_ = Init(Config{Level: "info"})
}

func get() *logrus.Logger {
	stdMu.Lock()
	defer stdMu.Unlock()
	if std == nil {
		l := logrus.New()
		l.SetLevel(logrus.InfoLevel)
		return l
	}
	return std
}

func Debugf(format string, args ...interface{}) { get().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { get().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { get().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { get().Errorf(format, args...) }

func WithField(key string, value interface{}) *logrus.Entry {
	return get().WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return get().WithFields(fields)
}

// Component returns a logger scoped to a named engine component, the
// convention used throughout internal/ for per-subsystem log lines.
func Component(name string) *logrus.Entry {
	return WithField("component", name)
}
