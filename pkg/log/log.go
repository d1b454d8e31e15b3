package log

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.RWMutex
	logger  *logrus.Logger
	service string
)

// Config log configuration
type Config struct {
	Level      string `json:"level" mapstructure:"level"`             // debug, info, warn, error
	Format     string `json:"format" mapstructure:"format"`           // json, text
	Output     string `json:"output" mapstructure:"output"`           // stdout, stderr, file
	Filename   string `json:"filename" mapstructure:"filename"`       // log file path
	MaxSize    int    `json:"max_size" mapstructure:"max_size"`       // maximum size of a single file (MB)
	MaxAge     int    `json:"max_age" mapstructure:"max_age"`         // maximum number of days to keep files
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"` // maximum number of backup files
	Compress   bool   `json:"compress" mapstructure:"compress"`
	Service    string `json:"service" mapstructure:"service"` // attached to every entry as "service"
}

// Init initialize logger
func Init(cfg Config) error {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	}

	output, err := openOutput(cfg)
	if err != nil {
		return err
	}
	l.SetOutput(output)

	mu.Lock()
	logger = l
	service = cfg.Service
	mu.Unlock()
	return nil
}

func openOutput(cfg Config) (io.Writer, error) {
	switch cfg.Output {
	case "stderr":
		return os.Stderr, nil
	case "file":
		if cfg.Filename == "" {
			return os.Stdout, nil
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Filename), 0755); err != nil {
			return nil, err
		}
		return &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxAge,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}, nil
	default:
		return os.Stdout, nil
	}
}

// SetOutput redirects the current logger, mostly for tests.
func SetOutput(w io.Writer) {
	GetLogger().SetOutput(w)
}

// GetLogger get logger instance
func GetLogger() *logrus.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = logrus.New()
	}
	return logger
}

func entry() *logrus.Entry {
	l := GetLogger()
	mu.RLock()
	svc := service
	mu.RUnlock()
	if svc == "" {
		return logrus.NewEntry(l)
	}
	return l.WithField("service", svc)
}

func Debug(args ...interface{}) { entry().Debug(args...) }

func Debugf(format string, args ...interface{}) { entry().Debugf(format, args...) }

func Info(args ...interface{}) { entry().Info(args...) }

func Infof(format string, args ...interface{}) { entry().Infof(format, args...) }

func Warn(args ...interface{}) { entry().Warn(args...) }

func Warnf(format string, args ...interface{}) { entry().Warnf(format, args...) }

func Error(args ...interface{}) { entry().Error(args...) }

func Errorf(format string, args ...interface{}) { entry().Errorf(format, args...) }

// Fatal logs and exits the process
func Fatal(args ...interface{}) { entry().Fatal(args...) }

func Fatalf(format string, args ...interface{}) { entry().Fatalf(format, args...) }

// WithField add field
func WithField(key string, value interface{}) *logrus.Entry {
	return entry().WithField(key, value)
}

// WithFields add multiple fields
func WithFields(fields logrus.Fields) *logrus.Entry {
	return entry().WithFields(fields)
}

// WithError add error field
func WithError(err error) *logrus.Entry {
	return entry().WithError(err)
}
