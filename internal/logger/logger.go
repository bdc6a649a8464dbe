// Package logger wraps zap with the file-rotation and encoder setup this
// project uses everywhere else log output is produced.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zap.Logger with the project's component-tagging convention.
type Logger struct {
	*zap.Logger
	config Config
}

// Config holds logger configuration. The top-level config file has no
// logging section; cmd/hblink4 builds this with fixed defaults.
type Config struct {
	Level       string
	Format      string // "json" or "console"
	File        string
	MaxSize     int
	MaxBackups  int
	MaxAge      int
	Development bool
}

// New builds a Logger from cfg, wiring console/JSON encoding and, when
// cfg.File is set, a rotating file sink alongside stdout.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logger: invalid level %q: %w", cfg.Level, err)
	}

	core := zapcore.NewCore(newEncoder(cfg), newSink(cfg), level)
	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return &Logger{Logger: zap.New(core, opts...), config: cfg}, nil
}

func newEncoder(cfg Config) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	if cfg.Development {
		ec = zap.NewDevelopmentEncoderConfig()
	} else {
		ec.TimeKey = "timestamp"
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	if cfg.Format == "json" {
		return zapcore.NewJSONEncoder(ec)
	}
	return zapcore.NewConsoleEncoder(ec)
}

// newSink returns stdout alone, or stdout tee'd into a lumberjack rotator
// when cfg.File names a path. A directory that can't be created falls back
// to stdout rather than failing logger construction.
func newSink(cfg Config) zapcore.WriteSyncer {
	if cfg.File == "" {
		return zapcore.AddSync(os.Stdout)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return zapcore.AddSync(os.Stdout)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}
	return zapcore.AddSync(io.MultiWriter(os.Stdout, rotator))
}

// WithComponent tags a logger with a component field, the convention used
// throughout this codebase instead of per-package global loggers.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("component", component)), config: l.config}
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() { _ = l.Logger.Sync() }

// Default returns a console development logger, used before the real
// configuration has been loaded.
func Default() *Logger {
	l, err := New(Config{Level: "info", Format: "console", Development: true})
	if err != nil {
		zl, _ := zap.NewDevelopment()
		return &Logger{Logger: zl}
	}
	return l
}

// Field constructors re-exported for call sites that don't want to import
// zap directly.
func String(key, value string) zap.Field        { return zap.String(key, value) }
func Int(key string, value int) zap.Field       { return zap.Int(key, value) }
func Int64(key string, value int64) zap.Field   { return zap.Int64(key, value) }
func Uint32(key string, value uint32) zap.Field { return zap.Uint32(key, value) }
func Duration(key string, value time.Duration) zap.Field {
	return zap.Duration(key, value)
}
func Error(err error) zap.Field { return zap.Error(err) }
