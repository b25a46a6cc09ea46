// Package logging builds the service's zap logger and carries the request id
// through contexts.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RequestIDKey is the log field holding the request id.
const RequestIDKey = "request_id"

// Config selects level, encoding and destination.
type Config struct {
	Level  string       `yaml:"level"`
	Format string       `yaml:"format"` // console or json
	Output string       `yaml:"output"` // stdout, stderr, file or a file path
	File   FileConfig   `yaml:"file"`
	Rotate RotateConfig `yaml:"rotate"`
}

// FileConfig names the log file used when Output is "file".
type FileConfig struct {
	Dir      string `yaml:"dir"`
	Filename string `yaml:"filename"`
}

// RotateConfig enables lumberjack rotation of the log file.
type RotateConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxAgeDays int  `yaml:"max_age_days"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

// DefaultConfig logs info and above to stdout in console format.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: "stdout",
		File:   FileConfig{Dir: "logs", Filename: "admin-search"},
		Rotate: RotateConfig{MaxSizeMB: 100, MaxAgeDays: 14, MaxBackups: 10, Compress: true},
	}
}

// New builds a logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	sink, err := writeSyncer(cfg)
	if err != nil {
		return nil, err
	}

	return newLogger(cfg.Format, sink, level), nil
}

// NewWithWriter builds a logger writing to w. Tests use it to capture output.
func NewWithWriter(cfg Config, w io.Writer) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return newLogger(cfg.Format, zapcore.AddSync(w), level), nil
}

func newLogger(format string, sink zapcore.WriteSyncer, level zapcore.Level) *zap.Logger {
	core := zapcore.NewCore(encoder(format), sink, level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// ParseLevel maps a level name to a zap level. An empty name is info.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("logging: unknown level %q", name)
	}
}

func encoder(format string) zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if format == "json" {
		return zapcore.NewJSONEncoder(cfg)
	}
	return zapcore.NewConsoleEncoder(cfg)
}

func writeSyncer(cfg Config) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	case "file":
		if cfg.File.Dir == "" || cfg.File.Filename == "" {
			return nil, fmt.Errorf("logging: file output needs file.dir and file.filename")
		}
		if err := os.MkdirAll(cfg.File.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("logging: create log directory: %w", err)
		}
		return fileSyncer(filepath.Join(cfg.File.Dir, cfg.File.Filename+".log"), cfg.Rotate)
	default:
		return fileSyncer(cfg.Output, cfg.Rotate)
	}
}

func fileSyncer(path string, rotate RotateConfig) (zapcore.WriteSyncer, error) {
	if rotate.Enabled {
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    rotate.MaxSizeMB,
			MaxAge:     rotate.MaxAgeDays,
			MaxBackups: rotate.MaxBackups,
			Compress:   rotate.Compress,
			LocalTime:  true,
		}), nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return zapcore.AddSync(file), nil
}

type requestIDKey struct{}

// WithRequestID stores id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// FromContext returns base with the request id field attached when ctx
// carries one.
func FromContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	if id := RequestID(ctx); id != "" {
		return base.With(zap.String(RequestIDKey, id))
	}
	return base
}
