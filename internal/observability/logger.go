// Package observability owns the process-wide zap logger: a colorized
// console core for the operator, optionally teed with a rotated JSON
// file core for anything that parses logs later.
package observability

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/doorknock-cli/internal/config"
)

var (
	active   atomic.Pointer[zap.Logger]
	initOnce sync.Once
)

const ansiReset = "\x1b[0m"

// ansiCodes maps the palette names accepted in config to terminal codes.
var ansiCodes = map[string]string{
	"black":   "\x1b[30m",
	"red":     "\x1b[31m",
	"green":   "\x1b[32m",
	"yellow":  "\x1b[33m",
	"blue":    "\x1b[34m",
	"magenta": "\x1b[35m",
	"cyan":    "\x1b[36m",
	"white":   "\x1b[37m",
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Initialize builds the global logger once. Console output goes to the
// given writer; a configured log file adds a JSON core behind lumberjack
// rotation. Later calls are no-ops so the first configuration wins.
func Initialize(cfg config.LoggerConfig, consoleWriter zapcore.WriteSyncer) {
	initOnce.Do(func() {
		level := zap.NewAtomicLevel()
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level.SetLevel(zap.InfoLevel)
		}

		cores := []zapcore.Core{
			zapcore.NewCore(encoderFor(cfg), consoleWriter, level),
		}
		if cfg.LogFile != "" {
			// The file core stays JSON regardless of the console format so
			// log shippers never see ANSI codes.
			rotated := zapcore.AddSync(&lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			})
			cores = append(cores, zapcore.NewCore(jsonEncoder(), rotated, level))
		}

		opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
		if cfg.AddSource {
			opts = append(opts, zap.AddCaller())
		}

		logger := zap.New(zapcore.NewTee(cores...), opts...).Named(cfg.ServiceName)
		active.Store(logger)

		// Route stdlib log output and zap's package globals through the
		// same cores so third-party noise arrives structured.
		zap.ReplaceGlobals(logger)
		zap.RedirectStdLog(logger)
	})
}

// InitializeLogger is the production entry point: Initialize with console
// output on a locked stdout.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, zapcore.Lock(os.Stdout))
}

// ResetForTest clears the singleton so each test can initialize fresh.
func ResetForTest() {
	active.Store(nil)
	initOnce = sync.Once{}
}

// GetLogger returns the global logger. Before Initialize it hands back a
// development fallback rather than nil so callers never have to guard.
func GetLogger() *zap.Logger {
	if logger := active.Load(); logger != nil {
		return logger
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	l.Warn("Global logger requested before initialization; using fallback.")
	return l.Named("fallback")
}

// Sync flushes buffered entries. Call on the way out of the process.
func Sync() {
	logger := active.Load()
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil && !benignSyncError(err) {
		fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
	}
}

// benignSyncError reports the flush failures syncing a terminal produces
// on some platforms. Those are noise, not lost log lines.
func benignSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stdout") ||
		strings.Contains(msg, "invalid argument") ||
		strings.Contains(msg, "operation not supported")
}

// encoderFor picks the console encoder for format "console" and JSON for
// everything else.
func encoderFor(cfg config.LoggerConfig) zapcore.Encoder {
	if cfg.Format == "console" {
		return consoleEncoder(cfg.Colors)
	}
	return jsonEncoder()
}

func jsonEncoder() zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(ec)
}

// consoleEncoder renders single-line terminal output: colorized level,
// the logger name with a dot suffix so component paths read as a message
// prefix (e.g. "doorknock.hunter."), then message and fields.
func consoleEncoder(colors config.ColorConfig) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	ec.EncodeLevel = levelEncoder(colors)
	ec.EncodeName = func(loggerName string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(loggerName + ".")
	}
	return zapcore.NewConsoleEncoder(ec)
}

// levelEncoder colorizes the level label with the configured palette.
// Unknown or unset color names leave the label plain.
func levelEncoder(colors config.ColorConfig) zapcore.LevelEncoder {
	byLevel := map[zapcore.Level]string{
		zapcore.DebugLevel:  ansiCodes[colors.Debug],
		zapcore.InfoLevel:   ansiCodes[colors.Info],
		zapcore.WarnLevel:   ansiCodes[colors.Warn],
		zapcore.ErrorLevel:  ansiCodes[colors.Error],
		zapcore.DPanicLevel: ansiCodes[colors.DPanic],
		zapcore.PanicLevel:  ansiCodes[colors.Panic],
		zapcore.FatalLevel:  ansiCodes[colors.Fatal],
	}
	return func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		label := strings.ToUpper(level.String())
		if code := byLevel[level]; code != "" {
			enc.AppendString(code + label + ansiReset)
			return
		}
		enc.AppendString(label)
	}
}
