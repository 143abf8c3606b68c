package applog

import (
	"fmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
	"werewolf-bdd/build"
)

type Logger = zap.Logger

// LogEntry is a single zap entry travelling through an async sink.
type LogEntry struct {
	Entry  *zapcore.Entry
	Fields []zap.Field
}

const (
	asyncSinkBufferSize     = 4096
	asyncSinkShutdownTimout = 2 * time.Second
)

var (
	globalLogger  = newConsoleLogger(zapcore.InfoLevel)
	asyncSinks    []*asyncSink
	logFile       *os.File
	acceptingLogs int32 = 1
)

func Info(msg string, fields ...zapcore.Field) {
	if atomic.LoadInt32(&acceptingLogs) == 0 {
		return
	}
	globalLogger.WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

func Warn(msg string, fields ...zapcore.Field) {
	if atomic.LoadInt32(&acceptingLogs) == 0 {
		return
	}
	globalLogger.WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
}

func Debug(msg string, fields ...zapcore.Field) {
	if atomic.LoadInt32(&acceptingLogs) == 0 {
		return
	}
	globalLogger.WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
}

func Error(msg string, fields ...zapcore.Field) {
	if atomic.LoadInt32(&acceptingLogs) == 0 {
		return
	}
	globalLogger.WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}

func Fatal(msg string, fields ...zapcore.Field) {
	globalLogger.WithOptions(zap.AddCallerSkip(1)).Fatal(msg, fields...)
}

// LogStartupInfo writes the first line of every run: build commit plus the parsed launch config.
func LogStartupInfo(launchArgs interface{}) {
	buildInfo := build.GetBuildInfo()
	buildCommit := "unknown"
	if buildInfo != nil && buildInfo.CommitHash != "" {
		buildCommit = buildInfo.CommitHash
	}

	Info("Harness started",
		zap.String("buildCommit", buildCommit),
		zap.Any("launchArgs", launchArgs),
	)
}

func GetLogger() *Logger {
	return globalLogger
}

// Initialize replaces the default console logger with one writing JSON to stdout and
// to <logPath>/run_<runID>.log. An empty logPath means "<workdir>/logs".
func Initialize(runID string, rawLogLevel int, logPath string) error {
	if logPath == "" {
		workdir, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current working directory: %w", err)
		}
		logPath = filepath.Join(workdir, "logs")
	}

	if err := os.MkdirAll(logPath, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logFilename := filepath.Join(logPath, fmt.Sprintf("run_%s.log", runID))
	f, err := os.OpenFile(logFilename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file '%s': %w", logFilename, err)
	}
	logFile = f

	level := safeGetLogLevelOrDefault(rawLogLevel)
	jsonEncoder := zapcore.NewJSONEncoder(getEncoderConfig())

	consoleSink := newAsyncSink(zapcore.NewCore(jsonEncoder, zapcore.AddSync(os.Stdout), level), asyncSinkBufferSize)
	fileSink := newAsyncSink(zapcore.NewCore(jsonEncoder.Clone(), zapcore.AddSync(logFile), level), asyncSinkBufferSize)
	asyncSinks = []*asyncSink{consoleSink, fileSink}

	l := zap.New(zapcore.NewTee(consoleSink, fileSink), zap.AddCaller()).
		With(zap.String("runId", runID))

	atomic.StoreInt32(&acceptingLogs, 1)
	setLogger(l)
	return nil
}

// Shutdown stops accepting new entries, drains the async sinks and closes the log file.
// Safe to call more than once.
func Shutdown() {
	atomic.StoreInt32(&acceptingLogs, 0)

	_ = globalLogger.Sync()
	for _, sink := range asyncSinks {
		sink.Shutdown(asyncSinkShutdownTimout)
	}
	asyncSinks = nil

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func safeGetLogLevelOrDefault(rawLogLevel int) zapcore.Level {
	level := zapcore.Level(rawLogLevel)
	if level < zapcore.DebugLevel || level > zapcore.FatalLevel {
		return zapcore.InfoLevel
	}
	return level
}

func getEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339Nano))
	}
	return encoderConfig
}

func newConsoleLogger(level zapcore.Level) *Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(getEncoderConfig()),
		zapcore.AddSync(os.Stdout),
		level,
	)
	return zap.New(core, zap.AddCaller())
}

func setLogger(l *Logger) {
	globalLogger = l
	zap.ReplaceGlobals(globalLogger)
}
