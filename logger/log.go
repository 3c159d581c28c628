package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Log *zap.Logger

func init() {
	Log = zap.New(consoleCore(zapcore.DebugLevel), zap.AddCaller())
}

// Config controls the optional reconfiguration done by Init. With the
// zero value the logger keeps its console-only default.
type Config struct {
	Level string `json:"level"` // debug|info|warn|error
	File  string `json:"file"`  // when set, also log to a rotated file
}

// Init rebuilds the package logger from config. Called once from main;
// before that the init() console logger is in effect.
func Init(c Config) {
	level := zapcore.InfoLevel
	if err := level.Set(c.Level); err != nil || c.Level == "" {
		level = zapcore.InfoLevel
	}

	cores := []zapcore.Core{consoleCore(level)}
	if c.File != "" {
		fileSync := zapcore.AddSync(&lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
		})
		fileEnc := encoderConfig()
		fileEnc.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEnc), fileSync, level))
	}

	Log = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:      "ts",
		LevelKey:     "level",
		NameKey:      "logger",
		CallerKey:    "caller",
		MessageKey:   "msg",
		LineEnding:   zapcore.DefaultLineEnding,
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.CapitalColorLevelEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}
}

func consoleCore(level zapcore.Level) zapcore.Core {
	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		zapcore.AddSync(os.Stdout),
		level,
	)
}

// Shortcut helpers.
func Info(msg string, fields ...zap.Field) { Log.Info(msg, fields...) }
func Infof(format string, args ...interface{}) {
	Log.Info(fmt.Sprintf(format, args...))
}
func Warn(msg string, fields ...zap.Field) { Log.Warn(msg, fields...) }
func Warnf(format string, args ...interface{}) {
	Log.Warn(fmt.Sprintf(format, args...))
}
func Error(msg string, fields ...zap.Field) { Log.Error(msg, fields...) }

func Errorf(format string, args ...interface{}) {
	Log.Error(fmt.Sprintf(format, args...))
}

func Debug(msg string, fields ...zap.Field) { Log.Debug(msg, fields...) }
func Debugf(format string, args ...interface{}) {
	Log.Debug(fmt.Sprintf(format, args...))
}
