package logging

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the process logger. It always writes JSON to stdout; when dir is set it
// also writes app.log (level and above) and error.log (errors only) with rotation.
func New(level, dir string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), lvl),
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		cores = append(cores,
			zapcore.NewCore(encoder, zapcore.AddSync(&lumberjack.Logger{
				Filename: filepath.Join(dir, "app.log"), MaxSize: 100, MaxAge: 28, Compress: true,
			}), lvl),
			zapcore.NewCore(encoder, zapcore.AddSync(&lumberjack.Logger{
				Filename: filepath.Join(dir, "error.log"), MaxSize: 100, MaxAge: 30, Compress: true,
			}), zapcore.ErrorLevel),
		)
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// Timed lets you do: defer logging.Timed(log, "HandleSend")()
func Timed(log *zap.Logger, name string, fields ...zap.Field) func() {
	start := time.Now()
	return func() {
		log.Debug("timed",
			append(fields, zap.String("func", name), zap.Int64("duration_ms", time.Since(start).Milliseconds()))...,
		)
	}
}
