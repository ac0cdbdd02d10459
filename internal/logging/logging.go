// Package logging builds the service's zap logger.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level and the optional rotating file directory.
type Options struct {
	Level string
	Dir   string
}

func encoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

// New logs JSON to stdout. When Dir is set it also writes app.log and an
// errors-only error.log there, both rotated by lumberjack.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("logging: level %q: %w", opts.Level, err)
		}
	}
	enc := encoder()
	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level),
	}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("logging: create %s: %w", opts.Dir, err)
		}
		cores = append(cores,
			zapcore.NewCore(enc,
				zapcore.AddSync(&lumberjack.Logger{
					Filename: filepath.Join(opts.Dir, "app.log"), MaxSize: 100, MaxAge: 28, Compress: true,
				}),
				level,
			),
			zapcore.NewCore(enc,
				zapcore.AddSync(&lumberjack.Logger{
					Filename: filepath.Join(opts.Dir, "error.log"), MaxSize: 100, MaxAge: 30, Compress: true,
				}),
				zap.ErrorLevel,
			),
		)
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// Truncate shortens user content before it is logged.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "…"
}
