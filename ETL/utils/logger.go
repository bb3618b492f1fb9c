package utils

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerOptions задает параметры логгера ETL
type LoggerOptions struct {
	// debug, info, warn или error; пустое значение означает info
	Level   string
	Verbose bool
	JSON    bool
	File    string
}

// ETLLogger представляет логгер для ETL-процесса
type ETLLogger struct {
	sugar *zap.SugaredLogger
	base  *zap.Logger
	level zap.AtomicLevel
}

// NewETLLogger создает новый экземпляр логгера для ETL
func NewETLLogger(opts LoggerOptions) (*ETLLogger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if opts.Level != "" {
		parsed, err := zap.ParseAtomicLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("неизвестный уровень логирования %q: %w", opts.Level, err)
		}
		level = parsed
	}
	// --verbose важнее уровня из конфигурации
	if opts.Verbose {
		level.SetLevel(zapcore.DebugLevel)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if opts.JSON {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
	}

	// Дополнительно пишем в лог-файл, если он указан
	if opts.File != "" {
		file, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("не удалось открыть или создать файл лога: %w", err)
		}
		fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(file), level))
	}

	base := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	return &ETLLogger{
		sugar: base.Sugar(),
		base:  base,
		level: level,
	}, nil
}

// NewNopLogger возвращает логгер, который ничего не пишет
func NewNopLogger() *ETLLogger {
	base := zap.NewNop()
	return &ETLLogger{sugar: base.Sugar(), base: base, level: zap.NewAtomicLevel()}
}

// Level возвращает текущий уровень логирования
func (l *ETLLogger) Level() string {
	return l.level.String()
}

// SetLevel меняет уровень логирования во время работы
func (l *ETLLogger) SetLevel(level string) error {
	return l.level.UnmarshalText([]byte(level))
}

// Zap возвращает базовый zap-логгер
func (l *ETLLogger) Zap() *zap.Logger {
	return l.base
}

// Sync сбрасывает буферы логгера
func (l *ETLLogger) Sync() {
	_ = l.base.Sync()
}

// Info логирует информационное сообщение
func (l *ETLLogger) Info(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// Warn логирует предупреждение
func (l *ETLLogger) Warn(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

// Error логирует сообщение об ошибке
func (l *ETLLogger) Error(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

// Debug логирует отладочное сообщение (только на уровне debug)
func (l *ETLLogger) Debug(format string, v ...interface{}) {
	l.sugar.Debugf(format, v...)
}

// LogPhaseStart логирует начало фазы ETL-процесса
func (l *ETLLogger) LogPhaseStart(phase string) {
	l.base.Info("Начало фазы", zap.String("phase", phase))
}

// LogPhaseComplete логирует завершение фазы ETL-процесса
func (l *ETLLogger) LogPhaseComplete(phase string, items int, duration time.Duration) {
	l.base.Info("Фаза завершена",
		zap.String("phase", phase),
		zap.Int("items", items),
		zap.Duration("duration", duration),
	)
}
