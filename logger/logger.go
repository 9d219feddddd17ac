/*
The logger package wraps zerolog with the small surface the rest of the library
needs: leveled printf-style logging, per-component sub-loggers, and optional
rotating file output for kiosks that run unattended for weeks.
*/
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogLevel string

const (
	Trace LogLevel = "trace"
	Debug LogLevel = "debug"
	Info  LogLevel = "info"
	Error LogLevel = "error"
)

func ToLogLevel(level string) LogLevel {
	switch level {
	case "trace":
		return Trace
	case "debug":
		return Debug
	case "error":
		return Error
	default:
		return Info
	}
}

type Config struct {
	// Writers that receive human-readable console output; defaults to stdout
	// when no file path is set either
	ConsoleWriters []io.Writer

	// When set, JSON log lines are also written to this file with rotation
	FilePath string

	LogLevel LogLevel
}

type Logger struct {
	logger zerolog.Logger
}

func New(config *Config) (*Logger, error) {
	if config == nil {
		return nil, fmt.Errorf("logger config must not be nil")
	}

	writers := []io.Writer{}

	if config.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    100, // megabytes
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		})
	}

	for _, writer := range config.ConsoleWriters {
		writers = append(writers, zerolog.ConsoleWriter{Out: writer})
	}

	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout})
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(toZerologLevel(config.LogLevel)).
		With().
		Timestamp().
		Logger()

	return &Logger{logger: logger}, nil
}

func toZerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case Trace:
		return zerolog.TraceLevel
	case Debug:
		return zerolog.DebugLevel
	case Error:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// GetComponentLogger returns a child logger whose lines are tagged with the
// given component name, e.g. "Stream" or "Websocket"
func (l *Logger) GetComponentLogger(component string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("component", component).Logger(),
	}
}

// AddClientId tags every subsequent line with the kiosk's stream client id
func (l *Logger) AddClientId(clientId string) {
	l.logger = l.logger.With().Str("clientId", clientId).Logger()
}

func (l *Logger) Trace(msg string) {
	l.logger.Trace().Msg(msg)
}

func (l *Logger) Tracef(format string, a ...any) {
	l.logger.Trace().Msgf(format, a...)
}

func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

func (l *Logger) Debugf(format string, a ...any) {
	l.logger.Debug().Msgf(format, a...)
}

func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

func (l *Logger) Infof(format string, a ...any) {
	l.logger.Info().Msgf(format, a...)
}

func (l *Logger) Error(err error) {
	l.logger.Error().Msg(err.Error())
}

func (l *Logger) Errorf(format string, a ...any) {
	l.logger.Error().Msgf(format, a...)
}
