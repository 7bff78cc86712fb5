package logging

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

var _ watermill.LoggerAdapter = (*WatermillLogger)(nil)

// WatermillLogger routes watermill's internal logs through zerolog.
type WatermillLogger struct {
	ZLog zerolog.Logger
}

func NewWatermillLogger(zlog zerolog.Logger) *WatermillLogger {
	return &WatermillLogger{ZLog: zlog.With().Str("component", "watermill").Logger()}
}

func (l *WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.ZLog.Error().Err(err).Fields(map[string]any(fields)).Msg(msg)
}

func (l *WatermillLogger) Info(msg string, fields watermill.LogFields) {
	l.ZLog.Info().Fields(map[string]any(fields)).Msg(msg)
}

func (l *WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.ZLog.Debug().Fields(map[string]any(fields)).Msg(msg)
}

func (l *WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.ZLog.Trace().Fields(map[string]any(fields)).Msg(msg)
}

func (l *WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillLogger{ZLog: l.ZLog.With().Fields(map[string]any(fields)).Logger()}
}
