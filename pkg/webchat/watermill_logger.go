package webchat

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// watermillLogger routes watermill's internal logging through zerolog.
type watermillLogger struct {
	fields watermill.LogFields
}

func newWatermillLogger() watermill.LoggerAdapter {
	return watermillLogger{}
}

func (l watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.event(log.Error().Err(err), fields).Msg(msg)
}

func (l watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.event(log.Debug(), fields).Msg(msg)
}

func (l watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.event(log.Debug(), fields).Msg(msg)
}

func (l watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.event(log.Trace(), fields).Msg(msg)
}

func (l watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillLogger{fields: l.fields.Add(fields)}
}

func (l watermillLogger) event(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	e = e.Str("component", "watermill")
	for k, v := range l.fields {
		e = e.Interface(k, v)
	}
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}
