package temporal

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// SDKLogger routes Temporal client and worker logs into zerolog.
type SDKLogger struct {
	logger zerolog.Logger
}

var (
	_ log.Logger     = (*SDKLogger)(nil)
	_ log.WithLogger = (*SDKLogger)(nil)
)

func NewSDKLogger(logger zerolog.Logger) *SDKLogger {
	return &SDKLogger{logger: logger.With().Str("component", "temporal_sdk").Logger()}
}

// With returns a logger that adds keyvals to every entry. Workflow and
// activity loggers use it to attach run identifiers.
func (l *SDKLogger) With(keyvals ...interface{}) log.Logger {
	ctx := l.logger.With()
	eachPair(keyvals, func(key string, val interface{}) {
		ctx = ctx.Interface(key, val)
	})
	return &SDKLogger{logger: ctx.Logger()}
}

func (l *SDKLogger) Debug(msg string, keyvals ...interface{}) { l.write(l.logger.Debug(), msg, keyvals) }
func (l *SDKLogger) Info(msg string, keyvals ...interface{})  { l.write(l.logger.Info(), msg, keyvals) }
func (l *SDKLogger) Warn(msg string, keyvals ...interface{})  { l.write(l.logger.Warn(), msg, keyvals) }
func (l *SDKLogger) Error(msg string, keyvals ...interface{}) { l.write(l.logger.Error(), msg, keyvals) }

func (l *SDKLogger) write(event *zerolog.Event, msg string, keyvals []interface{}) {
	eachPair(keyvals, func(key string, val interface{}) {
		if err, ok := val.(error); ok {
			event = event.AnErr(key, err)
			return
		}
		event = event.Interface(key, val)
	})
	event.Msg(msg)
}

// eachPair walks alternating key/value arguments. A dangling key is kept
// with a nil value.
func eachPair(keyvals []interface{}, fn func(key string, val interface{})) {
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		var val interface{}
		if i+1 < len(keyvals) {
			val = keyvals[i+1]
		}
		fn(key, val)
	}
}
