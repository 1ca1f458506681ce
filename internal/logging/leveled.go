package logging

import "github.com/rs/zerolog"

// Leveled adapts a zerolog.Logger to retryablehttp.LeveledLogger.
type Leveled struct {
	Logger zerolog.Logger
}

func (l Leveled) Error(msg string, keysAndValues ...interface{}) {
	l.event(l.Logger.Error(), keysAndValues).Msg(msg)
}

func (l Leveled) Info(msg string, keysAndValues ...interface{}) {
	l.event(l.Logger.Info(), keysAndValues).Msg(msg)
}

// Debug output of the retrying client is verbose, so it is logged at trace level.
func (l Leveled) Debug(msg string, keysAndValues ...interface{}) {
	l.event(l.Logger.Trace(), keysAndValues).Msg(msg)
}

func (l Leveled) Warn(msg string, keysAndValues ...interface{}) {
	l.event(l.Logger.Warn(), keysAndValues).Msg(msg)
}

func (l Leveled) event(e *zerolog.Event, kv []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	return e
}
