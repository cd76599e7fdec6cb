package logger

import (
	"io"
	"log/slog"
	"time"
)

// newTextHandler returns a console handler that omits the record timestamp,
// prints TRACE for the trace level, and renders time attributes in tz.
func newTextHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 {
				switch a.Key {
				case slog.TimeKey:
					return slog.Attr{}
				case slog.LevelKey:
					if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= traceLevelValue {
						return slog.String(slog.LevelKey, "TRACE")
					}
					return a
				}
			}
			if a.Value.Kind() == slog.KindTime && tz != nil {
				return slog.Time(a.Key, a.Value.Time().In(tz))
			}
			return a
		},
	})
}
