package kdrive

import (
	"context"
	"log/slog"
)

// Log writes msg to the layer logger if level is enabled.
func (l *Layer) Log(level LogLevel, msg string) {
	l.logAt(level, msg)
}

// SetLogLevel sets the most verbose level that is written. LogNone
// silences the layer.
func (l *Layer) SetLogLevel(level LogLevel) {
	l.level.Store(int32(level))
}

// LogLevel returns the current level.
func (l *Layer) LogLevel() LogLevel {
	return LogLevel(l.level.Load())
}

func (l *Layer) logAt(level LogLevel, msg string, args ...any) {
	if level <= LogNone || level > l.LogLevel() {
		return
	}
	args = append(args, "kdrive_level", level.String())
	l.logger.Log(context.Background(), level.slogLevel(), msg, args...)
}

// slogLevel maps layer levels onto slog levels.
func (level LogLevel) slogLevel() slog.Level {
	switch {
	case level <= LogError:
		return slog.LevelError
	case level == LogWarning:
		return slog.LevelWarn
	case level <= LogInformation:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// String returns the level name.
func (level LogLevel) String() string {
	switch level {
	case LogNone:
		return "none"
	case LogFatal:
		return "fatal"
	case LogCritical:
		return "critical"
	case LogError:
		return "error"
	case LogWarning:
		return "warning"
	case LogNotice:
		return "notice"
	case LogInformation:
		return "information"
	case LogDebug:
		return "debug"
	case LogTrace:
		return "trace"
	default:
		return "unknown"
	}
}

// ParseLogLevel parses a level name as returned by LogLevel.String.
func ParseLogLevel(s string) (LogLevel, bool) {
	for level := LogNone; level <= LogTrace; level++ {
		if level.String() == s {
			return level, true
		}
	}
	return LogNone, false
}
