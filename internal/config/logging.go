package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace sits below [slog.LevelDebug] and is used for per-message
// wire detail such as the size of each fetched message. The value -8
// matches the convention other slog extensions use for Trace.
const LevelTrace = slog.Level(-8)

// logLevels maps accepted log_level spellings to slog levels. The empty
// string selects the default.
var logLevels = map[string]slog.Level{
	"":        slog.LevelInfo,
	"info":    slog.LevelInfo,
	"trace":   LevelTrace,
	"debug":   slog.LevelDebug,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLogLevel converts a case-insensitive level name to an
// [slog.Level]. Surrounding whitespace is ignored. Unknown names return
// [slog.LevelInfo] together with an error.
func ParseLogLevel(s string) (slog.Level, error) {
	level, ok := logLevels[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
	}
	return level, nil
}

// ReplaceLogLevelNames renders [LevelTrace] as "TRACE" instead of
// slog's default "DEBUG-4". Use it as [slog.HandlerOptions.ReplaceAttr].
func ReplaceLogLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}
