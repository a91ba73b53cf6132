//go:build cgo_enabled

package ffmpeg

import (
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/rs/zerolog"
)

// RedirectLogs replaces FFmpeg's stderr logging with logger. The FFmpeg log
// level follows the logger's level.
func RedirectLogs(logger zerolog.Logger) {
	astiav.SetLogLevel(toLogLevel(logger.GetLevel()))
	astiav.SetLogCallback(func(c astiav.Classer, l astiav.LogLevel, format, msg string) {
		msg = strings.TrimSpace(msg)
		if msg == "" {
			return
		}
		event := logger.WithLevel(fromLogLevel(l))
		if c != nil {
			if class := c.Class(); class != nil {
				event = event.Str("class", class.Name())
			}
		}
		event.Msg(msg)
	})
}

// ResetLogs restores FFmpeg's default stderr logging.
func ResetLogs() {
	astiav.ResetLogCallback()
}

func fromLogLevel(l astiav.LogLevel) zerolog.Level {
	switch {
	case l <= astiav.LogLevelFatal:
		return zerolog.FatalLevel
	case l <= astiav.LogLevelError:
		return zerolog.ErrorLevel
	case l <= astiav.LogLevelWarning:
		return zerolog.WarnLevel
	case l <= astiav.LogLevelInfo:
		return zerolog.InfoLevel
	case l <= astiav.LogLevelVerbose:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

func toLogLevel(l zerolog.Level) astiav.LogLevel {
	switch l {
	case zerolog.TraceLevel:
		return astiav.LogLevelDebug
	case zerolog.DebugLevel:
		return astiav.LogLevelVerbose
	case zerolog.InfoLevel:
		return astiav.LogLevelInfo
	case zerolog.WarnLevel:
		return astiav.LogLevelWarning
	case zerolog.ErrorLevel:
		return astiav.LogLevelError
	case zerolog.Disabled:
		return astiav.LogLevelQuiet
	default:
		return astiav.LogLevelFatal
	}
}
