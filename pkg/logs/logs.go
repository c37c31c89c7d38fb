// Package logs configures the launcher's structured logger.
package logs

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// EnvVar selects the verbosity for a run.
const EnvVar = "ULWGL_LOG"

// Verbosity values recognized in ULWGL_LOG. Anything else keeps the
// default level, which shows warnings and errors only.
const (
	LevelInfo  = "1"
	LevelWarn  = "warn"
	LevelDebug = "debug"
)

// New returns a console logger writing to out at the level selected by the
// ULWGL_LOG value. The debug level additionally reports the caller.
func New(out io.Writer, verbosity string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.Kitchen,
	}

	ctx := zerolog.New(output).With().Timestamp()

	switch verbosity {
	case LevelInfo:
		return ctx.Logger().Level(zerolog.InfoLevel)
	case LevelWarn:
		return ctx.Logger().Level(zerolog.WarnLevel)
	case LevelDebug:
		return ctx.Caller().Logger().Level(zerolog.DebugLevel)
	default:
		return ctx.Logger().Level(zerolog.WarnLevel)
	}
}
