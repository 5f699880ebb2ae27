package xrvideo

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

var pkgLogger Logger = ZerologLogger(zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
	With().Timestamp().Str("pkg", "xrvideo").Logger())

// Logger is the minimal logging contract used by the package. Anything with
// a Printf method works, including *log.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

// LeveledLogger can optionally be implemented by a [Logger] to receive
// messages with their severity instead of a "WARNING:" style prefix.
type LeveledLogger interface {
	Logger
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

// SetLogger replaces the package logger. A nil logger is ignored.
func SetLogger(logger Logger) {
	if logger != nil {
		pkgLogger = logger
	}
}

// ZerologLogger adapts a zerolog logger to [LeveledLogger].
func ZerologLogger(l zerolog.Logger) LeveledLogger {
	return zerologAdapter{l: l}
}

type zerologAdapter struct {
	l zerolog.Logger
}

func (z zerologAdapter) Printf(format string, v ...any) { z.l.Info().Msg(fmt.Sprintf(format, v...)) }
func (z zerologAdapter) Debugf(format string, v ...any) { z.l.Debug().Msg(fmt.Sprintf(format, v...)) }
func (z zerologAdapter) Infof(format string, v ...any)  { z.l.Info().Msg(fmt.Sprintf(format, v...)) }
func (z zerologAdapter) Warnf(format string, v ...any)  { z.l.Warn().Msg(fmt.Sprintf(format, v...)) }
func (z zerologAdapter) Errorf(format string, v ...any) { z.l.Error().Msg(fmt.Sprintf(format, v...)) }

func logDebugf(format string, v ...any) {
	if l, ok := pkgLogger.(LeveledLogger); ok {
		l.Debugf(format, v...)
	}
}

func logInfof(format string, v ...any) {
	if l, ok := pkgLogger.(LeveledLogger); ok {
		l.Infof(format, v...)
		return
	}
	pkgLogger.Printf(format, v...)
}

func logWarnf(format string, v ...any) {
	if l, ok := pkgLogger.(LeveledLogger); ok {
		l.Warnf(format, v...)
		return
	}
	pkgLogger.Printf("WARNING: "+format, v...)
}

func logErrorf(format string, v ...any) {
	if l, ok := pkgLogger.(LeveledLogger); ok {
		l.Errorf(format, v...)
		return
	}
	pkgLogger.Printf("ERROR: "+format, v...)
}
