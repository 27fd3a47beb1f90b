// Package obslog wires Strata's structured logging: a single global
// zerolog.Logger plus component sub-loggers, so call sites never
// construct their own zerolog.Logger and every line carries a
// consistent field set.
package obslog

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var Logger zerolog.Logger

type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{Out: consoleOutput(output), TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
}

func init() {
	Init(Config{Level: InfoLevel})
}

// consoleOutput wraps a console-mode output file with go-colorable so
// the ConsoleWriter's ANSI level colors render on Windows terminals
// (which don't natively interpret escape codes); on other platforms,
// or when output isn't a real terminal, it's returned unchanged.
func consoleOutput(output io.Writer) io.Writer {
	f, ok := output.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return output
	}
	return colorable.NewColorable(f)
}

// WithComponent creates a child logger tagged with a "component"
// field, the unit every internal package logs through (e.g. "engine",
// "wal", "gc") rather than calling the global Logger directly.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithRun creates a child logger tagged with the run_id it concerns.
func WithRun(runID string) zerolog.Logger {
	return Logger.With().Str("run_id", runID).Logger()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(msg string, err error) { Logger.Error().Err(err).Msg(msg) }
