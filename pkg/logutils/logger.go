// Package logutils builds the process logger from command line settings.
package logutils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/colonyops/lxfeed/internal/core/logging"
	"github.com/rs/zerolog"
)

// Options selects where and how log lines are written.
type Options struct {
	// Level is one of debug, info, warn, error, fatal or panic.
	Level string
	// File receives JSON log lines. Empty writes to Fallback.
	File string
	// Append keeps the existing content of File instead of truncating it.
	Append bool
	// Fallback is written to when File is empty. Defaults to stderr.
	Fallback io.Writer
	// Console renders human readable lines instead of JSON.
	Console bool
}

// New returns a logger for opts and a func that releases the log file.
func New(opts Options) (zerolog.Logger, func(), error) {
	closer := func() {}

	lvl, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Logger{}, closer, err
	}

	var writer io.Writer = os.Stderr
	if opts.Fallback != nil {
		writer = opts.Fallback
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return zerolog.Logger{}, closer, fmt.Errorf("create logs dir: %w", err)
		}

		flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		if opts.Append {
			flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		}
		osFile, err := os.OpenFile(opts.File, flags, 0o644)
		if err != nil {
			return zerolog.Logger{}, closer, err
		}
		closer = func() { _ = osFile.Close() }
		writer = osFile
	}

	if opts.Console {
		writer = zerolog.ConsoleWriter{Out: writer, NoColor: opts.File != "", PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			"prefix",
			zerolog.MessageFieldName,
		}, FieldsExclude: []string{"prefix"}}
	}

	l := zerolog.New(writer).
		Hook(logging.ContextHook{}).
		With().
		Timestamp().
		Logger().
		Level(lvl)

	return l, closer, nil
}
