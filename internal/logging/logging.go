// Package logging configures the process-wide slog handler.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Options controls handler selection.
type Options struct {
	// Level is the minimum level to emit. Defaults to slog.LevelInfo.
	Level slog.Level
	// Writer overrides the output stream. Defaults to os.Stderr.
	Writer io.Writer
	// JSON forces the structured JSON handler even on a TTY. Useful when
	// the process is supervised and its stderr is captured, not viewed.
	JSON bool
}

// Init builds a slog.Logger and installs it as the default logger.
//
// When the output writer is a terminal (and JSON isn't forced), a colorized
// human-readable handler is used; otherwise JSON lines are emitted so a log
// shipper can parse them.
func Init(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	var handler slog.Handler
	if !opts.JSON && isTerminalWriter(w) {
		handler = tint.NewHandler(colorable.NewColorable(w.(*os.File)), &tint.Options{
			Level:      opts.Level,
			TimeFormat: "15:04:05",
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level})
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

// isTerminalWriter reports whether w is a TTY file descriptor. Non-*os.File
// writers (e.g. buffers used in tests) are treated as non-terminals.
func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
