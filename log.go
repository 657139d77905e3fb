package main

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

func levelLabel(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "\u001B[0;31m[ERROR]\u001B[0;39m"
	case l >= slog.LevelWarn:
		return "\u001B[0;33m[WARN]\u001B[0;39m"
	case l >= slog.LevelInfo:
		return "\u001B[0;32m[INFO]\u001B[0;39m"
	default:
		return "\u001B[0;36m[DEBUG]\u001B[0;39m"
	}
}

// newLogger returns a text logger writing to w. Levels are coloured when w is a terminal.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd())
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if !color || len(groups) > 0 || a.Key != slog.LevelKey {
				return a
			}
			if l, ok := a.Value.Any().(slog.Level); ok {
				return slog.String(slog.LevelKey, levelLabel(l))
			}
			return a
		},
	}))
}

func fileAttr(path string) slog.Attr { return slog.String("file", path) }
func slugAttr(slug string) slog.Attr { return slog.String("slug", slug) }
func errAttr(err error) slog.Attr    { return slog.Any("error", err) }

func durationAttr(d time.Duration) slog.Attr {
	return slog.Int64("duration_ms", d.Milliseconds())
}

// measure logs the execution time of a build phase when the returned func is called
func measure(name string) func() {
	start := time.Now()
	return func() {
		slog.Debug("Finished "+name, durationAttr(time.Since(start)))
	}
}
