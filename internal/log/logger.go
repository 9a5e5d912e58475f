package log

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type Options struct {
	Level     string
	File      string
	MaxSizeMB int
	MaxFiles  int
	// Fallback receives text output when File is empty. Nil discards.
	Fallback io.Writer
}

// New builds the process logger. With a file, records are JSON through a
// rotating writer; otherwise they are text on the fallback writer. The
// returned closer releases the file and is never nil.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	if opts.File == "" {
		if opts.Fallback == nil {
			return slog.New(slog.DiscardHandler), nopCloser{}, nil
		}
		return slog.New(slog.NewTextHandler(opts.Fallback, handlerOpts)), nopCloser{}, nil
	}

	writer, err := NewRotatingWriter(RotationConfig{
		File:      opts.File,
		MaxSizeMB: opts.MaxSizeMB,
		MaxFiles:  opts.MaxFiles,
	})
	if err != nil {
		return nil, nil, err
	}
	return slog.New(slog.NewJSONHandler(writer, handlerOpts)), writer, nil
}

func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
