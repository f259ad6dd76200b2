package logger

import (
	"io"
	"log/slog"
)

// Option configures New.
type Option func(*config)

// WithLevel sets the minimum level.
func WithLevel(level slog.Level) Option {
	return func(c *config) { c.level = level }
}

// WithDebug is WithLevel(slog.LevelDebug) when debug is set and
// WithLevel(slog.LevelInfo) otherwise. It backs the --debug flag.
func WithDebug(debug bool) Option {
	if debug {
		return WithLevel(slog.LevelDebug)
	}
	return WithLevel(slog.LevelInfo)
}

// WithPretty selects the colored console format used by interactive commands.
func WithPretty(pretty bool) Option {
	return func(c *config) { c.pretty = pretty }
}

// WithJSON selects one JSON object per line, for "lokal serve --json-logs".
// It wins over WithPretty.
func WithJSON(json bool) Option {
	return func(c *config) { c.json = json }
}

// WithWriter replaces every output with w.
func WithWriter(w io.Writer) Option {
	return WithWriters(w)
}

// WithWriters replaces every output with ws. Records are copied to each.
func WithWriters(ws ...io.Writer) Option {
	return func(c *config) { c.writers = append([]io.Writer(nil), ws...) }
}

// WithSource adds the calling file and line to each record.
func WithSource(source bool) Option {
	return func(c *config) { c.source = source }
}
