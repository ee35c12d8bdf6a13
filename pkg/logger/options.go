package logger

import (
	"io"
	"log/slog"
)

// Option configures a logger built by New.
type Option func(*config)

// WithDebug lowers the level to Debug. False restores Info.
func WithDebug(debug bool) Option {
	if debug {
		return WithLevel(slog.LevelDebug)
	}
	return WithLevel(slog.LevelInfo)
}

// WithLevel sets the minimum level that is written.
func WithLevel(level slog.Level) Option {
	return func(c *config) {
		c.level = level
	}
}

// WithPretty selects the colorized charmbracelet/log handler. It takes
// precedence over WithJSON.
func WithPretty(pretty bool) Option {
	return func(c *config) {
		c.pretty = pretty
	}
}

// WithJSON selects slog's JSON handler.
func WithJSON(json bool) Option {
	return func(c *config) {
		c.json = json
	}
}

// WithWriter replaces the destination. The default is os.Stdout.
func WithWriter(w io.Writer) Option {
	return WithWriters(w)
}

// WithWriters writes every record to each of ws.
func WithWriters(ws ...io.Writer) Option {
	return func(c *config) {
		c.writers = ws
	}
}

// WithSource adds the calling file and line to each record.
func WithSource(source bool) Option {
	return func(c *config) {
		c.source = source
	}
}
