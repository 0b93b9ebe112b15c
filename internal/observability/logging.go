// Package observability provides the structured logger used across the
// dataset engine.
//
// The engine itself never configures process-wide logging: callers inject a
// *CoreLogger (or leave it nil, in which case components fall back to a
// no-op logger) so the engine stays a well-behaved library citizen.
package observability

import (
	"io"
	"log/slog"
)

// Tags is a set of key/value pairs attached to every message a logger emits.
type Tags map[string]string

// NewTags builds a Tags from a mix of slog.Attr and string/value pairs. Args
// that don't form a complete pair are ignored.
func NewTags(args ...any) Tags {
	var done bool
	tags := Tags{}
	for len(args) > 0 && !done {
		switch x := args[0].(type) {
		case slog.Attr:
			tags[x.Key] = x.Value.String()
			args = args[1:]
		case string:
			if len(args) < 2 {
				done = true
				break
			}
			attr := slog.Any(x, args[1])
			tags[attr.Key] = attr.Value.String()
			args = args[2:]
		default:
			args = args[1:]
		}
	}
	return tags
}

// CoreLogger wraps a *slog.Logger with a set of tags that are carried onto
// every derived logger.
type CoreLogger struct {
	*slog.Logger
	globalTags Tags
}

// NewCoreLogger builds a CoreLogger around logger, with globalTags attached
// to every message.
func NewCoreLogger(logger *slog.Logger, globalTags Tags) *CoreLogger {
	if globalTags == nil {
		globalTags = Tags{}
	}

	cl := &CoreLogger{globalTags: globalTags}

	var args []any
	for tag, value := range globalTags {
		args = append(args, slog.String(tag, value))
	}
	cl.Logger = logger.With(args...)
	return cl
}

// NewNoOpLogger returns a CoreLogger that discards everything it's given.
//
// Components use this when no logger was supplied, so call sites never have
// to nil-check before logging.
func NewNoOpLogger() *CoreLogger {
	return NewCoreLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

// With returns a derived logger that includes the given tags in every
// message, in addition to this logger's own tags.
func (cl *CoreLogger) With(args ...any) *CoreLogger {
	return &CoreLogger{
		Logger:     cl.Logger.With(args...),
		globalTags: cl.globalTags,
	}
}

// GetTags returns the tags attached to this logger.
func (cl *CoreLogger) GetTags() Tags {
	return cl.globalTags
}
