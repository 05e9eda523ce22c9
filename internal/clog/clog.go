// Package clog builds the structured logger carina uses everywhere: a
// log/slog JSON handler with a ReplaceAttr redactor so credential values
// never reach an output stream verbatim.
package clog

import (
	"io"
	"log/slog"
)

// sensitiveKeys are attribute keys whose values are replaced with
// "[REDACTED]" before they ever reach an output stream, covering
// credential material. Lock and lineage identifiers are logged as-is.
var sensitiveKeys = map[string]bool{
	"account": true, "password": true, "access_key": true, "token": true,
	"secret": true, "api_key": true, "private_key": true, "auth_token": true,
	"refresh_token": true, "certificate": true, "signature": true,
	"credential": true, "ssh_key": true, "connection_string": true,
}

// New builds a slog.Logger that writes JSON to w with sensitive attribute
// values redacted.
func New(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	})
	return slog.New(handler)
}

func redact(groups []string, a slog.Attr) slog.Attr {
	if sensitiveKeys[a.Key] {
		return slog.Attr{Key: a.Key, Value: slog.StringValue("[REDACTED]")}
	}
	return a
}
