package logger

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Helpers in this file return the zero slog.Attr for absent values; slog
// drops those, so callers can pass them unconditionally.

// Error logs err under "error".
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Errors groups the non-nil errs under "errors", keyed by position.
func Errors(errs ...error) slog.Attr {
	var attrs []slog.Attr
	for i, err := range errs {
		if err != nil {
			attrs = append(attrs, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(attrs) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(attrs...)}
}

func UserID[T ~string](id T) slog.Attr      { return str("user_id", id) }
func ChallengeID[T ~string](id T) slog.Attr { return str("challenge_id", id) }
func RequestID[T ~string](id T) slog.Attr   { return str("request_id", id) }
func Method[T ~string](m T) slog.Attr       { return str("method", m) }
func Purpose[T ~string](p T) slog.Attr      { return str("purpose", p) }
func Component(name string) slog.Attr       { return str("component", name) }
func Event(name string) slog.Attr           { return str("event", name) }

// State logs a state machine move as state.from and state.to.
func State[T ~string](from, to T) slog.Attr {
	return slog.Group("state", slog.String("from", string(from)), slog.String("to", string(to)))
}

func Attempts(n int) slog.Attr { return slog.Int("attempts", n) }

func Duration(d time.Duration) slog.Attr { return slog.Duration("duration", d) }

// Email logs address masked by MaskEmail.
func Email(address string) slog.Attr {
	return slog.String("email", MaskEmail(address))
}

// MaskEmail keeps the first character of the local part and the domain:
// "a***@example.com".
func MaskEmail(address string) string {
	local, domain, ok := strings.Cut(address, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}

func str[T ~string](key string, v T) slog.Attr {
	if v == "" {
		return slog.Attr{}
	}
	return slog.String(key, string(v))
}
