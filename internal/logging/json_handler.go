package logging

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

const redacted = "[redacted]"

// secretKeys never reach a log file with their value intact.
var secretKeys = map[string]bool{
	"token":          true,
	"api_token":      true,
	"signing_secret": true,
	"authorization":  true,
	"dsn":            true,
}

// uploadRoute marks signed upload URLs; the path segment after it is the
// credential.
const uploadRoute = "/uploads/"

// newJSONHandler writes one object per line with ts, level and msg keys.
// Lease tokens are shortened and upload credentials are masked so the log
// file can be shared when reporting a stuck job.
func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	opts := slog.HandlerOptions{
		Level:     lvl,
		AddSource: addSource,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "ts"
				if attr.Value.Kind() == slog.KindTime {
					attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
				}
				return attr
			case slog.LevelKey:
				attr.Key = "level"
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
				return attr
			case slog.MessageKey:
				attr.Key = "msg"
				return attr
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
				return attr
			}
			return redactAttr(attr)
		},
	}
	return slog.NewJSONHandler(w, &opts)
}

func redactAttr(attr slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(attr.Key)] {
		return slog.String(attr.Key, redacted)
	}
	if attr.Value.Kind() != slog.KindString {
		return attr
	}
	value := attr.Value.String()
	if attr.Key == FieldLease {
		return slog.String(attr.Key, ShortToken(value))
	}
	if masked, ok := maskUploadCredential(value); ok {
		return slog.String(attr.Key, masked)
	}
	return attr
}

// maskUploadCredential replaces the signed token in an upload URL.
func maskUploadCredential(value string) (string, bool) {
	head, token, ok := strings.Cut(value, uploadRoute)
	if !ok || token == "" {
		return value, false
	}
	return head + uploadRoute + redacted, true
}
