package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// publicHeaders are exporter headers whose values may be logged verbatim.
var publicHeaders = map[string]struct{}{
	"content-type": {},
	"user-agent":   {},
	"x-scope":      {},
}

// MaskValue returns the canonical redacted placeholder for non-empty values. Empty values
// are returned unchanged to avoid introducing noise in logs.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// Headers renders exporter headers as a log group in key order, masking every
// value that is not known to be public.
func Headers(key string, headers map[string]string) slog.Attr {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	attrs := make([]any, 0, len(names))
	for _, name := range names {
		value := headers[name]
		if _, ok := publicHeaders[strings.ToLower(strings.TrimSpace(name))]; !ok {
			value = MaskValue(value)
		}
		attrs = append(attrs, slog.String(name, value))
	}
	return slog.Group(key, attrs...)
}
