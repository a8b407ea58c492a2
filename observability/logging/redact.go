package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// Keys that may be logged verbatim. Account and vault identities are public
// addresses; everything else, notably exporter headers, is masked.
var redactionAllowlist = map[string]struct{}{
	"service":    {},
	"env":        {},
	"message":    {},
	"severity":   {},
	"timestamp":  {},
	"error":      {},
	"request":    {},
	"operation":  {},
	"vault":      {},
	"account":    {},
	"liquidator": {},
	"liquidatee": {},
	"endpoint":   {},
	"backend":    {},
}

// IsAllowlisted reports whether the provided key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// MaskField redacts value unless key is allowlisted or value is empty.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskFields groups a map of values under name, masking each entry.
func MaskFields(name string, values map[string]string) slog.Attr {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	attrs := make([]any, 0, len(keys))
	for _, key := range keys {
		attrs = append(attrs, MaskField(key, values[key]))
	}
	return slog.Group(name, attrs...)
}
