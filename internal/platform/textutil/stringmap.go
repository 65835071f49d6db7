package textutil

import (
	"sort"
	"strings"
	"unicode"
)

// Payment processor metadata bounds.
const (
	MaxMetadataKeys     = 50
	MaxMetadataKeyLen   = 40
	MaxMetadataValueLen = 500
)

// NormalizeMetadata trims keys and values, drops empty keys and clips each entry to the processor
// bounds. When more than MaxMetadataKeys remain, the lexically smallest keys are kept.
func NormalizeMetadata(values map[string]string) map[string]string {
	if len(values) == 0 {
		return map[string]string{}
	}
	keys := make([]string, 0, len(values))
	cleaned := make(map[string]string, len(values))
	for key, value := range values {
		key = Truncate(strings.TrimSpace(key), MaxMetadataKeyLen)
		if key == "" {
			continue
		}
		if _, dup := cleaned[key]; !dup {
			keys = append(keys, key)
		}
		cleaned[key] = Truncate(StripControl(strings.TrimSpace(value)), MaxMetadataValueLen)
	}
	if len(keys) <= MaxMetadataKeys {
		return cleaned
	}
	sort.Strings(keys)
	result := make(map[string]string, MaxMetadataKeys)
	for _, key := range keys[:MaxMetadataKeys] {
		result[key] = cleaned[key]
	}
	return result
}

// Truncate clips value to at most limit runes.
func Truncate(value string, limit int) string {
	if limit <= 0 {
		return ""
	}
	count := 0
	for i := range value {
		if count == limit {
			return value[:i]
		}
		count++
	}
	return value
}

// StripControl removes control characters other than tab and newlines.
func StripControl(value string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, value)
}
