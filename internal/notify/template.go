package notify

import (
	"html"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Render substitutes {{key}} placeholders. Keys match case-insensitively and
// unknown placeholders are left in place so a missing value is visible.
func Render(text string, values map[string]string, escapeHTML bool) string {
	if text == "" || len(values) == 0 {
		return text
	}
	lookup := make(map[string]string, len(values))
	for key, value := range values {
		lookup[strings.ToLower(strings.TrimSpace(key))] = value
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := strings.ToLower(placeholderPattern.FindStringSubmatch(match)[1])
		value, ok := lookup[key]
		if !ok {
			return match
		}
		if escapeHTML {
			return html.EscapeString(value)
		}
		return value
	})
}
