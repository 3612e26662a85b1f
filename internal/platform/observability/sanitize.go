package observability

import "unicode"

// sanitizeString drops control characters and truncates to limit runes so
// request data cannot forge log lines.
func sanitizeString(value string, limit int) string {
	out := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return string(out)
}

func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeUserID bounds identifiers copied into logs.
func SanitizeUserID(uid string) string {
	return sanitizeString(uid, 64)
}
