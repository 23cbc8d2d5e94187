package logger

import (
	"net/url"
	"strings"
)

// sensitiveParams are query keys whose values never reach the logs.
// Keys are compared lower-cased.
var sensitiveParams = map[string]struct{}{
	"password":  {},
	"token":     {},
	"secret":    {},
	"email":     {},
	"sessionid": {},
	"userid":    {},
	"ip":        {},
	"key":       {},
}

// SanitizedEmail masks an email for logs, keeping the first letter of the
// local part and the top-level domain: "alice@example.com" -> "a****@*******.com"
func SanitizedEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}

	masked := local[:1] + strings.Repeat("*", len(local)-1)

	if dot := strings.LastIndex(domain, "."); dot > 0 {
		host := strings.Map(func(r rune) rune {
			if r == '.' {
				return r
			}
			return '*'
		}, domain[:dot])
		domain = host + domain[dot:]
	}
	return masked + "@" + domain
}

// MaskSessionID keeps enough of a session id to correlate log lines
func MaskSessionID(id string) string {
	if len(id) <= 8 {
		return "[session]"
	}
	return id[:8] + "..."
}

// RedactQuery returns rawQuery with the values of sensitive parameters
// replaced. An unparseable query is redacted entirely.
func RedactQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "[REDACTED]"
	}

	redacted := false
	for key := range values {
		if _, ok := sensitiveParams[strings.ToLower(key)]; ok {
			values[key] = []string{"REDACTED"}
			redacted = true
		}
	}
	if !redacted {
		return rawQuery
	}
	return values.Encode()
}
