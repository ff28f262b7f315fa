package middleware

import (
	"net/http"
	"regexp"
	"strings"
)

var (
	// secretParamRE matches query parameters that carry credentials, such as
	// the verification callback token or a shortener api key.
	secretParamRE = regexp.MustCompile(`(?i)(^|&)(token|secret|api|api_key|key)=[^&]*`)
	// botTokenRE matches Telegram bot tokens ("<digits>:<35 url-safe chars>").
	botTokenRE = regexp.MustCompile(`\d{6,12}:[A-Za-z0-9_-]{30,}`)
	emailRE    = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
)

// Redactor scrubs credentials from values that are about to be logged.
// A Redactor is immutable and safe for concurrent use.
type Redactor struct {
	masked map[string]struct{}
}

// NewRedactor returns a Redactor that fully masks the built-in sensitive
// headers plus extra (case-insensitive).
func NewRedactor(extra ...string) *Redactor {
	m := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
		"x-api-key":     {},
	}
	for _, h := range extra {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			m[h] = struct{}{}
		}
	}
	return &Redactor{masked: m}
}

// String scrubs bot tokens and email addresses from s.
func (r *Redactor) String(s string) string {
	if s == "" {
		return s
	}
	s = botTokenRE.ReplaceAllString(s, "[REDACTED:token]")
	return emailRE.ReplaceAllString(s, "[REDACTED:email]")
}

// Query blanks the values of credential parameters and then applies String.
func (r *Redactor) Query(raw string) string {
	if raw == "" {
		return raw
	}
	raw = secretParamRE.ReplaceAllString(raw, "${1}${2}=[REDACTED]")
	return r.String(raw)
}

// Headers flattens h into a map with masked and scrubbed values.
func (r *Redactor) Headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := r.masked[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = r.String(strings.Join(vv, ", "))
	}
	return out
}
