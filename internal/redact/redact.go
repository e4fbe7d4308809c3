// Package redact scrubs credential substrings from error and log text
// before it is written anywhere. It is applied once, at the
// boundary where a message leaves the engine — never inline in the retry
// taxonomy, so every call site gets the same guarantee.
package redact

import "regexp"

var (
	bearerTokenPattern = regexp.MustCompile(`(?i)bearer\s+[a-z0-9._\-]+`)
	clientSecretParam  = regexp.MustCompile(`(?i)(client_secret|client-secret)=[^&\s]+`)
	authorityURLAuth   = regexp.MustCompile(`://[^/\s:@]+:[^/\s@]+@`)
	apiKeyParam        = regexp.MustCompile(`(?i)(api[_-]?key|token)=[^&\s]+`)
)

// Text replaces every recognised credential substring in s with a mask,
// preserving the surrounding message for diagnostics.
func Text(s string) string {
	s = bearerTokenPattern.ReplaceAllString(s, "Bearer ***")
	s = clientSecretParam.ReplaceAllStringFunc(s, func(m string) string {
		return clientSecretParam.FindStringSubmatch(m)[1] + "=***"
	})
	s = apiKeyParam.ReplaceAllStringFunc(s, func(m string) string {
		return apiKeyParam.FindStringSubmatch(m)[1] + "=***"
	})
	s = authorityURLAuth.ReplaceAllString(s, "://***:***@")
	return s
}

// Error returns err's message with credentials scrubbed, or "" if err is
// nil.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return Text(err.Error())
}
