package httpclient

import (
	"net/url"
	"strings"
)

// sensitiveParams are redacted from logged URLs, matched case-insensitively
// as substrings of the parameter name.
var sensitiveParams = []string{
	"api_key",
	"apikey",
	"token",
	"password",
	"secret",
	"credential",
	"client_id",
}

// sanitizeURL drops userinfo and redacts sensitive query parameters.
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	safe := *u
	safe.User = nil

	q := u.Query()
	for param := range q {
		if isSensitiveParam(param) {
			q.Set(param, "[REDACTED]")
		}
	}
	safe.RawQuery = q.Encode()
	return safe.String()
}

func isSensitiveParam(param string) bool {
	lower := strings.ToLower(param)
	for _, sensitive := range sensitiveParams {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}
