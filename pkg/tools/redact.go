package tools

import (
	"regexp"
	"strings"
	"sync"
)

const redacted = "[REDACTED]"

// Redactor scrubs credentials and patient identifiers from values before they
// are logged. Tool arguments routinely carry names, dates of birth and member
// ids, so every tool call log line goes through it.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*redactionPattern
	keys     map[string]bool
}

type redactionPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// defaultSensitiveKeys are argument names whose values are always masked.
var defaultSensitiveKeys = []string{
	"first_name", "last_name", "birth_date", "date_of_birth", "dob",
	"phone", "email", "member_id", "address", "address_line1", "address_line2",
	"ssn", "api_key", "access_token", "client_secret", "password",
}

// NewRedactor creates a redactor with patterns for common credentials and
// direct patient identifiers:
//   - Bearer tokens
//   - API keys, tokens and secrets in key=value form
//   - Passwords in URLs
//   - US social security numbers
//   - Email addresses
//   - US phone numbers
func NewRedactor() *Redactor {
	r := &Redactor{keys: make(map[string]bool)}
	for _, k := range defaultSensitiveKeys {
		r.keys[k] = true
	}

	r.addPattern(`(?i)Bearer\s+([a-zA-Z0-9_\-\.]{10,})`, "Bearer "+redacted)
	r.addPattern(`(?i)(api[_-]?key|apikey)\s*[=:]\s*['\"]?([a-zA-Z0-9_\-]{20,})['\"]?`, "$1="+redacted)
	r.addPattern(`(?i)(token|access[_-]?token|auth[_-]?token)\s*[=:]\s*['\"]?([a-zA-Z0-9_\-\.]{20,})['\"]?`, "$1="+redacted)
	r.addPattern(`(?i)(secret|client[_-]?secret)\s*[=:]\s*['\"]?([a-zA-Z0-9_\-/+=]{12,})['\"]?`, "$1="+redacted)
	r.addPattern(`://([^:@\s]+):([^@\s]+)@`, "://$1:"+redacted+"@")
	r.addPattern(`\b\d{3}-\d{2}-\d{4}\b`, redacted)
	r.addPattern(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`, redacted)
	r.addPattern(`\(?\b\d{3}\)?[-. ]\d{3}[-. ]\d{4}\b`, redacted)

	return r
}

func (r *Redactor) addPattern(pattern, replacement string) {
	r.patterns = append(r.patterns, &redactionPattern{
		regex:       regexp.MustCompile(pattern),
		replacement: replacement,
	})
}

// AddKey marks an additional argument name as sensitive.
func (r *Redactor) AddKey(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[strings.ToLower(key)] = true
}

// Redact applies every pattern to s.
func (r *Redactor) Redact(s string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := s
	for _, p := range r.patterns {
		result = p.regex.ReplaceAllString(result, p.replacement)
	}
	return result
}

// RedactMap returns a copy of m with sensitive keys masked and every string
// value scrubbed. Nested maps and slices are walked. m is not modified.
func (r *Redactor) RedactMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		r.mu.RLock()
		sensitive := r.keys[strings.ToLower(k)]
		r.mu.RUnlock()
		if sensitive {
			out[k] = redacted
			continue
		}
		out[k] = r.redactValue(v)
	}
	return out
}

func (r *Redactor) redactValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return r.Redact(val)
	case map[string]interface{}:
		return r.RedactMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = r.redactValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = r.Redact(item)
		}
		return out
	}
	return v
}
