// Package validation provides submission-side URL validation.
// Validation happens once, here, before a task is created; downstream
// components trust their input (defense in depth lives at this boundary).
package validation

import (
	"net/url"
	"strings"
)

// DefaultAllowedHost is the single host accepted when none is configured
const DefaultAllowedHost = "mangadex.org"

// allowed resource path prefixes (a title or chapter reference)
var allowedPrefixes = []string{"/title/", "/chapter/"}

// Validator is a pure predicate over candidate download URLs
type Validator struct {
	allowedHost string
}

// New creates a validator for the given host (empty means DefaultAllowedHost)
func New(allowedHost string) *Validator {
	if allowedHost == "" {
		allowedHost = DefaultAllowedHost
	}
	return &Validator{allowedHost: allowedHost}
}

// Validate reports whether candidate is an acceptable download URL:
// https scheme, the allowed host, and a title or chapter path. Anything
// containing a parent-directory segment is rejected outright, before
// parsing, so a traversal attempt can never ride in on an otherwise
// well-formed URL.
func (v *Validator) Validate(candidate string) bool {
	if candidate == "" {
		return false
	}

	if containsDotDotSegment(candidate) {
		return false
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return false
	}

	if parsed.Scheme != "https" {
		return false
	}
	if !strings.EqualFold(parsed.Hostname(), v.allowedHost) {
		return false
	}

	// Re-check the decoded path: parsing turns percent-encoded dot-dot
	// into literal segments the raw check cannot see.
	if containsDotDotSegment(parsed.Path) {
		return false
	}

	path := parsed.Path
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(path, prefix) && len(path) > len(prefix) {
			return true
		}
	}
	return false
}

// containsDotDotSegment reports whether any path-like segment of the raw
// input is "..", checking the raw string rather than the parsed form so
// encoded or pre-normalized traversal sequences are caught too
func containsDotDotSegment(raw string) bool {
	if strings.Contains(strings.ToLower(raw), "%2e%2e") {
		return true
	}
	for _, segment := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == '/' || r == '\\'
	}) {
		if segment == ".." {
			return true
		}
	}
	return false
}
