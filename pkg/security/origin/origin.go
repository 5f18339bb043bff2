// Package origin decides which message senders a HootSpot context trusts.
//
// Every envelope is attributed to the origin of the context that posted it
// (for example "chrome-extension://<id>" or "http://localhost:8787").
// Requester and renderer both drop traffic whose origin is not allowed,
// and a wildcard target is never accepted when sending.
package origin

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// Wildcard is the postMessage "any origin" target. It is rejected everywhere.
const Wildcard = "*"

var (
	// ErrWildcard is returned when a wildcard is used where a concrete origin is required.
	ErrWildcard = errors.New("wildcard origin is not allowed")

	// ErrEmpty is returned for an empty origin.
	ErrEmpty = errors.New("origin cannot be empty")
)

// Normalize lower-cases scheme and host and drops any path, query or
// trailing slash, so "HTTP://Localhost:8787/" and "http://localhost:8787"
// compare equal.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmpty
	}
	if raw == Wildcard {
		return "", ErrWildcard
	}
	// Sandboxed frames report the literal origin "null".
	if raw == "null" {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid origin %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid origin %q: scheme and host are required", raw)
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), nil
}

// MustNormalize is Normalize for constants known to be valid.
func MustNormalize(raw string) string {
	o, err := Normalize(raw)
	if err != nil {
		panic(err)
	}
	return o
}

// Matcher reports whether a sender origin is trusted.
type Matcher interface {
	Allows(origin string) bool
}

// Exact trusts a single origin.
type Exact string

// Allows implements Matcher.
func (e Exact) Allows(o string) bool {
	normalized, err := Normalize(o)
	if err != nil {
		return false
	}
	return normalized == string(e)
}

// NewExact returns a matcher for a single concrete origin.
func NewExact(raw string) (Exact, error) {
	o, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	return Exact(o), nil
}

// Allowlist trusts origins matching any of a set of glob patterns,
// e.g. "chrome-extension://*" or "http://localhost:*".
type Allowlist struct {
	patterns []string
	globs    []glob.Glob
}

// NewAllowlist compiles patterns. A bare "*" is refused: an allowlist that
// trusts everyone is the wildcard by another name.
func NewAllowlist(patterns ...string) (*Allowlist, error) {
	al := &Allowlist{}
	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if pattern == Wildcard {
			return nil, ErrWildcard
		}

		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid origin pattern '%s': %w", pattern, err)
		}
		al.patterns = append(al.patterns, pattern)
		al.globs = append(al.globs, g)
	}
	if len(al.globs) == 0 {
		return nil, fmt.Errorf("origin allowlist requires at least one pattern")
	}
	return al, nil
}

// Allows implements Matcher.
func (a *Allowlist) Allows(o string) bool {
	normalized, err := Normalize(o)
	if err != nil {
		return false
	}
	for _, g := range a.globs {
		if g.Match(normalized) {
			return true
		}
	}
	return false
}

// Patterns returns the compiled patterns.
func (a *Allowlist) Patterns() []string {
	return append([]string{}, a.patterns...)
}
