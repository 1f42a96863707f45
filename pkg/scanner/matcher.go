package scanner

import (
	"fmt"
	"regexp"

	"github.com/CompassSecurity/envhunter/pkg/scanner/types"
)

// DefaultPattern flags variables whose name or value mentions credentials.
const DefaultPattern = "(user|pass|key|auth|token|secret)"

// Matcher decides which environment variables are sensitive.
type Matcher struct {
	pattern *regexp.Regexp
}

// NewMatcher compiles pattern case-insensitively. An empty pattern selects DefaultPattern.
func NewMatcher(pattern string) (*Matcher, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid sensitive pattern %q: %w", pattern, err)
	}

	return &Matcher{pattern: re}, nil
}

// Pattern returns the compiled expression source.
func (m *Matcher) Pattern() string {
	return m.pattern.String()
}

// IsSensitive reports whether the key or the value matches. Empty values are never tested.
func (m *Matcher) IsSensitive(v types.EnvVar) bool {
	if m.pattern.MatchString(v.Key) {
		return true
	}
	return v.Value != "" && m.pattern.MatchString(v.Value)
}

// Classify returns the sensitive subset of snapshot in its original order.
// The input is never modified.
func (m *Matcher) Classify(snapshot types.EnvSnapshot) types.EnvSnapshot {
	sensitive := types.EnvSnapshot{}
	for _, v := range snapshot {
		if m.IsSensitive(v) {
			sensitive = append(sensitive, v)
		}
	}
	return sensitive
}
