package jenkins

import (
	"net/url"
	"strings"
)

// JoinURL resolves ref against base as if base ended with exactly one "/".
// Without the trailing separator url.ResolveReference would drop the last
// path segment of base, e.g. "http://h/job/x" + "api/json" -> "http://h/job/api/json".
func JoinURL(base string, ref string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if u.RawPath != "" && !strings.HasSuffix(u.RawPath, "/") {
		u.RawPath += "/"
	}

	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}

	return u.ResolveReference(r).String(), nil
}
