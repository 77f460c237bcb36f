package application

import (
	"net/url"
	"strings"
)

// ExtractToken accepts either a bare token or a link carrying it, in the
// "token" query parameter or as the last path segment.
func ExtractToken(urlOrToken string) string {
	s := strings.TrimSpace(urlOrToken)
	if s == "" {
		return ""
	}

	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return s
	}

	if t := strings.TrimSpace(u.Query().Get("token")); t != "" {
		return t
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if seg := strings.TrimSpace(segments[i]); seg != "" {
			if unescaped, err := url.PathUnescape(seg); err == nil {
				return unescaped
			}
			return seg
		}
	}
	return ""
}
