package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Origin gates websocket routes against an origin allow-list. An empty
// list accepts everything, including requests without an Origin header.
// Once any restriction is configured, a missing Origin header is
// rejected: non-browser clients are distrusted under a restricted policy.
func Origin(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(allowed) == 0 {
			c.Next()
			return
		}
		if !OriginAllowed(allowed, c.GetHeader("Origin")) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
			return
		}
		c.Next()
	}
}

// OriginAllowed decides whether an observed origin matches the
// allow-list. Supported patterns:
//
//	*                        everything, absent origin included
//	scheme://host[:port]     exact match
//	*.domain / .domain       any subdomain (not the apex)
//	host:port                host and port
//	host                     bare host
//
// Host comparison is case-insensitive; scheme and port are exact when
// the pattern specifies them.
func OriginAllowed(allowed []string, origin string) bool {
	for _, a := range allowed {
		if strings.TrimSpace(a) == "*" {
			return true
		}
	}

	origin = strings.ToLower(strings.TrimSpace(origin))
	if origin == "" {
		return false
	}
	origin = strings.TrimSuffix(origin, "/")
	host, port := splitHostPort(origin)

	for _, item := range allowed {
		e := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(item)), "/")
		if e == "" {
			continue
		}
		if strings.HasPrefix(e, "http://") || strings.HasPrefix(e, "https://") {
			if origin == e {
				return true
			}
			continue
		}
		if suffix, ok := wildcardSuffix(e); ok {
			// Subdomains only; the apex needs its own entry.
			if strings.HasSuffix(host, "."+suffix) {
				return true
			}
			continue
		}
		if eh, ep, ok := strings.Cut(e, ":"); ok {
			if eh == host && ep == port {
				return true
			}
			continue
		}
		if e == host {
			return true
		}
	}
	return false
}

func wildcardSuffix(e string) (string, bool) {
	if s, ok := strings.CutPrefix(e, "*."); ok {
		return strings.TrimPrefix(s, "."), true
	}
	if s, ok := strings.CutPrefix(e, "."); ok {
		return strings.TrimPrefix(s, "."), true
	}
	return "", false
}

// splitHostPort extracts host and port from an origin value, scheme and
// path stripped. IPv6 brackets are dropped from the host.
func splitHostPort(origin string) (string, string) {
	after := origin
	if i := strings.Index(origin, "://"); i >= 0 {
		after = origin[i+3:]
	}
	authority := after
	if i := strings.IndexByte(after, '/'); i >= 0 {
		authority = after[:i]
	}
	if strings.HasPrefix(authority, "[") {
		// [::1]:8080 style
		if i := strings.LastIndexByte(authority, ']'); i >= 0 {
			host := strings.Trim(authority[:i+1], "[]")
			rest := authority[i+1:]
			port := strings.TrimPrefix(rest, ":")
			return host, port
		}
	}
	if i := strings.LastIndexByte(authority, ':'); i >= 0 {
		return authority[:i], authority[i+1:]
	}
	return authority, ""
}
