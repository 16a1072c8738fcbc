package authcache

import "strings"

// likeMatch implements SQL LIKE semantics for the host/db wildcard
// columns of spec section 4.I's lookup predicate: "%" matches any run of
// characters, "_" matches exactly one, everything else is literal. This
// mirrors mysql.user's own host-pattern matching (e.g. "10.0.%.%",
// "app_db_%") rather than a filesystem glob.
func likeMatch(pattern, s string) bool {
	for {
		if pattern == "" {
			return s == ""
		}
		switch pattern[0] {
		case '%':
			rest := pattern[1:]
			if rest == "" {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if likeMatch(rest, s[i:]) {
					return true
				}
			}
			return false
		case '_':
			if s == "" {
				return false
			}
			pattern = pattern[1:]
			s = s[1:]
		default:
			if s == "" || !strings.EqualFold(s[:1], pattern[:1]) {
				return false
			}
			pattern = pattern[1:]
			s = s[1:]
		}
	}
}
