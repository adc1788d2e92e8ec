// Package filter implements the glob-style file_list matching of
// job catalog entries: '*' and '?' wildcards with an optional leading
// '!' inverting the result.
package filter

// Match reports whether name matches pattern. '*' matches any run of
// characters (including none), '?' matches exactly one character. A
// leading '!' in pattern inverts the result of matching the remainder
// of pattern against name. Matching is deterministic and side-effect
// free: backtracking on '*' explores every split point, so the result
// does not depend on which occurrence of a following literal run is
// chosen.
func Match(pattern, name string) bool {
	inverse := false
	if len(pattern) > 0 && pattern[0] == '!' {
		inverse = true
		pattern = pattern[1:]
	}
	matched := match(pattern, name)
	if inverse {
		return !matched
	}
	return matched
}

func match(pattern, name string) bool {
	var px, nx int
	starPx, starNx := -1, -1

	for nx < len(name) {
		if px < len(pattern) && (pattern[px] == '?' || pattern[px] == name[nx]) {
			px++
			nx++
			continue
		}
		if px < len(pattern) && pattern[px] == '*' {
			starPx = px
			starNx = nx
			px++
			continue
		}
		if starPx != -1 {
			px = starPx + 1
			starNx++
			nx = starNx
			continue
		}
		return false
	}

	for px < len(pattern) && pattern[px] == '*' {
		px++
	}
	return px == len(pattern)
}

// Matches evaluates every expression in list against name and reports
// true if at least one non-inverse expression matches and no inverse
// expression rejects it; that is, positive patterns are ORed and
// inverse patterns are ANDed, the contract intern_job's file_list
// consumers rely on. An empty list never matches.
func Matches(list []string, name string) bool {
	if len(list) == 0 {
		return false
	}
	ok := false
	for _, pattern := range list {
		if len(pattern) > 0 && pattern[0] == '!' {
			if !Match(pattern, name) {
				return false
			}
			continue
		}
		if Match(pattern, name) {
			ok = true
		}
	}
	return ok
}
