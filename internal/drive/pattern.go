package drive

// matchPattern reports whether name matches a glob pattern supporting
// `*` (any run of characters) and `?` (exactly one character), matched
// case-sensitively (spec.md §4.10, §9: "pattern matching uses
// case-sensitive comparison by default, FILE_CASE_SENSITIVE_SEARCH is
// advertised"). A bare "*" matches everything, matching the initial-query
// wildcard client CREATE paths commonly issue (e.g. "\*"). An empty
// pattern matches only an empty name; handleDirectoryControl substitutes
// "*" for an empty pattern before calling this.
//
// Implemented directly rather than via path/filepath.Match: that
// function treats '\\' as an escape character and rejects patterns
// containing a bare '/', neither of which fits RDPDR directory-query
// patterns (free-form filenames, no path separators inside a pattern).
func matchPattern(pattern, name string) bool {
	return matchRunes([]rune(pattern), []rune(name))
}

func matchRunes(p, s []rune) bool {
	// Standard greedy/backtracking glob matcher.
	var pi, si int
	starIdx, matchIdx := -1, -1
	for si < len(s) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == s[si]):
			pi++
			si++
		case pi < len(p) && p[pi] == '*':
			starIdx = pi
			matchIdx = si
			pi++
		case starIdx != -1:
			pi = starIdx + 1
			matchIdx++
			si = matchIdx
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
