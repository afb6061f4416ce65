package webdataset

import (
	"fmt"
	"strconv"
	"strings"
)

// BraceExpand expands shell-style brace alternations in a shard pattern
// into the concrete list of shard paths. Two forms are supported:
//
//	{a,b,c}            comma alternation
//	{000000..000123}   inclusive numeric range, zero-padded to the
//	                   width of the endpoints
//
// Groups may nest and a pattern may contain several groups; expansion
// order is left-to-right, so the output is deterministic for a given
// pattern. A pattern without braces expands to itself.
func BraceExpand(pattern string) ([]string, error) {
	open := strings.IndexByte(pattern, '{')
	if open < 0 {
		if strings.IndexByte(pattern, '}') >= 0 {
			return nil, fmt.Errorf("brace expansion: unmatched '}' in %q", pattern)
		}
		return []string{pattern}, nil
	}
	close, err := matchingBrace(pattern, open)
	if err != nil {
		return nil, err
	}

	prefix := pattern[:open]
	body := pattern[open+1 : close]
	suffix := pattern[close+1:]

	alts, err := expandGroup(body)
	if err != nil {
		return nil, fmt.Errorf("brace expansion: %w in %q", err, pattern)
	}

	var out []string
	for _, alt := range alts {
		rest, err := BraceExpand(prefix + alt + suffix)
		if err != nil {
			return nil, err
		}
		out = append(out, rest...)
	}
	return out, nil
}

// matchingBrace returns the index of the '}' closing the '{' at open.
func matchingBrace(s string, open int) (int, error) {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("brace expansion: unmatched '{' in %q", s)
}

func expandGroup(body string) ([]string, error) {
	if lo, hi, width, ok := parseRange(body); ok {
		alts := make([]string, 0, hi-lo+1)
		for i := lo; i <= hi; i++ {
			alts = append(alts, fmt.Sprintf("%0*d", width, i))
		}
		return alts, nil
	}
	return splitTopLevel(body), nil
}

// parseRange recognizes the "000..123" numeric range form. The pad width
// is taken from the endpoints, matching shard names like
// shard-{000000..000999}.tar.
func parseRange(body string) (lo, hi, width int, ok bool) {
	dots := strings.Index(body, "..")
	if dots < 0 {
		return 0, 0, 0, false
	}
	left, right := body[:dots], body[dots+2:]
	if left == "" || right == "" {
		return 0, 0, 0, false
	}
	lo, err := strconv.Atoi(left)
	if err != nil {
		return 0, 0, 0, false
	}
	hi, err = strconv.Atoi(right)
	if err != nil || hi < lo {
		return 0, 0, 0, false
	}
	width = len(left)
	if len(right) > width {
		width = len(right)
	}
	return lo, hi, width, true
}

// splitTopLevel splits a group body on commas that are not nested inside
// an inner brace group.
func splitTopLevel(body string) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, body[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, body[start:])
}
