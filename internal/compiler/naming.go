package compiler

import (
	"strconv"
	"strings"
)

// Slug lowercases ASCII letters and digits and collapses every run of other
// characters into a single dash, trimming dashes at both ends. It never
// fails; input without any alphanumeric character yields "".
func Slug(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	dash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
			dash = false
		case !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// FlagName derives a CLI flag from a parameter name.
func FlagName(s string) string {
	out := Slug(s)
	for strings.Contains(out, "--") {
		out = strings.ReplaceAll(out, "--", "-")
	}
	return out
}

// nameSet tracks operation names already taken inside one resource.
type nameSet map[string]struct{}

// claim picks the first free name among base, base-method, base-method-2,
// base-method-3, ... and records it. An empty base yields method, method-2,
// ... after the first claim.
func (s nameSet) claim(base, method string) string {
	name := s.pick(base, strings.ToLower(method))
	s[name] = struct{}{}
	return name
}

func (s nameSet) pick(base, method string) string {
	if _, taken := s[base]; !taken {
		return base
	}
	candidate := strings.Trim(base+"-"+method, "-")
	if _, taken := s[candidate]; !taken {
		return candidate
	}
	for i := 2; ; i++ {
		next := candidate + "-" + strconv.Itoa(i)
		if _, taken := s[next]; !taken {
			return next
		}
	}
}
