package planner

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// pathSep stands in for '/' so doublestar treats titles as one segment.
const pathSep = "\x00"

// globPattern rewrites a shell-glob pattern into doublestar syntax. Only
// '*', '?' and bracket classes are special; everything doublestar would
// otherwise interpret ('{', '}', '\\') is escaped. A '[' with no closing
// ']' matches itself. In a class, a leading '!' negates and a ']' right
// after the opening bracket is a member.
func globPattern(pattern string) string {
	p := []rune(strings.ReplaceAll(strings.ToLower(pattern), "/", pathSep))
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		switch c := p[i]; c {
		case '*', '?':
			b.WriteRune(c)
		case '[':
			end := classEnd(p, i)
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			writeClass(&b, p[i+1:end])
			i = end
		case '{', '}', '\\', ']':
			b.WriteByte('\\')
			b.WriteRune(c)
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// classEnd returns the index of the ']' closing the class opened at
// p[start], or -1 when the class never closes.
func classEnd(p []rune, start int) int {
	j := start + 1
	if j < len(p) && p[j] == '!' {
		j++
	}
	if j < len(p) && p[j] == ']' {
		j++
	}
	for j < len(p) && p[j] != ']' {
		j++
	}
	if j >= len(p) {
		return -1
	}
	return j
}

func writeClass(b *strings.Builder, members []rune) {
	b.WriteByte('[')
	if len(members) > 0 && members[0] == '!' {
		b.WriteByte('!')
		members = members[1:]
	}
	for _, c := range members {
		switch c {
		case '\\', ']', '[', '^', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	b.WriteByte(']')
}

func globMatch(glob, s string) bool {
	ok, err := doublestar.Match(glob, strings.ReplaceAll(strings.ToLower(s), "/", pathSep))
	return err == nil && ok
}
