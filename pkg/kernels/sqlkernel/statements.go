package sqlkernel

import (
	"strings"
	"unicode"
)

// rowKeywords start statements that produce a result set.
var rowKeywords = map[string]bool{
	"SELECT":    true,
	"WITH":      true,
	"VALUES":    true,
	"SHOW":      true,
	"DESCRIBE":  true,
	"EXPLAIN":   true,
	"PRAGMA":    true,
	"TABLE":     true,
	"FROM":      true,
	"SUMMARIZE": true,
}

// splitStatements splits a cell into statements on top-level semicolons.
// Quoted strings, quoted identifiers and comments are respected; empty
// statements are dropped.
func splitStatements(src string) []string {
	var (
		stmts []string
		b     strings.Builder
	)

	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" && stripComments(s) != "" {
			stmts = append(stmts, s)
		}
		b.Reset()
	}

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\'' || c == '"':
			end := closingQuote(src, i)
			b.WriteString(src[i:end])
			i = end - 1
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				end = len(src) - i
			}
			b.WriteString(src[i : i+end])
			i += end - 1
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				b.WriteString(src[i:])
				i = len(src)
				break
			}
			b.WriteString(src[i : i+2+end+2])
			i += 2 + end + 1
		case c == ';':
			flush()
		default:
			b.WriteByte(c)
		}
	}
	flush()
	return stmts
}

// closingQuote returns the index just past the quote that closes the one at
// start. Doubled quotes are escapes. Unterminated quotes run to the end.
func closingQuote(src string, start int) int {
	q := src[start]
	for i := start + 1; i < len(src); i++ {
		if src[i] != q {
			continue
		}
		if i+1 < len(src) && src[i+1] == q {
			i++
			continue
		}
		return i + 1
	}
	return len(src)
}

// stripComments removes leading whitespace and comments.
func stripComments(s string) string {
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		switch {
		case strings.HasPrefix(s, "--"):
			nl := strings.IndexByte(s, '\n')
			if nl < 0 {
				return ""
			}
			s = s[nl+1:]
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s, "*/")
			if end < 0 {
				return ""
			}
			s = s[end+2:]
		default:
			return s
		}
	}
}

// firstKeyword returns the upper-cased leading keyword of stmt.
func firstKeyword(stmt string) string {
	s := stripComments(stmt)
	end := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '_'
	})
	if end < 0 {
		end = len(s)
	}
	return strings.ToUpper(s[:end])
}

// returnsRows reports whether stmt is expected to produce a result set.
func returnsRows(stmt string) bool {
	return rowKeywords[firstKeyword(stmt)]
}
