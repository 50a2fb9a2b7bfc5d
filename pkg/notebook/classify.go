package notebook

import (
	"regexp"
	"strings"

	"github.com/leapstack-labs/leapnb/pkg/core"
)

// Statements that open a SQL cell.
var sqlLeadingKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"INSERT":   true,
	"UPDATE":   true,
	"DELETE":   true,
	"CREATE":   true,
	"DROP":     true,
	"ALTER":    true,
	"DESCRIBE": true,
	"SHOW":     true,
	"EXPLAIN":  true,
}

var (
	leadingWord = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*`)
	selectFrom  = regexp.MustCompile(`(?is)\bselect\b.*\bfrom\b`)
)

// ClassifyLanguage guesses the language of a code cell from its text.
//
// This is best effort and can be wrong. After skipping blank lines and "--"
// comment lines, a cell whose first word is a SQL statement keyword is SQL.
// Otherwise a cell containing the word SELECT followed later by FROM is SQL.
// Everything else is python.
func ClassifyLanguage(content string) core.Language {
	if kw := firstWord(content); sqlLeadingKeywords[strings.ToUpper(kw)] {
		return core.LanguageSQL
	}
	if selectFrom.MatchString(content) {
		return core.LanguageSQL
	}
	return core.LanguagePython
}

func firstWord(content string) string {
	for line := range strings.Lines(content) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		return leadingWord.FindString(line)
	}
	return ""
}
