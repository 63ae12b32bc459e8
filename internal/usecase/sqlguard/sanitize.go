// Package sqlguard turns model-generated SQL into a single read-only statement and
// decides how it is executed.
package sqlguard

import (
	"regexp"
	"strings"

	"writing-comparator/internal/domain"
)

var (
	codeFenceRe    = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
	backticksRe    = regexp.MustCompile("^`+|`+$")
	trailingSemiRe = regexp.MustCompile(`;\s*$`)
	leadingSetRe   = regexp.MustCompile(`(?i)^(?:\s*SET\s+[^;]+;\s*)+`)
	forbiddenRe    = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate|grant|revoke|vacuum|copy|merge)\b`)
)

// Normalize strips Markdown code fences, surrounding backticks and one trailing semicolon.
func Normalize(raw string) string {
	s := codeFenceRe.ReplaceAllString(raw, "$1")
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(backticksRe.ReplaceAllString(s, ""))
	s = strings.TrimSpace(trailingSemiRe.ReplaceAllString(s, ""))
	return s
}

// Sanitize accepts an optional run of leading SET statements followed by exactly one
// SELECT or WITH statement. Any write or DDL keyword anywhere after the SETs rejects it.
func Sanitize(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return &domain.ValidationError{SQL: sql, Reason: "empty statement"}
	}

	rest := strings.TrimSpace(leadingSetRe.ReplaceAllString(trimmed, ""))
	lower := strings.ToLower(rest)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return &domain.ValidationError{
			SQL:    sql,
			Reason: "only a single SELECT or WITH ... SELECT (optionally preceded by SET statements) is allowed",
		}
	}
	if m := forbiddenRe.FindString(rest); m != "" {
		return &domain.ValidationError{SQL: sql, Reason: "statement contains disallowed keyword " + strings.ToUpper(m)}
	}
	if hasStatementSeparator(rest) {
		return &domain.ValidationError{SQL: sql, Reason: "multiple statements are not allowed"}
	}
	return nil
}

// hasStatementSeparator reports a semicolon outside single-quoted literals.
func hasStatementSeparator(sql string) bool {
	inQuote := false
	for _, r := range sql {
		switch {
		case r == '\'':
			inQuote = !inQuote
		case r == ';' && !inQuote:
			return true
		}
	}
	return false
}
