package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
)

// estimated_date is free text, so numeric comparisons against it are rewritten into a
// digits-only cast. The literal is either quoted ('1700') or bare (1700).
var estimatedDateCmpRe = regexp.MustCompile(
	`(?i)\b((?:[a-z_][a-z0-9_]*\.)?)estimated_date\b(?:\s*::\s*(?:int|integer|bigint))?\s*([<>]=?|=)\s*(?:'(\d{3,4})'|(\d{3,4})\b)`)

// RewriteEstimatedDate guards every estimated_date comparison against a 3-4 digit
// literal. Comparisons with non-numeric text are left alone.
func RewriteEstimatedDate(sql string) (string, bool) {
	changed := false
	out := estimatedDateCmpRe.ReplaceAllStringFunc(sql, func(match string) string {
		m := estimatedDateCmpRe.FindStringSubmatch(match)
		qualifier, op, num := m[1], m[2], m[3]
		if num == "" {
			num = m[4]
		}
		changed = true
		return fmt.Sprintf("( (NULLIF(regexp_replace(%sestimated_date, '[^0-9]', '', 'g'), '')::int) %s %s )", qualifier, op, num)
	})
	return out, changed
}

// ExecutionHint explains the free-text estimated_date column when the datastore rejects
// a statement with a type error on it.
func ExecutionHint(sql string, err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if !strings.Contains(msg, "operator does not exist") && !strings.Contains(msg, "invalid input syntax for") {
		return ""
	}
	if !strings.Contains(strings.ToLower(sql), "estimated_date") {
		return ""
	}
	return "Note: the column estimated_date is stored as text in the database. " +
		"Comparisons like estimated_date > 1700 may fail. " +
		"Try casting to integer, for example: WHERE (regexp_replace(estimated_date, '[^0-9]', '', 'g')::int) > 1700 " +
		"or ask the assistant to cast the column to an integer before comparison."
}
